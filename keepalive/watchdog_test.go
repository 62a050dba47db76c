/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package keepalive_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/sabouaram/tcpmsg/keepalive"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Watchdog", func() {
	It("fires onIdle once LastActivity exceeds the idle timeout", func() {
		var mu sync.Mutex
		last := time.Now().Add(-time.Hour)
		var fired atomic.Bool

		wd := NewWatchdog(10*time.Millisecond, time.Millisecond, func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return last
		}, func(context.Context) {
			fired.Store(true)
		}, nil)

		Expect(wd.Start(context.Background())).To(Succeed())
		defer func() { _ = wd.Stop(context.Background()) }()

		Eventually(fired.Load, time.Second, 10*time.Millisecond).Should(BeTrue())
	})

	It("never fires while activity stays recent", func() {
		var fired atomic.Bool

		wd := NewWatchdog(10*time.Millisecond, time.Hour, func() time.Time {
			return time.Now()
		}, func(context.Context) {
			fired.Store(true)
		}, nil)

		Expect(wd.Start(context.Background())).To(Succeed())
		defer func() { _ = wd.Stop(context.Background()) }()

		Consistently(fired.Load, 100*time.Millisecond, 10*time.Millisecond).Should(BeFalse())
	})
})

var _ = Describe("AutoReconnect", func() {
	It("retries up to the configured attempt budget then stops", func() {
		var mu sync.Mutex
		attempts := 0

		ar := NewAutoReconnect(10*time.Millisecond, 2, func() bool {
			return false
		}, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			return context.DeadlineExceeded
		}, nil)

		Expect(ar.Start(context.Background())).To(Succeed())
		defer func() { _ = ar.Stop(context.Background()) }()

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return attempts
		}, time.Second, 10*time.Millisecond).Should(Equal(2))

		Consistently(func() int {
			mu.Lock()
			defer mu.Unlock()
			return attempts
		}, 100*time.Millisecond, 10*time.Millisecond).Should(Equal(2))
	})

	It("stops attempting once connected", func() {
		var connected atomic.Bool
		var mu sync.Mutex
		attempts := 0

		ar := NewAutoReconnect(10*time.Millisecond, -1, connected.Load, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			connected.Store(true)
			return nil
		}, nil)

		Expect(ar.Start(context.Background())).To(Succeed())
		defer func() { _ = ar.Stop(context.Background()) }()

		Eventually(connected.Load, time.Second, 10*time.Millisecond).Should(BeTrue())

		seen := func() int {
			mu.Lock()
			defer mu.Unlock()
			return attempts
		}()

		Consistently(func() int {
			mu.Lock()
			defer mu.Unlock()
			return attempts
		}, 100*time.Millisecond, 10*time.Millisecond).Should(Equal(seen))
	})
})
