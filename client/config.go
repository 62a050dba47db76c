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

package client

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	libval "github.com/go-playground/validator/v10"

	"github.com/sabouaram/tcpmsg/certificates"
	tlsvrs "github.com/sabouaram/tcpmsg/certificates/tlsversion"
	"github.com/sabouaram/tcpmsg/duration"
	liberr "github.com/sabouaram/tcpmsg/errors"
	"github.com/sabouaram/tcpmsg/keepalive"
	"github.com/sabouaram/tcpmsg/pskauth"
	"github.com/sabouaram/tcpmsg/severity"
)

// Config parameterizes a Client (spec §6.2 "Configuration (enumerated)").
type Config struct {
	ServerAddress string `validate:"required"`

	StreamBufferSize     int   `validate:"gte=0"`
	MaxProxiedStreamSize int64 `validate:"gte=0"`

	ConnectTimeout duration.Duration

	IdleServerTimeout           duration.Duration
	IdleServerEvaluationInterval duration.Duration

	PresharedKey []byte

	// Certificates, when non-nil, turns on TLS for the outbound dial.
	// AcceptInvalidCertificates and TLSVersion are applied onto it as
	// knobs at Connect (spec §6.2 "AcceptInvalidCertificates", "TlsVersion").
	Certificates              certificates.TLSConfig
	AcceptInvalidCertificates bool
	MutuallyAuthenticate      bool
	TLSVersion                string

	NoDelay   bool
	LocalPort int `validate:"gte=0"`
	Keepalive keepalive.Config

	AutoReconnectInterval   duration.Duration
	AutoReconnectMaxAttempts int

	EventFunc severity.EventFunc
}

// Validate checks the constraints spec §6.2 enumerates for client config,
// mirroring server.Config's validator/v10-plus-manual-checks shape.
func (c *Config) Validate() liberr.Error {
	err := ErrorInvalidConfig.Error(nil)

	if e := libval.New().Struct(c); e != nil {
		if ve, ok := e.(*libval.InvalidValidationError); ok {
			err.Add(ve)
		}
		for _, fe := range e.(libval.ValidationErrors) {
			//nolint goerr113
			err.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", fe.StructNamespace(), fe.ActualTag()))
		}
	}

	if len(c.PresharedKey) > 0 && len(c.PresharedKey) != pskauth.MaxKeyLength {
		//nolint goerr113
		err.Add(fmt.Errorf("presharedKey must be empty or exactly %d bytes", pskauth.MaxKeyLength))
	}

	if c.TLSVersion != "" && tlsvrs.Parse(c.TLSVersion) == tlsvrs.VersionUnknown {
		//nolint goerr113
		err.Add(fmt.Errorf("tlsVersion %q is not one of the supported versions", c.TLSVersion))
	}

	if c.LocalPort != 0 && c.LocalPort < 1024 {
		//nolint goerr113
		err.Add(fmt.Errorf("localPort must be 0 (any) or >= 1024"))
	}

	if err.HasParent() {
		return err
	}

	return nil
}

// dialer builds the net.Dialer used for Connect, binding LocalPort when set
// (spec §6.2 "LocalPort (client source port, 0 or >= 1024)").
func (c *Config) dialer() *net.Dialer {
	d := &net.Dialer{Timeout: c.ConnectTimeout.Time()}
	if c.LocalPort > 0 {
		d.LocalAddr = &net.TCPAddr{Port: c.LocalPort}
	}
	return d
}

// tlsConfig builds the *tls.Config for the outbound dial, applying
// TLSVersion/AcceptInvalidCertificates onto Certificates; MutuallyAuthenticate
// is not read here. Returns nil when Certificates is unset (plaintext dial).
func (c *Config) tlsConfig() *tls.Config {
	if c.Certificates == nil {
		return nil
	}

	if v := tlsvrs.Parse(c.TLSVersion); v != tlsvrs.VersionUnknown {
		c.Certificates.SetVersionMin(v)
	}

	serverName := c.ServerAddress
	if host, _, err := net.SplitHostPort(c.ServerAddress); err == nil {
		serverName = host
	}
	serverName = strings.TrimSpace(serverName)

	cfg := c.Certificates.TLS(serverName)
	if c.AcceptInvalidCertificates {
		/* #nosec */
		cfg.InsecureSkipVerify = true
	}
	return cfg
}
