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

package server

import (
	"fmt"

	libval "github.com/go-playground/validator/v10"

	"github.com/sabouaram/tcpmsg/certificates"
	tlsaut "github.com/sabouaram/tcpmsg/certificates/auth"
	tlsvrs "github.com/sabouaram/tcpmsg/certificates/tlsversion"
	"github.com/sabouaram/tcpmsg/duration"
	liberr "github.com/sabouaram/tcpmsg/errors"
	"github.com/sabouaram/tcpmsg/keepalive"
	"github.com/sabouaram/tcpmsg/pskauth"
	"github.com/sabouaram/tcpmsg/severity"
)

// Config parameterizes a Server (spec §6.2 "Configuration (enumerated)").
type Config struct {
	ListenAddress string `validate:"required"`

	StreamBufferSize     int `validate:"gte=0"`
	MaxProxiedStreamSize int64 `validate:"gte=0"`

	IdleClientTimeout duration.Duration

	MaxConnections int `validate:"gte=0"`

	PermittedIPs []string
	BlockedIPs   []string

	PresharedKey []byte

	// Certificates, when non-nil, turns on TLS for every accepted
	// connection. MutuallyAuthenticate and TLSVersion are applied onto it
	// as knobs at Start (spec §6.2 "MutuallyAuthenticate", "TlsVersion").
	Certificates         certificates.TLSConfig
	MutuallyAuthenticate bool
	TLSVersion           string

	NoDelay   bool
	Keepalive keepalive.Config

	EventFunc severity.EventFunc
}

// Validate checks the numeric/string constraints spec §6.2 enumerates,
// the same validator/v10-plus-manual-checks shape as certificates.Config.
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

	if err.HasParent() {
		return err
	}

	return nil
}

// resolveTLS applies MutuallyAuthenticate/TLSVersion onto Certificates, if
// configured, returning the TLSConfig to hand to admission.Listener.
func (c *Config) resolveTLS() certificates.TLSConfig {
	if c.Certificates == nil {
		return nil
	}

	if v := tlsvrs.Parse(c.TLSVersion); v != tlsvrs.VersionUnknown {
		c.Certificates.SetVersionMin(v)
	}

	if c.MutuallyAuthenticate {
		c.Certificates.SetClientAuth(tlsaut.RequireAndVerifyClientCert)
	}

	return c.Certificates
}
