// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"
	"sync"

	"github.com/packetd/fetchd/logger"
	"github.com/packetd/fetchd/uri"
)

// DefaultTLSPort is used when a URI carries no port and the service
// table has no opinion.
const DefaultTLSPort = 443

var (
	tlsInitOnce  sync.Once
	systemPool   *x509.CertPool
	systemPoolOK bool
)

// initTLS loads the system trust store exactly once per process
// (§4.5, §5 "one-shot latch"). Concurrent first-callers block on the
// same sync.Once; everyone after sees the cached result.
func initTLS() {
	tlsInitOnce.Do(func() {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			logger.Errorf("transport: failed to load system trust store: %v", err)
			systemPoolOK = false
			return
		}
		systemPool = pool
		systemPoolOK = true
	})
}

// TLS is a Socket that performs a TLS 1.2+ handshake over an
// established TCP connection, with SNI and full peer verification.
type TLS struct {
	*buffered
	conn *tls.Conn
}

// NewTLS returns a disconnected TLS socket.
func NewTLS() *TLS {
	return &TLS{}
}

func (t *TLS) Connect(u uri.URI) error {
	initTLS()
	if !systemPoolOK {
		return newError("tls: no system trust store available")
	}

	host, ok := u.Host()
	if !ok {
		return newError("tls: URI %q has no host", u.Full())
	}

	// uri.Port defaults absent ports to 80 (§4.1), which is the right
	// default for plain TCP but wrong for TLS. Only an explicit port
	// segment should override DefaultTLSPort here.
	port := DefaultTLSPort
	if u.HasPort() {
		if p, ok := u.Port(); ok {
			port = int(p)
		}
	}

	raw, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return newError("tls: dial %q: %v", host, err)
	}

	conn := tls.Client(raw, &tls.Config{
		ServerName: host,
		RootCAs:    systemPool,
		MinVersion: tls.VersionTLS12,
	})
	if err := conn.Handshake(); err != nil {
		_ = raw.Close()
		return newError("tls: handshake with %q: %v", host, err)
	}

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		_ = conn.Close()
		return newError("tls: peer presented no certificate")
	}
	if err := state.PeerCertificates[0].VerifyHostname(host); err != nil {
		_ = conn.Close()
		return newError("tls: hostname verification failed for %q: %v", host, err)
	}

	t.conn = conn
	t.buffered = newBuffered(conn)
	return nil
}

func (t *TLS) Close() error {
	if t.buffered == nil {
		return nil
	}
	err := t.buffered.Close()
	t.conn = nil
	t.buffered = nil
	return err
}
