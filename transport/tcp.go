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
	"net"
	"strconv"

	"github.com/packetd/fetchd/uri"
)

// DefaultTCPPort is used when a URI carries no port and the caller's
// service table (here, none) has no opinion either.
const DefaultTCPPort = 80

// TCP is a plain, unencrypted Socket. The zero value is not usable;
// construct with NewTCP.
type TCP struct {
	*buffered
	conn net.Conn
}

// NewTCP returns a disconnected TCP socket.
func NewTCP() *TCP {
	return &TCP{}
}

// Connect resolves the URI's host to its candidate addresses and
// dials the first one that accepts a connection (§4.4). IPv4
// addresses are tried before IPv6, per the design notes' resolver
// guidance; this implementation widens to IPv6 candidates rather
// than excluding them outright.
func (t *TCP) Connect(u uri.URI) error {
	host, ok := u.Host()
	if !ok {
		return newError("tcp: URI %q has no host", u.Full())
	}

	port := DefaultTCPPort
	if p, ok := u.Port(); ok {
		port = int(p)
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return newError("tcp: resolve %q: %v", host, err)
	}
	addrs = sortIPv4First(addrs)

	var lastErr error
	for _, addr := range addrs {
		conn, err := net.Dial("tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			continue
		}
		t.conn = conn
		t.buffered = newBuffered(conn)
		return nil
	}

	if lastErr == nil {
		lastErr = newError("tcp: no candidate addresses for %q", host)
	}
	return newError("tcp: connect %q: %v", host, lastErr)
}

func (t *TCP) Close() error {
	if t.buffered == nil {
		return nil
	}
	err := t.buffered.Close()
	t.conn = nil
	t.buffered = nil
	return err
}

// sortIPv4First stably partitions addr strings so IPv4 literals come
// first, preserving resolver order within each family.
func sortIPv4First(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	var v6 []string
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip != nil && ip.To4() != nil {
			out = append(out, a)
		} else {
			v6 = append(v6, a)
		}
	}
	return append(out, v6...)
}
