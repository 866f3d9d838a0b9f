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
	"bytes"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/packetd/fetchd/common"
)

func newError(format string, args ...any) error {
	return errors.Errorf("transport: "+format, args...)
}

// rawConn is the minimal surface buffered needs from the underlying
// transport (net.Conn and the TLS session both satisfy it).
type rawConn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

// buffered implements the read/write/progress discipline shared by
// every concrete Socket: a fixed-size buffer with an "end of valid
// data" cursor, rotated on each successful ReadUntil match, plus a
// byte-accurate read counter (§4.3, §4.4, §8 "Socket buffer
// coherence").
//
// It is not itself a Socket — TCP and TLS embed it and supply
// Connect/Close around an established rawConn.
type buffered struct {
	mu   sync.Mutex
	conn rawConn

	buf []byte
	end int // index of the end of valid buffered data

	bytesRead int64
	expected  atomic.Int64
	hasExpect atomic.Bool
}

func newBuffered(conn rawConn) *buffered {
	return &buffered{
		conn: conn,
		buf:  make([]byte, common.SocketBufferSize),
	}
}

// SetExpected records a content-length estimate for Progress to
// report. Called by the Fetcher once it has parsed the response
// headers; a Socket has no header awareness of its own.
func (b *buffered) SetExpected(n int64) {
	b.expected.Store(n)
	b.hasExpect.Store(true)
}

// Progress reports the read counter and expected size. A nil receiver
// is a TCP or TLS socket that is not connected; it reports none.
func (b *buffered) Progress() (int64, int64, bool) {
	if b == nil {
		return 0, 0, false
	}
	b.mu.Lock()
	read := b.bytesRead
	b.mu.Unlock()

	if !b.hasExpect.Load() {
		return read, 0, false
	}
	return read, b.expected.Load(), true
}

// fill performs one read into the tail of buf, growing the valid
// region. Unread bytes always sit at the front of buf (ReadUntil and
// ReadCount shift them there), so a buffer that is already full
// yields an error instead of a read.
func (b *buffered) fill() error {
	if b.end == len(b.buf) {
		return newError("read buffer exhausted without finding delimiter")
	}
	n, err := b.conn.Read(b.buf[b.end:])
	if n > 0 {
		b.end += n
		b.bytesRead += int64(n)
	}
	if err != nil {
		if err == io.EOF && n > 0 {
			return nil
		}
		return err
	}
	if n == 0 {
		return io.ErrNoProgress
	}
	return nil
}

// ReadUntil reads until delim is found, buffering any trailing bytes
// for the next call.
func (b *buffered) ReadUntil(delim []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if idx := bytes.Index(b.buf[:b.end], delim); idx != -1 {
			matchEnd := idx + len(delim)
			out := make([]byte, matchEnd)
			copy(out, b.buf[:matchEnd])

			remaining := b.end - matchEnd
			copy(b.buf, b.buf[matchEnd:b.end])
			b.end = remaining
			return out, nil
		}
		if err := b.fill(); err != nil {
			return nil, err
		}
	}
}

// ReadCount returns exactly n bytes, buffered bytes first.
func (b *buffered) ReadCount(n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, 0, n)

	take := n
	if take > b.end {
		take = b.end
	}
	out = append(out, b.buf[:take]...)
	remaining := b.end - take
	copy(b.buf, b.buf[take:b.end])
	b.end = remaining

	for len(out) < n {
		chunk := make([]byte, min(len(b.buf), n-len(out)))
		nr, err := b.conn.Read(chunk)
		if nr > 0 {
			out = append(out, chunk[:nr]...)
			b.bytesRead += int64(nr)
		}
		if err != nil {
			if err == io.EOF {
				return nil, newError("connection closed before %d bytes were read", n)
			}
			return nil, err
		}
		if nr == 0 {
			return nil, io.ErrNoProgress
		}
	}
	return out, nil
}

// ReadToEnd drains the buffer, then loops reads until the peer
// closes the connection.
func (b *buffered) ReadToEnd() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []byte
	out = append(out, b.buf[:b.end]...)
	b.end = 0

	chunk := make([]byte, len(b.buf))
	for {
		n, err := b.conn.Read(chunk)
		if n > 0 {
			out = append(out, chunk[:n]...)
			b.bytesRead += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

// Write writes b in full, retrying short writes.
func (b *buffered) Write(data []byte) error {
	written := 0
	for written < len(data) {
		n, err := b.conn.Write(data[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
		written += n
	}
	return nil
}

func (b *buffered) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
