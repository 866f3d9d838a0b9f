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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn feeds fixed input bytes through reads sized by chunkSize,
// simulating a socket that returns data in several small recv calls
// rather than all at once. Writes are cut to chunkSize as well,
// simulating short sends.
type fakeConn struct {
	in        *bytes.Reader
	out       bytes.Buffer
	chunkSize int
	closed    bool
}

func newFakeConn(data string, chunkSize int) *fakeConn {
	return &fakeConn{in: bytes.NewReader([]byte(data)), chunkSize: chunkSize}
}

func (f *fakeConn) Read(p []byte) (int, error) {
	if f.chunkSize > 0 && len(p) > f.chunkSize {
		p = p[:f.chunkSize]
	}
	return f.in.Read(p)
}

func (f *fakeConn) Write(p []byte) (int, error) {
	if f.chunkSize > 0 && len(p) > f.chunkSize {
		p = p[:f.chunkSize]
	}
	return f.out.Write(p)
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestReadUntilAcrossRefills(t *testing.T) {
	conn := newFakeConn("HTTP/1.1 200 OK\r\nX-A: 1\r\n\r\nbody-tail", 5)
	b := newBuffered(conn)

	headers, err := b.ReadUntil([]byte("\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nX-A: 1\r\n\r\n", string(headers))

	rest, err := b.ReadCount(9)
	require.NoError(t, err)
	assert.Equal(t, "body-tail", string(rest))
}

func TestReadUntilNoDelimiterEOF(t *testing.T) {
	conn := newFakeConn("no terminator here", 4)
	b := newBuffered(conn)

	_, err := b.ReadUntil([]byte("\r\n\r\n"))
	assert.Error(t, err)
}

func TestReadCountDrainsBufferFirst(t *testing.T) {
	conn := newFakeConn("abcdefghij", 3)
	b := newBuffered(conn)

	// Prime the buffer with a ReadUntil that doesn't consume everything.
	_, err := b.ReadUntil([]byte("abc"))
	require.NoError(t, err)

	out, err := b.ReadCount(7)
	require.NoError(t, err)
	assert.Equal(t, "defghij", string(out))
}

func TestReadCountShortConnection(t *testing.T) {
	conn := newFakeConn("short", 8)
	b := newBuffered(conn)

	_, err := b.ReadCount(10)
	assert.Error(t, err)
}

func TestReadToEndDrainsAndLoops(t *testing.T) {
	conn := newFakeConn("part-one part-two part-three", 6)
	b := newBuffered(conn)

	out, err := b.ReadToEnd()
	require.NoError(t, err)
	assert.Equal(t, "part-one part-two part-three", string(out))
}

func TestByteAccurateCounters(t *testing.T) {
	payload := "HTTP/1.1 200 OK\r\n\r\n0123456789"
	conn := newFakeConn(payload, 7)
	b := newBuffered(conn)

	_, err := b.ReadUntil([]byte("\r\n\r\n"))
	require.NoError(t, err)
	_, err = b.ReadCount(10)
	require.NoError(t, err)

	read, _, ok := b.Progress()
	assert.False(t, ok)
	assert.Equal(t, int64(len(payload)), read)
}

func TestWriteRetriesShortWrites(t *testing.T) {
	conn := newFakeConn("", 4)
	b := newBuffered(conn)

	require.NoError(t, b.Write([]byte("GET / HTTP/1.1\r\n\r\n")))
	assert.Equal(t, "GET / HTTP/1.1\r\n\r\n", conn.out.String())
}

func TestSetExpectedSurfacesInProgress(t *testing.T) {
	conn := newFakeConn("abc", 0)
	b := newBuffered(conn)
	b.SetExpected(100)

	_, err := b.ReadCount(3)
	require.NoError(t, err)

	read, expected, ok := b.Progress()
	assert.True(t, ok)
	assert.Equal(t, int64(3), read)
	assert.Equal(t, int64(100), expected)
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := newFakeConn("", 0)
	b := newBuffered(conn)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.True(t, conn.closed)
}
