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

package response

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAllContentLengthHappyPath(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 5\r\n" +
		"\r\n" +
		"hello"

	r := New()
	require.NoError(t, r.LoadAll([]byte(raw)))

	assert.Equal(t, 200, r.StatusCode())
	assert.True(t, r.IsSuccess())

	ct, ok := r.Header("Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", ct)

	cl, ok := r.Header("content-length")
	assert.True(t, ok)
	assert.Equal(t, "5", cl)

	assert.Equal(t, []byte("hello"), r.Body())
}

func TestLoadHeadersFoldsCaseAndLastWins(t *testing.T) {
	raw := "HTTP/1.1 404 Not Found\r\n" +
		"X-Foo: first\r\n" +
		"X-FOO: second\r\n" +
		"\r\n"

	r := New()
	_, err := r.LoadHeaders([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 404, r.StatusCode())
	assert.False(t, r.IsSuccess())

	v, ok := r.Header("x-foo")
	assert.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestLoadHeadersAcceptsLoneLF(t *testing.T) {
	raw := "HTTP/1.1 200 OK\n" +
		"X-Foo: bar\n" +
		"\n"

	r := New()
	offset, err := r.LoadHeaders([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, len(raw), offset)

	v, ok := r.Header("x-foo")
	assert.True(t, ok)
	assert.Equal(t, "bar", v)
}

func TestLoadHeadersMissingTerminator(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"X-Foo: bar\r\n"

	r := New()
	_, err := r.LoadHeaders([]byte(raw))
	assert.Error(t, err)
}

func TestLoadHeadersMalformedStatusLine(t *testing.T) {
	r := New()
	_, err := r.LoadHeaders([]byte("not a status line\r\n\r\n"))
	assert.Error(t, err)

	r2 := New()
	_, err = r2.LoadHeaders([]byte("HTTP/1.1 notacode OK\r\n\r\n"))
	assert.Error(t, err)
}

func TestLoadHeadersEmptyName(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		": badvalue\r\n" +
		"\r\n"

	r := New()
	_, err := r.LoadHeaders([]byte(raw))
	assert.Error(t, err)
}

func TestDecompressBody(t *testing.T) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte("decompressed payload"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	r := New()
	r.LoadBody(buf.Bytes())
	require.NoError(t, r.DecompressBody())
	assert.Equal(t, []byte("decompressed payload"), r.Body())
}

func TestDecompressBodyTruncated(t *testing.T) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write([]byte("decompressed payload, long enough to span more than one block of output"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	truncated := buf.Bytes()[:len(buf.Bytes())-4]

	r := New()
	r.LoadBody(truncated)
	assert.Error(t, r.DecompressBody())
}

func TestDecompressBodyEmpty(t *testing.T) {
	r := New()
	r.LoadBody(nil)
	assert.Error(t, r.DecompressBody())
}
