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

// Package fetcher drives a single HTTP/1.1 GET round-trip over a
// transport.Socket: building the request, reading the response
// headers, and dispatching to the right body-framing mode.
package fetcher

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/packetd/fetchd/common"
	"github.com/packetd/fetchd/logger"
	"github.com/packetd/fetchd/response"
	"github.com/packetd/fetchd/transport"
	"github.com/packetd/fetchd/uri"
)

func newError(format string, args ...any) error {
	return errors.Errorf("fetcher: "+format, args...)
}

var headerTerminator = []byte("\r\n\r\n")

// progressSetter is implemented by transport.Socket values that can
// be told the expected body size, once it is known from headers.
type progressSetter interface {
	SetExpected(n int64)
}

// Fetcher owns at most one Socket for the duration of a Download
// call; the socket is released on every exit path.
type Fetcher struct {
	socket  transport.Socket
	headers common.Options

	lastRead, lastExpected int64
	lastOK                 bool
}

// New builds a Fetcher bound to the given, not-yet-connected socket.
// An optional common.Options supplies extra request headers (string
// keys, values coerced to string via cast), typically loaded from a
// --config file's "headers" block.
func New(socket transport.Socket, headers ...common.Options) *Fetcher {
	f := &Fetcher{socket: socket}
	if len(headers) > 0 {
		f.headers = headers[0]
	}
	return f
}

// Progress forwards the held socket's counters, or reports none
// while no download is in flight.
func (f *Fetcher) Progress() (read int64, expected int64, ok bool) {
	if f.socket == nil {
		return 0, 0, false
	}
	return f.socket.Progress()
}

// LastProgress reports the socket's byte counters as they stood right
// before the most recent Download closed its socket, so callers (the
// pool's metrics) can account for bytes transferred by an attempt
// that has already finished, after closing the socket has reset what
// it reports.
func (f *Fetcher) LastProgress() (read int64, expected int64, ok bool) {
	return f.lastRead, f.lastExpected, f.lastOK
}

// Download performs connect, request, header read, and body read for
// one URI, always releasing the socket before returning.
func (f *Fetcher) Download(u uri.URI) (*response.Response, error) {
	defer func() {
		_ = f.socket.Close()
	}()
	defer func() {
		f.lastRead, f.lastExpected, f.lastOK = f.socket.Progress()
	}()

	if err := f.socket.Connect(u); err != nil {
		return nil, errors.Wrapf(err, "fetcher: connect %q", u.Full())
	}

	req := buildRequest(u, f.headers)
	if err := f.socket.Write(req); err != nil {
		return nil, errors.Wrapf(err, "fetcher: write request for %q", u.Full())
	}

	headerBytes, err := f.socket.ReadUntil(headerTerminator)
	if err != nil {
		return nil, errors.Wrapf(err, "fetcher: read headers for %q", u.Full())
	}

	resp := response.New()
	if _, err := resp.LoadHeaders(headerBytes); err != nil {
		return nil, errors.Wrapf(err, "fetcher: parse headers for %q", u.Full())
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, errors.Wrapf(err, "fetcher: read body for %q", u.Full())
	}
	resp.LoadBody(body)
	return resp, nil
}

// readBody applies the three-way framing precedence of §4.6: chunked
// wins over Content-Length wins over read-to-end.
func (f *Fetcher) readBody(resp *response.Response) ([]byte, error) {
	if te, ok := resp.Header("transfer-encoding"); ok && strings.EqualFold(strings.TrimSpace(te), "chunked") {
		return f.readChunked()
	}
	if cl, ok := resp.Header("content-length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil {
			return nil, newError("non-numeric content-length %q", cl)
		}
		if setter, ok := f.socket.(progressSetter); ok {
			setter.SetExpected(n)
		}
		return f.socket.ReadCount(int(n))
	}
	return f.socket.ReadToEnd()
}

var chunkTerminator = []byte("\r\n")

// readChunked repeats read-size/read-data until a zero-length chunk
// terminates the body.
func (f *Fetcher) readChunked() ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for {
		sizeLine, err := f.socket.ReadUntil(chunkTerminator)
		if err != nil {
			return nil, errors.Wrap(err, "fetcher: read chunk size")
		}
		sizeStr := strings.TrimSpace(strings.TrimSuffix(string(sizeLine), "\r\n"))
		size, err := strconv.ParseUint(sizeStr, 16, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "fetcher: malformed chunk size %q", sizeStr)
		}
		if size == 0 {
			out := make([]byte, buf.Len())
			copy(out, buf.B)
			return out, nil
		}

		chunk, err := f.socket.ReadCount(int(size) + 2)
		if err != nil {
			return nil, errors.Wrap(err, "fetcher: read chunk data")
		}
		if len(chunk) < 2 {
			return nil, newError("truncated chunk trailer")
		}
		buf.Write(chunk[:len(chunk)-2])
	}
}

// buildRequest renders the wire bytes of a GET request per §6. extra
// supplies additional headers beyond the fixed Host/Accept/
// Accept-Encoding set; a value that cannot be coerced to a string is
// logged and skipped rather than failing the whole request.
func buildRequest(u uri.URI, extra common.Options) []byte {
	path := "/"
	if p, ok := u.Path(); ok {
		path = p
	}
	if q, ok := u.Query(); ok {
		path += "?" + q
	}
	if fragment, ok := u.Fragment(); ok {
		path += "#" + fragment
	}

	host, _ := u.Host()

	var b strings.Builder
	b.WriteString("GET ")
	b.WriteString(path)
	b.WriteString(" HTTP/1.1\r\n")
	b.WriteString("Host: ")
	b.WriteString(host)
	b.WriteString("\r\n")
	b.WriteString("Accept: */*\r\n")
	b.WriteString("Accept-Encoding: identity, zstd\r\n")
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := extra.GetString(k)
		if err != nil {
			logger.Errorf("fetcher: header %q has a non-string value: %v", k, err)
			continue
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}
