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

// Package response parses an HTTP/1.1 response (status line, headers,
// body) and optionally decompresses a ZSTD body. It performs no I/O
// of its own — the transport/fetcher layers hand it already-read
// bytes.
package response

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

func newError(format string, args ...any) error {
	return errors.Errorf("response: "+format, args...)
}

// Response is a mutable container built up in phases: LoadHeaders,
// then LoadBody (or LoadAll for both at once).
type Response struct {
	statusCode int
	headers    map[string]string
	body       []byte
}

// New returns an empty Response, ready for LoadHeaders/LoadBody.
func New() *Response {
	return &Response{headers: make(map[string]string)}
}

func (r *Response) StatusCode() int {
	return r.statusCode
}

func (r *Response) Headers() map[string]string {
	return r.headers
}

// Header looks up a header by name, case-insensitively.
func (r *Response) Header(name string) (string, bool) {
	v, ok := r.headers[strings.ToLower(name)]
	return v, ok
}

func (r *Response) Body() []byte {
	return r.body
}

// IsSuccess reports whether the status code falls in [200, 300).
func (r *Response) IsSuccess() bool {
	return r.statusCode >= 200 && r.statusCode < 300
}

// LoadHeaders parses the status line and header block out of data.
// data must contain a full "\r\n\r\n" (or lone-LF equivalent)
// terminated header section; LoadHeaders returns the byte offset
// immediately after that terminator, for a caller that wants to
// continue reading the body from the same buffer.
func (r *Response) LoadHeaders(data []byte) (int, error) {
	line, rest, ok := cutLine(data)
	if !ok {
		return 0, newError("missing status line")
	}
	code, err := parseStatusLine(line)
	if err != nil {
		return 0, err
	}
	r.statusCode = code
	r.headers = make(map[string]string)

	consumed := len(data) - len(rest)
	for {
		line, next, ok := cutLine(rest)
		if !ok {
			return 0, newError("missing terminating blank line")
		}
		consumed = len(data) - len(next)
		rest = next

		if len(line) == 0 {
			return consumed, nil
		}

		name, value, err := parseHeaderLine(line)
		if err != nil {
			return 0, err
		}
		r.headers[name] = value
	}
}

// LoadBody stores raw bytes as the body verbatim, no parsing.
func (r *Response) LoadBody(data []byte) {
	r.body = data
}

// LoadAll runs LoadHeaders then LoadBody over the trailing slice.
func (r *Response) LoadAll(data []byte) error {
	offset, err := r.LoadHeaders(data)
	if err != nil {
		return err
	}
	r.LoadBody(data[offset:])
	return nil
}

// cutLine splits off the first CRLF- or LF-terminated line (line
// content excludes the terminator), reporting false when no
// terminator is present at all.
func cutLine(data []byte) (line []byte, rest []byte, ok bool) {
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		return nil, data, false
	}
	line = data[:idx]
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, data[idx+1:], true
}

// parseStatusLine extracts the decimal status code between the first
// and second space of "HTTP/<version> SP <code> SP <reason>".
func parseStatusLine(line []byte) (int, error) {
	s := string(line)
	firstSpace := strings.IndexByte(s, ' ')
	if firstSpace == -1 {
		return 0, newError("malformed status line %q", s)
	}
	rest := s[firstSpace+1:]
	secondSpace := strings.IndexByte(rest, ' ')
	codeStr := rest
	if secondSpace != -1 {
		codeStr = rest[:secondSpace]
	}
	code, err := strconv.Atoi(strings.TrimSpace(codeStr))
	if err != nil {
		return 0, newError("non-numeric status code in %q", s)
	}
	return code, nil
}

// parseHeaderLine splits "name: value" folding the name to
// lowercase and trimming leading whitespace from both sides.
func parseHeaderLine(line []byte) (name string, value string, err error) {
	idx := bytes.IndexByte(line, ':')
	if idx == -1 {
		return "", "", newError("malformed header line %q", line)
	}
	name = strings.ToLower(strings.TrimSpace(string(line[:idx])))
	value = strings.TrimSpace(string(line[idx+1:]))
	if name == "" {
		return "", "", newError("empty header name in %q", line)
	}
	return name, value, nil
}

// DecompressBody interprets the body as a ZSTD frame (or frame
// sequence) and replaces it with the decompressed bytes. It handles
// both a known content size and an unknown one transparently, since
// the underlying decoder streams either way; a truncated or corrupt
// frame surfaces as an error.
func (r *Response) DecompressBody() error {
	if len(r.body) == 0 {
		return newError("empty body, nothing to decompress")
	}

	dec, err := zstd.NewReader(bytes.NewReader(r.body))
	if err != nil {
		return errors.Wrap(err, "response: zstd decoder init")
	}
	defer dec.Close()

	out, err := io.ReadAll(dec)
	if err != nil {
		return errors.Wrap(err, "response: zstd decode")
	}
	r.body = out
	return nil
}
