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

// Package uri implements the slice of RFC 3986 this downloader needs:
// scheme/host/port/path/query/fragment extraction from an opaque
// string, with no percent-decoding or normalization.
package uri

import (
	"strconv"
	"strings"
)

const schemeSep = "://"

// URI is an immutable wrapper around the original string. It never
// fails to construct; every attribute is parsed on demand.
//
// URI holds only a string so it is directly usable as a map key and
// compares equal iff the original strings are equal.
type URI struct {
	raw string
}

// New wraps s. Parsing is deferred to the accessor methods.
func New(s string) URI {
	return URI{raw: s}
}

// Full returns the original string, verbatim.
func (u URI) Full() string {
	return u.raw
}

func (u URI) String() string {
	return u.raw
}

// Less implements a total lexicographic order over the original
// string, for use in sorted containers.
func (u URI) Less(other URI) bool {
	return u.raw < other.raw
}

func isSchemeByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '+' || b == '-' || b == '.':
		return true
	default:
		return false
	}
}

// Scheme returns the prefix up to (but excluding) "://" when every
// byte of that prefix is a valid scheme character. The empty prefix
// ("://host") is not a valid scheme either.
func (u URI) Scheme() (string, bool) {
	idx := strings.Index(u.raw, schemeSep)
	if idx <= 0 {
		return "", false
	}
	prefix := u.raw[:idx]
	for i := 0; i < len(prefix); i++ {
		if !isSchemeByte(prefix[i]) {
			return "", false
		}
	}
	return prefix, true
}

// authorityStart returns the index right after "scheme://" when a
// valid scheme is present, else 0.
func (u URI) authorityStart() int {
	if _, ok := u.Scheme(); ok {
		return strings.Index(u.raw, schemeSep) + len(schemeSep)
	}
	return 0
}

// authorityEnd returns the index of the first of '/', '?', '#' at or
// after start, or len(raw) if none appear.
func (u URI) authorityEnd(start int) int {
	rest := u.raw[start:]
	idx := strings.IndexAny(rest, "/?#")
	if idx == -1 {
		return len(u.raw)
	}
	return start + idx
}

// Host returns the run of characters between the (optional)
// authority start and the first of ':', '/', '?', '#', or end of
// string. Empty runs report false.
func (u URI) Host() (string, bool) {
	start := u.authorityStart()
	end := u.authorityEnd(start)

	hostEnd := end
	if idx := strings.IndexByte(u.raw[start:end], ':'); idx != -1 {
		hostEnd = start + idx
	}
	if hostEnd == start {
		return "", false
	}
	return u.raw[start:hostEnd], true
}

// Port returns the URI's port. Absent-port URIs default to 80;
// a malformed port (non-numeric, or out of the 0..65535 range)
// reports false.
func (u URI) Port() (uint16, bool) {
	start := u.authorityStart()
	end := u.authorityEnd(start)

	idx := strings.IndexByte(u.raw[start:end], ':')
	if idx == -1 {
		return 80, true
	}

	digits := u.raw[start+idx+1 : end]
	if digits == "" {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}

	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil || n > 65535 {
		return 0, false
	}
	return uint16(n), true
}

// HasPort reports whether the URI's authority carries an explicit
// ':' port segment, independent of whether the digits after it are
// well-formed. Port() defaults to 80 when this is false, a default
// that only suits the plain-HTTP scheme; callers that need a
// different scheme default (https's 443) must check HasPort first
// rather than trust Port's own (80, true) result.
func (u URI) HasPort() bool {
	start := u.authorityStart()
	end := u.authorityEnd(start)
	return strings.IndexByte(u.raw[start:end], ':') != -1
}

// Path returns the path segment: the first '/' after the authority
// up to '?', '#', or end. A missing path, an empty path, or a bare
// "/" all report false (see DESIGN.md Open Question 1).
func (u URI) Path() (string, bool) {
	start := u.authorityStart()
	pathStart := u.authorityEnd(start)
	if pathStart >= len(u.raw) || u.raw[pathStart] != '/' {
		return "", false
	}

	rest := u.raw[pathStart:]
	pathEnd := len(u.raw)
	if idx := strings.IndexAny(rest, "?#"); idx != -1 {
		pathEnd = pathStart + idx
	}

	path := u.raw[pathStart:pathEnd]
	if path == "" || path == "/" {
		return "", false
	}
	return path, true
}

// Query returns the text between '?' and '#' (or end); absent when
// no '?' appears.
func (u URI) Query() (string, bool) {
	idx := strings.IndexByte(u.raw, '?')
	if idx == -1 {
		return "", false
	}
	rest := u.raw[idx+1:]
	end := len(rest)
	if h := strings.IndexByte(rest, '#'); h != -1 {
		end = h
	}
	return rest[:end], true
}

// Fragment returns the text after '#'; absent when no '#' appears or
// nothing follows it.
func (u URI) Fragment() (string, bool) {
	idx := strings.IndexByte(u.raw, '#')
	if idx == -1 || idx == len(u.raw)-1 {
		return "", false
	}
	return u.raw[idx+1:], true
}
