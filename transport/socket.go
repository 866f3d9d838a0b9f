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

// Package transport abstracts the buffered byte transport a Fetcher
// reads and writes over: plain TCP and TLS, behind one Socket
// contract.
package transport

import "github.com/packetd/fetchd/uri"

// Socket is the contract every concrete transport satisfies. A Socket
// is single-threaded: no two goroutines may call its methods
// concurrently, and it is used by exactly one Fetcher at a time.
type Socket interface {
	// Connect resolves the URI's host, establishes the transport,
	// and arms the progress counters. On failure the Socket is left
	// in a disconnected state and may be retried or discarded.
	Connect(u uri.URI) error

	// ReadUntil reads until (and including) the first occurrence of
	// delim, buffering any bytes read past it for later calls.
	ReadUntil(delim []byte) ([]byte, error)

	// ReadCount returns exactly n bytes, draining the internal
	// buffer first.
	ReadCount(n int) ([]byte, error)

	// ReadToEnd reads until the peer closes the connection.
	ReadToEnd() ([]byte, error)

	// Write writes b in full, retrying short writes.
	Write(b []byte) error

	// Progress reports the cumulative bytes read and, when
	// estimable, the bytes expected. ok is false when the socket
	// cannot estimate (or is not connected).
	Progress() (read int64, expected int64, ok bool)

	// Close releases the underlying file descriptor or TLS session.
	// Safe to call multiple times.
	Close() error
}

// Factory builds a Socket for a given URI, typically dispatching on
// scheme (http → TCP, https → TLS).
type Factory func(u uri.URI) Socket
