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

package pool

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/fetchd/response"
	"github.com/packetd/fetchd/transport"
	"github.com/packetd/fetchd/uri"
)

// fakeSocket returns a canned, deterministic response body keyed by
// the URI it was asked to connect to; it performs no real I/O.
type fakeSocket struct {
	body string
}

func (s *fakeSocket) Connect(uri.URI) error { return nil }
func (s *fakeSocket) ReadUntil(delim []byte) ([]byte, error) {
	return []byte("HTTP/1.1 200 OK\r\n\r\n"), nil
}
func (s *fakeSocket) ReadCount(n int) ([]byte, error)  { return []byte(s.body)[:n], nil }
func (s *fakeSocket) ReadToEnd() ([]byte, error)       { return []byte(s.body), nil }
func (s *fakeSocket) Write(b []byte) error             { return nil }
func (s *fakeSocket) Progress() (int64, int64, bool)   { return int64(len(s.body)), 0, false }
func (s *fakeSocket) Close() error                     { return nil }

func bodyFactory(bodies map[string]string) transport.Factory {
	return func(u uri.URI) transport.Socket {
		return &fakeSocket{body: bodies[u.Full()]}
	}
}

func TestPoolConcurrencyDeliversEveryTask(t *testing.T) {
	bodies := make(map[string]string, 6)
	for i := 0; i < 6; i++ {
		bodies[fmt.Sprintf("http://host/%d", i)] = fmt.Sprintf("body-%d", i)
	}

	p := New(bodyFactory(bodies), 2)

	var mu sync.Mutex
	got := make(map[string]string)

	for u, want := range bodies {
		u, want := u, want
		p.Add(uri.New(u), func(resp *response.Response, err error) bool {
			require.NoError(t, err)
			mu.Lock()
			got[u] = string(resp.Body())
			mu.Unlock()
			_ = want
			return false
		})
	}

	p.Join()

	assert.Equal(t, len(bodies), len(got))
	for u, want := range bodies {
		assert.Equal(t, want, got[u])
	}
}

func TestPoolBoundNeverExceedsMaxWorkers(t *testing.T) {
	bodies := map[string]string{}
	for i := 0; i < 20; i++ {
		bodies[fmt.Sprintf("http://host/%d", i)] = "x"
	}
	p := New(bodyFactory(bodies), 3)

	var mu sync.Mutex
	peak := 0

	for u := range bodies {
		p.Add(uri.New(u), func(resp *response.Response, err error) bool {
			mu.Lock()
			if n := len(p.Progress()); n > peak {
				peak = n
			}
			mu.Unlock()
			return false
		})
	}
	p.Join()

	assert.LessOrEqual(t, peak, 3)
}

func TestPoolRejectsAfterJoinStopsAccepting(t *testing.T) {
	p := New(bodyFactory(nil), 1)
	p.Join()

	called := false
	p.Add(uri.New("http://host/after-join"), func(*response.Response, error) bool {
		called = true
		return false
	})

	time.Sleep(10 * time.Millisecond)
	assert.False(t, called)
}

func TestPoolRetryRunsCallbackAgain(t *testing.T) {
	bodies := map[string]string{"http://host/retry": "payload"}
	p := New(bodyFactory(bodies), 1)

	attempts := 0
	var mu sync.Mutex
	p.Add(uri.New("http://host/retry"), func(resp *response.Response, err error) bool {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		return n < 3
	})
	p.Join()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestPoolCloseTerminatesCleanly(t *testing.T) {
	bodies := map[string]string{"http://host/a": "x", "http://host/b": "y"}
	p := New(bodyFactory(bodies), 2)

	for u := range bodies {
		p.Add(uri.New(u), func(*response.Response, error) bool { return true })
	}

	done := make(chan struct{})
	go func() {
		_ = p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestPoolIsIdleInitially(t *testing.T) {
	p := New(bodyFactory(nil), 1)
	assert.True(t, p.IsIdle())
}
