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

// Package pool drives many fetcher.Fetcher instances concurrently
// over a bounded worker set, admitting URIs from a FIFO queue and
// reporting aggregate progress.
package pool

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/packetd/fetchd/common"
	"github.com/packetd/fetchd/fetcher"
	"github.com/packetd/fetchd/internal/rescue"
	"github.com/packetd/fetchd/logger"
	"github.com/packetd/fetchd/response"
	"github.com/packetd/fetchd/transport"
	"github.com/packetd/fetchd/uri"
)

// Callback observes the outcome of one download attempt and decides
// whether the Pool should retry the same URI. It must not call Add,
// Join, or Close on the owning Pool (§4.7 "Callback contract").
type Callback func(resp *response.Response, err error) (retry bool)

var (
	queueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: common.App,
		Name:      "queue_length",
		Help:      "tasks waiting for a free worker",
	})
	activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: common.App,
		Name:      "active_workers",
		Help:      "tasks currently assigned a worker",
	})
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "downloads_total",
		Help:      "download attempts by outcome",
	}, []string{"outcome"})
	bytesReadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "bytes_read_total",
		Help:      "bytes read off the wire across all completed download attempts",
	})
)

type task struct {
	uri      uri.URI
	callback Callback
}

type runningEntry struct {
	taskID  string // UUID of this admission (D3); its hash keys running
	uri     uri.URI
	fetcher *fetcher.Fetcher
}

// Snapshot is one entry of a Progress() result.
type Snapshot struct {
	URI      uri.URI
	Read     int64
	Expected int64
	Ok       bool
}

// Pool is a bounded worker pool over a URI queue (§4.7). The zero
// value is not usable; construct with New.
type Pool struct {
	factory    transport.Factory
	maxWorkers int
	headers    common.Options

	qMu   sync.Mutex
	queue []task

	rMu sync.Mutex
	cond *sync.Cond
	// running is keyed by xxhash.Sum64String(taskID) rather than the
	// taskID string itself, so Progress() polling under R never
	// rehashes a string on the hot path.
	running map[uint64]*runningEntry

	shouldStop bool
	accepting  bool
	idle       bool

	wg sync.WaitGroup
}

// New constructs a Pool. maxWorkers == 0 resolves to hardware
// parallelism, falling back to 2. An optional common.Options supplies
// extra headers applied to every request the pool's fetchers send.
func New(factory transport.Factory, maxWorkers int, headers ...common.Options) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = common.DefaultMaxWorkers()
	}
	p := &Pool{
		factory:    factory,
		maxWorkers: maxWorkers,
		running:    make(map[uint64]*runningEntry),
		accepting:  true,
		idle:       true,
	}
	if len(headers) > 0 {
		p.headers = headers[0]
	}
	p.cond = sync.NewCond(&p.rMu)
	return p
}

// Add enqueues (uri, callback). Silently dropped when the pool is no
// longer accepting new work.
func (p *Pool) Add(u uri.URI, cb Callback) {
	p.rMu.Lock()
	accepting := p.accepting && !p.shouldStop
	p.rMu.Unlock()

	if !accepting {
		downloadsTotal.WithLabelValues("rejected").Inc()
		logger.Debugf("pool: rejected %q (hash=%d), not accepting", u.Full(), xxhash.Sum64String(u.Full()))
		return
	}

	p.qMu.Lock()
	p.queue = append(p.queue, task{uri: u, callback: cb})
	p.qMu.Unlock()

	p.rMu.Lock()
	p.idle = false
	p.rMu.Unlock()

	p.promote()
}

// IsIdle reports whether both the queue and the running set are
// empty.
func (p *Pool) IsIdle() bool {
	p.rMu.Lock()
	defer p.rMu.Unlock()
	return p.idle
}

// Progress snapshots every in-flight fetcher's byte counters.
// Multiple entries may share a URI when it is being retried
// concurrently with a fresh admission of the same URI.
func (p *Pool) Progress() []Snapshot {
	p.rMu.Lock()
	defer p.rMu.Unlock()

	out := make([]Snapshot, 0, len(p.running))
	for _, e := range p.running {
		read, expected, ok := e.fetcher.Progress()
		out = append(out, Snapshot{URI: e.uri, Read: read, Expected: expected, Ok: ok})
	}
	return out
}

// Join stops admitting new tasks and blocks until the pool reaches
// idle, then waits for every worker goroutine to exit. It uses a
// condition variable rather than polling is_idle (§9 design notes).
func (p *Pool) Join() {
	p.rMu.Lock()
	p.accepting = false
	for !p.idle {
		p.cond.Wait()
	}
	p.rMu.Unlock()
	p.wg.Wait()
}

// Close forces an immediate shutdown: in-flight workers finish their
// current download attempt (callbacks still run) but no retry or
// promotion occurs afterward. Close blocks until every worker has
// exited.
func (p *Pool) Close() error {
	p.rMu.Lock()
	p.shouldStop = true
	p.accepting = false
	p.rMu.Unlock()

	p.qMu.Lock()
	p.queue = nil
	p.qMu.Unlock()

	p.wg.Wait()
	return nil
}

// promote locks Q then R (never the reverse — §5 lock order) and
// starts workers for as many queued tasks as there is capacity for,
// then recomputes idle.
func (p *Pool) promote() {
	p.qMu.Lock()
	p.rMu.Lock()

	for len(p.running) < p.maxWorkers && len(p.queue) > 0 {
		t := p.queue[0]
		p.queue = p.queue[1:]

		taskID := uuid.NewString()
		key := xxhash.Sum64String(taskID)
		sock := p.factory(t.uri)
		entry := &runningEntry{taskID: taskID, uri: t.uri, fetcher: fetcher.New(sock, p.headers)}
		p.running[key] = entry

		p.wg.Add(1)
		go p.runWorker(key, entry, t.callback)
	}

	queueLength.Set(float64(len(p.queue)))
	activeWorkers.Set(float64(len(p.running)))

	if len(p.queue) == 0 && len(p.running) == 0 {
		p.idle = true
		p.cond.Broadcast()
	}

	p.rMu.Unlock()
	p.qMu.Unlock()
}

// runWorker executes the task loop of §4.7: download, hand the
// result to the callback, retry until told not to or until the pool
// is stopping.
func (p *Pool) runWorker(key uint64, entry *runningEntry, cb Callback) {
	defer p.wg.Done()
	defer p.finish(key)
	defer rescue.HandleCrash()

	for {
		resp, err := entry.fetcher.Download(entry.uri)
		retry := cb(resp, err)

		read, _, _ := entry.fetcher.LastProgress()
		bytesReadTotal.Add(float64(read))

		p.rMu.Lock()
		stop := p.shouldStop
		p.rMu.Unlock()

		if retry {
			downloadsTotal.WithLabelValues("retried").Inc()
		} else {
			downloadsTotal.WithLabelValues("completed").Inc()
		}

		if !retry || stop {
			break
		}
	}
}

// finish removes the worker's entry from running, then either
// promotes the next queued task or, on shutdown, recomputes idle
// directly.
func (p *Pool) finish(key uint64) {
	p.rMu.Lock()
	delete(p.running, key)
	stop := p.shouldStop
	p.rMu.Unlock()

	if stop {
		p.rMu.Lock()
		if len(p.running) == 0 {
			p.idle = true
			p.cond.Broadcast()
		}
		p.rMu.Unlock()
		return
	}

	p.promote()
}
