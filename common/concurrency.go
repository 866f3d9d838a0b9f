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

package common

import (
	"runtime"
	"time"
)

// DefaultMaxWorkers resolves the Pool's worker bound when the caller
// requests 0: hardware parallelism, falling back to 2 when the
// runtime can't report it.
func DefaultMaxWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n <= 0 {
		return 2
	}
	return n
}

var started int64

func init() {
	started = time.Now().Unix()
}

// Started returns the process start timestamp (unix seconds).
func Started() int64 {
	return started
}
