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

// Package dashboard renders a minimal, redrawing progress table for
// in-flight downloads when standard output is a terminal. It owns no
// download logic; it only formats pool.Snapshot values handed to it.
package dashboard

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mattn/go-isatty"

	"github.com/packetd/fetchd/pool"
)

// IsTerminal reports whether f is attached to a terminal, accounting
// for both native ttys and Cygwin-style pty emulation.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Table redraws a progress table in place using ANSI cursor
// movement, one row per snapshot. It is intentionally unit-conversion-free and
// scroll-free — a full renderer is an external collaborator's job.
type Table struct {
	w        io.Writer
	lastRows int
}

// New returns a Table writing to w.
func New(w io.Writer) *Table {
	return &Table{w: w}
}

// Render clears the previously drawn rows and draws one line per
// snapshot, sorted by URI for a stable display order.
func (t *Table) Render(snapshots []pool.Snapshot) {
	for i := 0; i < t.lastRows; i++ {
		fmt.Fprint(t.w, "\x1b[1A\x1b[2K")
	}

	sorted := make([]pool.Snapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].URI.Less(sorted[j].URI) })

	for _, s := range sorted {
		if s.Ok {
			fmt.Fprintf(t.w, "%s  %d/%d bytes\n", s.URI.Full(), s.Read, s.Expected)
		} else {
			fmt.Fprintf(t.w, "%s  %d bytes\n", s.URI.Full(), s.Read)
		}
	}
	t.lastRows = len(sorted)
}

// Finish clears the table's rows without drawing a replacement,
// leaving the cursor where prior output can resume.
func (t *Table) Finish() {
	for i := 0; i < t.lastRows; i++ {
		fmt.Fprint(t.w, "\x1b[1A\x1b[2K")
	}
	t.lastRows = 0
}
