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

// Package downloader is the thin orchestration facade over pool and
// fetcher: turning a stream of URI lines into either a set of pooled,
// concurrent file writes or a single sequential stream copy. All real
// work lives in uri, response, transport, fetcher, and pool.
package downloader

import (
	"bufio"
	"io"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/packetd/fetchd/common"
	"github.com/packetd/fetchd/fetcher"
	"github.com/packetd/fetchd/logger"
	"github.com/packetd/fetchd/metricsserver"
	"github.com/packetd/fetchd/pool"
	"github.com/packetd/fetchd/response"
	"github.com/packetd/fetchd/transport"
	"github.com/packetd/fetchd/uri"
)

// Config is the shape a --config YAML file unpacks into via
// confengine. Workers, Overwrite, OutputDir and Metrics mirror fetch
// command-line flags, and Logger's level and filename mirror the root
// log flags; a flag given explicitly on the command line wins over the
// file whatever its value. Headers and Logger's rotation settings have
// no flag; Logger's stdout setting is not read from the file.
type Config struct {
	Workers   int                  `config:"workers"`
	Overwrite bool                 `config:"overwrite"`
	OutputDir string               `config:"outputDir"`
	Headers   common.Options       `config:"headers"`
	Logger    logger.Options       `config:"logger"`
	Metrics   metricsserver.Config `config:"metrics"`
}

func newError(format string, args ...any) error {
	return errors.Errorf("downloader: "+format, args...)
}

// DefaultFactory dispatches http to plain TCP and https to TLS,
// per §6's reference socket-factory policy.
func DefaultFactory(u uri.URI) transport.Socket {
	scheme, _ := u.Scheme()
	if strings.EqualFold(scheme, "https") {
		return transport.NewTLS()
	}
	return transport.NewTCP()
}

// CompletionFunc is notified once per download attempt, after the
// facade has handled writing (or not writing) the body.
type CompletionFunc func(u uri.URI, resp *response.Response, err error)

// WriteIntoFiles starts a Pool and, for each URI read from lines,
// submits a task that writes the body to a derived output file and
// then calls onComplete. The caller observes progress via the
// returned Pool and must call Join to wait for completion. An
// optional common.Options supplies extra request headers applied to
// every download.
func WriteIntoFiles(lines io.Reader, outputDir string, overwrite bool, workers int, onComplete CompletionFunc, headers ...common.Options) *pool.Pool {
	p := pool.New(DefaultFactory, workers, headers...)

	scanner := bufio.NewScanner(lines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		u := uri.New(line)

		p.Add(u, func(resp *response.Response, err error) bool {
			if err != nil {
				logger.Errorf("download failed for %q: %v", u.Full(), err)
				if onComplete != nil {
					onComplete(u, nil, err)
				}
				return false
			}

			writeErr := writeBody(outputDir, u, resp.Body(), overwrite)
			if writeErr != nil {
				logger.Errorf("write failed for %q: %v", u.Full(), writeErr)
			}
			if onComplete != nil {
				onComplete(u, resp, writeErr)
			}
			return false
		})
	}
	if err := scanner.Err(); err != nil {
		logger.Errorf("downloader: error reading URI stream: %v", err)
	}

	return p
}

// WriteIntoStream runs one Fetcher at a time, in input order, writing
// each body directly to out. There is no pool and no concurrency. A
// failing URI is logged and skipped rather than aborting the whole
// run; every such failure is collected and returned together as one
// aggregated error so the caller can report a summary. An optional
// common.Options supplies extra request headers applied to every
// download.
func WriteIntoStream(lines io.Reader, out io.Writer, headers ...common.Options) error {
	var failures *multierror.Error

	scanner := bufio.NewScanner(lines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		u := uri.New(line)

		f := fetcher.New(DefaultFactory(u), headers...)
		resp, err := f.Download(u)
		if err != nil {
			logger.Errorf("download failed for %q: %v", u.Full(), err)
			failures = multierror.Append(failures, errors.Wrapf(err, "%s", u.Full()))
			continue
		}
		if _, err := out.Write(resp.Body()); err != nil {
			return errors.Wrapf(err, "downloader: write body for %q", u.Full())
		}
	}
	if err := scanner.Err(); err != nil {
		failures = multierror.Append(failures, err)
	}
	return failures.ErrorOrNil()
}

// outputFilename derives a destination filename from a URI's path
// basename, falling back to its host when no path is present.
func outputFilename(u uri.URI) string {
	if p, ok := u.Path(); ok {
		base := path.Base(p)
		if base != "" && base != "." && base != "/" {
			return base
		}
	}
	if host, ok := u.Host(); ok {
		return host
	}
	return "download"
}

func writeBody(outputDir string, u uri.URI, body []byte, overwrite bool) error {
	name := outputFilename(u)
	full := name
	if outputDir != "" {
		full = path.Join(outputDir, name)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	f, err := os.OpenFile(full, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return newError("refusing to overwrite existing file %q (use --force)", full)
		}
		return errors.Wrapf(err, "downloader: open %q", full)
	}
	defer f.Close()

	if _, err := f.Write(body); err != nil {
		return errors.Wrapf(err, "downloader: write %q", full)
	}
	return nil
}
