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

// Package metricsserver exposes the Pool's prometheus metrics over
// HTTP, for the CLI's optional --metrics.enabled mode. It has no
// bearing on download semantics; it is a pure observer.
package metricsserver

import (
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/packetd/fetchd/logger"
)

// Config configures the metrics HTTP server.
type Config struct {
	Enabled bool          `config:"enabled"`
	Address string        `config:"address"`
	Pprof   bool          `config:"pprof"`
	Timeout time.Duration `config:"timeout"`
}

type Server struct {
	config Config
	router *mux.Router
	server *http.Server
}

// New builds a Server. Returns a nil *Server when conf.Enabled is
// false; callers must check before using it.
func New(conf Config) *Server {
	if !conf.Enabled {
		return nil
	}
	if conf.Timeout == 0 {
		conf.Timeout = 5 * time.Second
	}

	router := mux.NewRouter()
	s := &Server{
		config: conf,
		router: router,
		server: &http.Server{
			Handler:      router,
			ReadTimeout:  conf.Timeout,
			WriteTimeout: conf.Timeout,
		},
	}
	s.router.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.Handler())
	if conf.Pprof {
		s.registerPprofRoutes()
	}
	return s
}

// ListenAndServe blocks serving the metrics endpoint until the
// listener fails or Shutdown is called from another goroutine.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	logger.Infof("metrics server listening on %s", s.config.Address)
	return s.server.Serve(l)
}

func (s *Server) Shutdown() error {
	return s.server.Close()
}

func (s *Server) registerPprofRoutes() {
	s.router.Methods(http.MethodGet).Path("/debug/pprof/cmdline").HandlerFunc(pprof.Cmdline)
	s.router.Methods(http.MethodGet).Path("/debug/pprof/profile").HandlerFunc(pprof.Profile)
	s.router.Methods(http.MethodGet).Path("/debug/pprof/symbol").HandlerFunc(pprof.Symbol)
	s.router.Methods(http.MethodGet).Path("/debug/pprof/trace").HandlerFunc(pprof.Trace)
	s.router.Methods(http.MethodGet).Path("/debug/pprof/{other}").HandlerFunc(pprof.Index)
}
