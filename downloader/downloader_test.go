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

package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packetd/fetchd/confengine"
	"github.com/packetd/fetchd/transport"
	"github.com/packetd/fetchd/uri"
)

func TestOutputFilenameFromPath(t *testing.T) {
	name := outputFilename(uri.New("http://host.example/some/file.html"))
	assert.Equal(t, "file.html", name)
}

func TestOutputFilenameFallsBackToHost(t *testing.T) {
	name := outputFilename(uri.New("http://host.example"))
	assert.Equal(t, "host.example", name)
}

func TestOutputFilenameBarePathFallsBackToHost(t *testing.T) {
	name := outputFilename(uri.New("http://host.example/"))
	assert.Equal(t, "host.example", name)
}

func TestDefaultFactoryDispatchesByScheme(t *testing.T) {
	httpSock := DefaultFactory(uri.New("http://host.example/a"))
	httpsSock := DefaultFactory(uri.New("https://host.example/a"))

	assert.IsType(t, &transport.TCP{}, httpSock)
	assert.IsType(t, &transport.TLS{}, httpsSock)
}

func TestConfigUnpacksFromYAML(t *testing.T) {
	yaml := []byte(`
workers: 8
overwrite: true
outputDir: /tmp/out
logger:
  level: debug
  filename: /var/log/fetchd.log
metrics:
  enabled: true
  address: ":9100"
`)
	conf, err := confengine.LoadContent(yaml)
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, conf.Unpack(&cfg))

	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.Overwrite)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "/var/log/fetchd.log", cfg.Logger.Filename)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9100", cfg.Metrics.Address)
}
