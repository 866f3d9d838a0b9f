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

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/packetd/fetchd/common"
	"github.com/packetd/fetchd/confengine"
	"github.com/packetd/fetchd/downloader"
	"github.com/packetd/fetchd/internal/dashboard"
	"github.com/packetd/fetchd/internal/fasttime"
	"github.com/packetd/fetchd/internal/json"
	"github.com/packetd/fetchd/internal/sigs"
	"github.com/packetd/fetchd/logger"
	"github.com/packetd/fetchd/metricsserver"
	"github.com/packetd/fetchd/response"
	"github.com/packetd/fetchd/uri"
)

type fetchCmdConfig struct {
	File       string
	ConfigPath string
	Force      bool
	Threads    int
	OutputDir  string
	JSON       bool

	MetricsEnabled bool
	MetricsAddr    string

	Headers common.Options
}

var fetchConfig fetchCmdConfig

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Download one or more HTTP/1.1 resources concurrently",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFetch,
	Example: "  # fetchd fetch -f urls.txt -t 8\n" +
		"  fetchd fetch http://example.com/file.bin",
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchConfig.File, "file", "f", "", "Read URIs from file (default: stdin if piped, else the positional URL)")
	fetchCmd.Flags().StringVar(&fetchConfig.ConfigPath, "config", "", "Load workers/overwrite/outputDir/logger/metrics defaults from a YAML file")
	fetchCmd.Flags().BoolVar(&fetchConfig.Force, "force", false, "Permit overwriting existing output files")
	fetchCmd.Flags().IntVarP(&fetchConfig.Threads, "threads", "t", 0, "Worker count, 0 = auto")
	fetchCmd.Flags().StringVarP(&fetchConfig.OutputDir, "output-dir", "o", "", "Directory to write downloaded files into")
	fetchCmd.Flags().BoolVar(&fetchConfig.JSON, "json", false, "Emit one JSON record per completed download instead of a progress table")
	fetchCmd.Flags().BoolVar(&fetchConfig.MetricsEnabled, "metrics.enabled", false, "Serve prometheus metrics over HTTP")
	fetchCmd.Flags().StringVar(&fetchConfig.MetricsAddr, "metrics.address", ":9090", "Address for the metrics server")
	rootCmd.AddCommand(fetchCmd)
}

// completionRecord is the --json line emitted per finished download.
type completionRecord struct {
	URI        string `json:"uri"`
	Timestamp  int64  `json:"timestamp"`
	StatusCode int    `json:"status_code,omitempty"`
	Bytes      int    `json:"bytes,omitempty"`
	Error      string `json:"error,omitempty"`
}

func runFetch(cmd *cobra.Command, args []string) error {
	if err := applyConfigFile(cmd, fetchConfig.ConfigPath); err != nil {
		return err
	}

	input, err := resolveInput(fetchConfig.File, args)
	if err != nil {
		return err
	}
	defer input.Close()

	if ms := metricsserver.New(metricsserver.Config{Enabled: fetchConfig.MetricsEnabled, Address: fetchConfig.MetricsAddr}); ms != nil {
		go func() {
			if err := ms.ListenAndServe(); err != nil {
				logger.Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	piped := !dashboard.IsTerminal(os.Stdout)

	if piped {
		if err := downloader.WriteIntoStream(input, os.Stdout, fetchConfig.Headers); err != nil {
			logger.Errorf("fetchd: completed with failures: %v", err)
		}
		return nil
	}

	table := dashboard.New(os.Stdout)
	p := downloader.WriteIntoFiles(input, fetchConfig.OutputDir, fetchConfig.Force, fetchConfig.Threads, func(u uri.URI, resp *response.Response, downloadErr error) {
		emitCompletion(u, resp, downloadErr)
	}, fetchConfig.Headers)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	term := sigs.Terminate()
	done := make(chan struct{})
	go func() {
		p.Join()
		close(done)
	}()

	for {
		select {
		case <-ticker.C:
			if !fetchConfig.JSON {
				table.Render(p.Progress())
			}
		case <-term:
			logger.Infof("fetchd: interrupted, waiting for in-flight downloads to finish")
			p.Close()
			<-done
			table.Finish()
			return nil
		case <-done:
			table.Finish()
			return nil
		}
	}
}

func emitCompletion(u uri.URI, resp *response.Response, downloadErr error) {
	if fetchConfig.JSON {
		rec := completionRecord{URI: u.Full(), Timestamp: fasttime.UnixTimestamp()}
		if downloadErr != nil {
			rec.Error = downloadErr.Error()
		} else {
			rec.StatusCode = resp.StatusCode()
			rec.Bytes = len(resp.Body())
		}
		b, err := json.Marshal(rec)
		if err != nil {
			logger.Errorf("failed to marshal completion record for %q: %v", u.Full(), err)
			return
		}
		fmt.Println(string(b))
		return
	}
	if downloadErr != nil {
		fmt.Fprintf(os.Stderr, "fetchd: %s: %v\n", u.Full(), downloadErr)
	}
}

// applyConfigFile loads path (when non-empty) via confengine and
// unpacks it into a downloader.Config, filling any fetch flag the
// user did not set explicitly on the command line. An explicit flag
// always wins over the config file.
func applyConfigFile(cmd *cobra.Command, path string) error {
	if path == "" {
		return nil
	}

	conf, err := confengine.LoadConfigPath(path)
	if err != nil {
		return fmt.Errorf("fetchd: load config %q: %w", path, err)
	}

	var fileConf downloader.Config
	if err := conf.Unpack(&fileConf); err != nil {
		return fmt.Errorf("fetchd: unpack config %q: %w", path, err)
	}

	flags := cmd.Flags()
	if !flags.Changed("threads") && fileConf.Workers != 0 {
		fetchConfig.Threads = fileConf.Workers
	}
	if !flags.Changed("force") && fileConf.Overwrite {
		fetchConfig.Force = fileConf.Overwrite
	}
	if !flags.Changed("output-dir") && fileConf.OutputDir != "" {
		fetchConfig.OutputDir = fileConf.OutputDir
	}
	if !flags.Changed("metrics.enabled") && fileConf.Metrics.Enabled {
		fetchConfig.MetricsEnabled = fileConf.Metrics.Enabled
	}
	if !flags.Changed("metrics.address") && fileConf.Metrics.Address != "" {
		fetchConfig.MetricsAddr = fileConf.Metrics.Address
	}
	if len(fileConf.Headers) > 0 {
		fetchConfig.Headers = fileConf.Headers
	}
	// log.* are persistent flags on rootCmd, already applied to logOpt
	// by PersistentPreRunE before this RunE runs; only fill in what the
	// user did not pass explicitly, then re-apply once more. log.stdout
	// is left to the CLI flag alone: its zero value (false) is
	// indistinguishable from "omitted from the config file" once
	// unpacked, so a config file can only disable it via the flag.
	root := cmd.Root().PersistentFlags()
	changed := false
	if !root.Changed("log.file") && fileConf.Logger.Filename != "" {
		logOpt.Filename = fileConf.Logger.Filename
		changed = true
	}
	if !root.Changed("log.level") && fileConf.Logger.Level != "" {
		logOpt.Level = fileConf.Logger.Level
		changed = true
	}
	if fileConf.Logger.MaxSize != 0 {
		logOpt.MaxSize = fileConf.Logger.MaxSize
		changed = true
	}
	if fileConf.Logger.MaxAge != 0 {
		logOpt.MaxAge = fileConf.Logger.MaxAge
		changed = true
	}
	if fileConf.Logger.MaxBackups != 0 {
		logOpt.MaxBackups = fileConf.Logger.MaxBackups
		changed = true
	}
	if changed {
		logger.SetOptions(logOpt)
	}
	return nil
}

func resolveInput(file string, positional []string) (io.ReadCloser, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	if stat, err := os.Stdin.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		return io.NopCloser(os.Stdin), nil
	}

	if len(positional) == 1 {
		return io.NopCloser(strings.NewReader(positional[0] + "\n")), nil
	}

	return nil, fmt.Errorf("no input: pass a URL, use -f, or pipe URIs on stdin")
}
