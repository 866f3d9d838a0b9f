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

// Package cmd wires the fetchd command-line front end: a cobra
// command tree over the downloader/pool/fetcher core.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/packetd/fetchd/logger"
)

var logOpt logger.Options

var rootCmd = &cobra.Command{
	Use:   "fetchd",
	Short: "Concurrent HTTP/1.1 downloader",
	Long: `fetchd fetches one or more HTTP/1.1 resources over plain TCP or TLS,
decodes the response body per HTTP framing rules, optionally decompresses it,
and writes the result to files or to standard output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetOptions(logOpt)
		return nil
	},
}

// Execute runs the command tree; it is the sole entry point called
// from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fetchd: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logOpt.Stdout, "log.stdout", true, "Write logs to stdout")
	rootCmd.PersistentFlags().StringVar(&logOpt.Filename, "log.file", "", "Path to log file (disabled if empty)")
	rootCmd.PersistentFlags().StringVar(&logOpt.Level, "log.level", string(logger.LevelInfo), "Log level: debug, info, warn, error")
}
