// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Command dataflow hosts a pipeline.Config as a long-running process:
// it loads a JSON pipeline description, wires it with pipeline.Start,
// serves its operation logs over gRPC, and runs until signaled or a
// node fails.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	grpcAddr    string
	metricsAddr string

	rootCmd = &cobra.Command{
		Use:   "dataflow",
		Short: "Run a streaming SQL dataflow pipeline",
	}
)

func main() {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Build and run a pipeline from a configuration file until it exits or is signaled",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(configPath, grpcAddr, metricsAddr)
		},
	}
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the pipeline configuration file (required)")
	runCmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":7654", "listen address for the operation log gRPC reader")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "listen address for the Prometheus /metrics endpoint")
	_ = runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Build a pipeline's dag without running it, reporting any configuration error",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePipeline(configPath)
		},
	}
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the pipeline configuration file (required)")
	_ = validateCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(validateCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the dataflow engine version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// version is overridden at link time with -ldflags "-X main.version=...".
var version = "dev"
