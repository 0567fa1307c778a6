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

package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/dataflow/internal/engine/dag"
	"github.com/cockroachdb/dataflow/internal/oplog/wire"
	"github.com/cockroachdb/dataflow/internal/pipeline"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// exitBuildFailure and exitPipelineFailure are the process exit codes
// of spec.md §6.4: 0 is returned implicitly by a nil error.
const (
	exitPipelineFailure = 1
	exitBuildFailure    = 2
)

// buildError marks a configuration or dag-construction failure,
// distinct from a failure of an already-running pipeline, so
// exitCodeFor can tell the two apart.
type buildError struct{ cause error }

func (e *buildError) Error() string { return e.cause.Error() }
func (e *buildError) Unwrap() error { return e.cause }

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var be *buildError
	if errors.As(err, &be) {
		return exitBuildFailure
	}
	return exitPipelineFailure
}

func loadConfig(path string) (pipeline.Config, error) {
	var cfg pipeline.Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "dataflow: opening configuration file")
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrap(err, "dataflow: parsing configuration file")
	}
	return cfg, nil
}

// validatePipeline builds the dag for cfg without running it, surfacing
// any configuration error as an exitBuildFailure.
func validatePipeline(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return &buildError{err}
	}
	if _, err := dagOnly(cfg); err != nil {
		return &buildError{err}
	}
	log.Info("dataflow: configuration is valid")
	return nil
}

// dagOnly builds just the dag.Dag half of Start's wiring, for validate's
// use. It still opens every source's connection to resolve its schema;
// it skips the checkpoint store, the endpoint connections, and the
// operation logs.
func dagOnly(cfg pipeline.Config) (*dag.Dag, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bundle, cleanup, err := pipeline.ProvideSources(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	d, _, err := pipeline.ProvideDag(cfg, bundle)
	return d, err
}

// runPipeline loads cfg, wires and runs the pipeline, and serves its
// operation logs over gRPC at grpcAddr and Prometheus metrics at
// metricsAddr, until ctx is canceled by SIGINT/SIGTERM or a node fails.
func runPipeline(path, grpcAddr, metricsAddr string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return &buildError{err}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, cleanup, err := pipeline.Start(ctx, cfg)
	if err != nil {
		return &buildError{err}
	}
	defer cleanup()

	go serveMetrics(metricsAddr)
	lis, grpcServer, err := serveOplog(grpcAddr, p)
	if err != nil {
		return &buildError{err}
	}
	defer grpcServer.Stop()
	defer lis.Close()

	log.WithField("config", path).Info("dataflow: pipeline starting")
	if err := p.Run(ctx); err != nil {
		return errors.Wrap(err, "dataflow: pipeline exited with error")
	}
	log.Info("dataflow: pipeline stopped cleanly")
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Warn("dataflow: metrics server exited")
	}
}

func serveOplog(addr string, p *pipeline.Pipeline) (net.Listener, *grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dataflow: binding oplog listener")
	}
	srv := grpc.NewServer()
	wire.RegisterLogReader(srv, &wire.Server{Logs: p.Log})
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.WithError(err).Warn("dataflow: oplog server exited")
		}
	}()
	return lis, srv, nil
}
