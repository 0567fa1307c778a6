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

package wire

import (
	"io"
	"time"

	"github.com/cockroachdb/dataflow/internal/oplog"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// pollInterval is how often Read re-checks for newly appended records
// once it has caught up to the end of an endpoint's log.
const pollInterval = 250 * time.Millisecond

// Server implements LogReader over a set of open endpoint logs,
// satisfying the gRPC log reader contract of spec.md §6.3.
type Server struct {
	// Logs returns the open oplog.Log for endpoint, or ok=false if no
	// such endpoint is configured.
	Logs func(endpoint string) (log *oplog.Log, ok bool)
}

var _ LogReader = (*Server)(nil)

// Read implements LogReader: it streams ReadResponse messages for
// req.Endpoint starting at req.FromSeq, in order, tailing the log as
// new records are appended until the client disconnects or the server
// stream's context is cancelled.
func (s *Server) Read(req *ReadRequest, stream grpc.ServerStream) error {
	log, ok := s.Logs(req.Endpoint)
	if !ok {
		return status.Errorf(codes.NotFound, "oplog: unknown endpoint %q", req.Endpoint)
	}

	reader, err := log.NewReader(req.FromSeq)
	if err != nil {
		return status.Errorf(codes.Internal, "oplog: opening reader: %v", err)
	}
	defer reader.Close()

	ctx := stream.Context()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		rec, err := reader.Next()
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				continue
			}
		}
		if err != nil {
			return errors.Wrap(err, "oplog: reading record")
		}

		frame, err := oplog.EncodeFrame(log.Schema(), rec)
		if err != nil {
			return status.Errorf(codes.Internal, "oplog: re-encoding record: %v", err)
		}
		resp := &ReadResponse{EpochID: rec.EpochID, Seq: rec.Seq, Frame: frame}
		if err := stream.SendMsg(resp); err != nil {
			return err
		}
		reader.Ack()
	}
}
