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
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
)

// Client reads one endpoint's log from a remote Server over a shared
// *grpc.ClientConn.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an established connection.
func NewClient(conn *grpc.ClientConn) *Client { return &Client{conn: conn} }

// Stream is an open read of an endpoint's log, yielding messages in
// order via Recv.
type Stream struct {
	cs grpc.ClientStream
}

// Read opens a streaming read of endpoint starting at fromSeq,
// selecting the package's custom codec via CallContentSubtype rather
// than relying on protobuf marshaling.
func (c *Client) Read(ctx context.Context, endpoint string, fromSeq uint64) (*Stream, error) {
	desc := &grpc.StreamDesc{StreamName: readMethodName, ServerStreams: true}
	cs, err := c.conn.NewStream(ctx, desc, fullMethod(), grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, errors.Wrap(err, "oplog/wire: opening stream")
	}
	req := &ReadRequest{Endpoint: endpoint, FromSeq: fromSeq}
	if err := cs.SendMsg(req); err != nil {
		return nil, errors.Wrap(err, "oplog/wire: sending ReadRequest")
	}
	if err := cs.CloseSend(); err != nil {
		return nil, errors.Wrap(err, "oplog/wire: closing send side")
	}
	return &Stream{cs: cs}, nil
}

// Recv returns the next ReadResponse, or io.EOF-wrapping status when
// the server ends the stream.
func (s *Stream) Recv() (*ReadResponse, error) {
	resp := new(ReadResponse)
	if err := s.cs.RecvMsg(resp); err != nil {
		return nil, err
	}
	return resp, nil
}
