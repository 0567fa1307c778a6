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

// Package wire implements the gRPC log reader contract of spec.md
// §6.3 without protobuf code generation: the service is described by a
// hand-built grpc.ServiceDesc, and messages implement wireMessage
// directly rather than proto.Message, carried by a small codec
// registered under its own content-subtype.
package wire

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc/encoding"
)

func init() {
	encoding.RegisterCodec(codec{})
}

// codecName is registered with grpc's encoding package and selected
// per-call via grpc.CallContentSubtype, the same mechanism grpc-go
// itself documents for carrying non-protobuf payloads over a standard
// grpc.Server/ClientConn.
const codecName = "dataflow-oplog"

// wireMessage is the minimal contract our hand-rolled codec requires:
// every request/response type marshals itself to and from bytes.
type wireMessage interface {
	marshalWire() ([]byte, error)
	unmarshalWire([]byte) error
}

// codec adapts wireMessage to grpc's encoding.Codec, letting
// grpc.Server and grpc.ClientConn move ReadRequest/ReadResponse values
// over the wire without any protobuf dependency.
type codec struct{}

func (codec) Name() string { return codecName }

func (codec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, errors.Errorf("oplog/wire: %T does not implement wireMessage", v)
	}
	return m.marshalWire()
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return errors.Errorf("oplog/wire: %T does not implement wireMessage", v)
	}
	return m.unmarshalWire(data)
}
