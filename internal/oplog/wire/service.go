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
	"google.golang.org/grpc"
)

// ServiceName is the gRPC service path segment for the log reader.
const ServiceName = "dataflow.oplog.Log"

// readMethodName is the single streaming method the service exposes.
const readMethodName = "Read"

// LogReader is implemented by the log-serving side: one Go-native
// interface standing in for what protoc would otherwise generate as
// the server interface.
type LogReader interface {
	Read(req *ReadRequest, stream grpc.ServerStream) error
}

func readHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(ReadRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(LogReader).Read(req, stream)
}

// ServiceDesc is the hand-built equivalent of what protoc-gen-go-grpc
// would generate for a single server-streaming RPC, registered with a
// grpc.Server via RegisterService(&ServiceDesc, impl).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LogReader)(nil),
	Methods:     nil,
	Streams: []grpc.StreamDesc{
		{
			StreamName:    readMethodName,
			Handler:       readHandler,
			ServerStreams: true,
		},
	},
	Metadata: "internal/oplog/wire/service.go",
}

// fullMethod is the ":path" pseudo-header grpc.ClientConn.NewStream
// needs: "/<service>/<method>".
func fullMethod() string {
	return "/" + ServiceName + "/" + readMethodName
}

// RegisterLogReader registers impl against s, the equivalent of the
// generated RegisterXxxServer function protoc-gen-go-grpc would
// otherwise produce.
func RegisterLogReader(s *grpc.Server, impl LogReader) {
	s.RegisterService(&ServiceDesc, impl)
}
