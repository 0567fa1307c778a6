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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadRequestWireRoundTrip(t *testing.T) {
	req := &ReadRequest{Endpoint: "orders", FromSeq: 42}
	data, err := req.marshalWire()
	require.NoError(t, err)

	got := new(ReadRequest)
	require.NoError(t, got.unmarshalWire(data))
	require.Equal(t, req, got)
}

func TestReadRequestWireRejectsTruncated(t *testing.T) {
	req := &ReadRequest{Endpoint: "orders", FromSeq: 1}
	data, err := req.marshalWire()
	require.NoError(t, err)

	got := new(ReadRequest)
	require.Error(t, got.unmarshalWire(data[:len(data)-2]))
}

func TestReadResponseWireRoundTrip(t *testing.T) {
	resp := &ReadResponse{EpochID: 9, Seq: 3, Frame: []byte{1, 2, 3, 4}}
	data, err := resp.marshalWire()
	require.NoError(t, err)

	got := new(ReadResponse)
	require.NoError(t, got.unmarshalWire(data))
	require.Equal(t, resp, got)
}

func TestReadResponseWireRejectsTruncatedHeader(t *testing.T) {
	got := new(ReadResponse)
	require.Error(t, got.unmarshalWire([]byte{1, 2, 3}))
}

func TestCodecRoundTripsThroughRegisteredName(t *testing.T) {
	var c codec
	require.Equal(t, codecName, c.Name())

	req := &ReadRequest{Endpoint: "orders", FromSeq: 7}
	data, err := c.Marshal(req)
	require.NoError(t, err)

	got := new(ReadRequest)
	require.NoError(t, c.Unmarshal(data, got))
	require.Equal(t, req, got)
}

func TestCodecRejectsNonWireMessage(t *testing.T) {
	var c codec
	_, err := c.Marshal("not a wire message")
	require.Error(t, err)

	err = c.Unmarshal([]byte{}, "not a wire message")
	require.Error(t, err)
}
