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

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenSourceRejectsUnknownConnectionKind(t *testing.T) {
	_, _, err := openSource(context.Background(), ConnectionConfig{Kind: "bogus"}, SourceConfig{Name: "orders"})
	require.Error(t, err)
}

func TestOpenSinkRejectsUnknownConnectionKind(t *testing.T) {
	_, err := openSink(context.Background(), ConnectionConfig{Kind: "bogus"}, EndpointConfig{Name: "out"})
	require.Error(t, err)
}
