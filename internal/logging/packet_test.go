// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestPacketLoggerInbound(t *testing.T) {
	var buf bytes.Buffer
	p := NewPacketLogger(New(&buf, "debug", "json"))

	p.Inbound("s1", &core.InboundMessage{
		ID:            "m1",
		RemoteAddress: "1234@s.whatsapp.net",
		Upsert:        core.UpsertNotify,
		Payload:       json.RawMessage(`{"conversation":"hi"}`),
	}, true)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "packet", rec["msg"])
	assert.Equal(t, "inbound", rec["direction"])
	assert.Equal(t, "s1", rec["session_id"])
	assert.Equal(t, "m1", rec["message_id"])
	assert.Equal(t, true, rec["forwarded"])
	assert.NotContains(t, buf.String(), "conversation")
}

func TestPacketLoggerOutboundError(t *testing.T) {
	var buf bytes.Buffer
	p := NewPacketLogger(New(&buf, "debug", "text"))

	p.Outbound("s1", "1234@s.whatsapp.net", 12, nil, errors.New("boom"))

	assert.Contains(t, buf.String(), "direction=outbound")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestPacketLoggerNilSafe(t *testing.T) {
	var p *PacketLogger
	p.Inbound("s1", &core.InboundMessage{}, false)
	p.Outbound("s1", "a", 0, nil, nil)
}
