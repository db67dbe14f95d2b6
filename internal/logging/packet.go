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
	"log/slog"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

// PacketLogger records per-message metadata. Payload bodies are never logged.
type PacketLogger struct {
	logger *slog.Logger
}

func NewPacketLogger(logger *slog.Logger) *PacketLogger {
	return &PacketLogger{logger: logger}
}

func (p *PacketLogger) Inbound(sessionID string, msg *core.InboundMessage, forwarded bool) {
	if p == nil || msg == nil {
		return
	}
	p.logger.Debug("packet",
		"direction", "inbound",
		"session_id", sessionID,
		"address", msg.RemoteAddress,
		"message_id", msg.ID,
		"upsert", string(msg.Upsert),
		"from_me", msg.FromMe,
		"forwarded", forwarded,
		"payload_size", len(msg.Payload),
	)
}

func (p *PacketLogger) Outbound(sessionID, address string, payloadSize int, res *core.SendResult, err error) {
	if p == nil {
		return
	}
	attrs := []any{
		"direction", "outbound",
		"session_id", sessionID,
		"address", address,
		"payload_size", payloadSize,
	}
	if res != nil {
		attrs = append(attrs, "message_id", res.MessageID)
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	p.logger.Debug("packet", attrs...)
}
