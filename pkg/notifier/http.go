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

package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

const (
	defaultTimeout = 10 * time.Second
	maxReplyBody   = 1 << 20
)

type Config struct {
	BaseURL string        `yaml:"base_url" env:"APP_URL"`
	Timeout time.Duration `yaml:"timeout" env:"NOTIFIER_TIMEOUT"`
}

// HTTPNotifier reports to the downstream application under
// <base_url>/api.
type HTTPNotifier struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPNotifier(cfg Config, logger *slog.Logger) (*HTTPNotifier, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("notifier base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse notifier base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPNotifier{
		base:   strings.TrimRight(cfg.BaseURL, "/") + "/api",
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

func (n *HTTPNotifier) SetDeviceStatus(ctx context.Context, sessionID string, status core.DeviceStatus) error {
	endpoint := n.base + "/set-device-status/" + url.PathEscape(sessionID) + "/" + strconv.Itoa(int(status))
	resp, err := n.post(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("set device status: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBody))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("set device status: unexpected status %d", resp.StatusCode)
	}
	n.logger.Debug("device status reported", "session_id", sessionID, "status", int(status))
	return nil
}

// SendWebhook posts an inbound message. A 200 answer carrying a session
// id, receiver and message is returned as a reply to send back.
func (n *HTTPNotifier) SendWebhook(ctx context.Context, sessionID string, msg core.WebhookMessage) (*core.WebhookReply, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode webhook: %w", err)
	}

	resp, err := n.post(ctx, n.base+"/send-webhook/"+url.PathEscape(sessionID), body)
	if err != nil {
		return nil, fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	if err != nil {
		return nil, fmt.Errorf("read webhook reply: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("send webhook: unexpected status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var reply core.WebhookReply
	if err := json.Unmarshal(data, &reply); err != nil {
		n.logger.Debug("webhook answer is not a reply", "session_id", sessionID, "error", err)
		return nil, nil
	}
	if reply.SessionID == "" || reply.Receiver == "" || !hasValue(reply.Message) {
		return nil, nil
	}
	return &reply, nil
}

func (n *HTTPNotifier) post(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return n.client.Do(req)
}

func hasValue(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

// Nop drops every notification. It backs deployments without a
// downstream application.
type Nop struct{}

func (Nop) SetDeviceStatus(context.Context, string, core.DeviceStatus) error { return nil }

func (Nop) SendWebhook(context.Context, string, core.WebhookMessage) (*core.WebhookReply, error) {
	return nil, nil
}
