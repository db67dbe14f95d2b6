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

package httppost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

// Sink posts each lifecycle event as JSON to a fixed URL.
type Sink struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
	logger  *slog.Logger
}

func New(name, url string, headers map[string]string, timeout time.Duration, logger *slog.Logger) *Sink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sink{
		name:    name,
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// FromConfig reads url, an optional timeout and an optional
// authorization header value.
func FromConfig(name string, cfg map[string]string, logger *slog.Logger) (*Sink, error) {
	if cfg["url"] == "" {
		return nil, fmt.Errorf("http_post sink %s: url is required", name)
	}
	var timeout time.Duration
	if v := cfg["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("http_post sink %s: timeout: %w", name, err)
		}
		timeout = d
	}
	headers := map[string]string{}
	if auth := cfg["authorization"]; auth != "" {
		headers["Authorization"] = auth
	}
	return New(name, cfg["url"], headers, timeout, logger), nil
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "http_post" }

func (s *Sink) Connect(ctx context.Context) error {
	s.logger.Info("http_post sink ready", "name", s.name, "url", s.url)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Sink) Publish(ctx context.Context, evt core.LifecycleEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", evt.Type)
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("post event: unexpected status %d", resp.StatusCode)
	}
	return nil
}
