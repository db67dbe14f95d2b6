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

package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/plugins/stream"
)

const keepAlive = 25 * time.Second

// Sink streams lifecycle events as text/event-stream. Each frame carries
// the event id and type so EventSource clients can filter by type.
type Sink struct {
	name   string
	hub    *stream.Hub
	logger *slog.Logger
}

func New(name string, buffer int, logger *slog.Logger) *Sink {
	return &Sink{name: name, hub: stream.NewHub(buffer), logger: logger}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "sse" }

func (s *Sink) Connect(ctx context.Context) error {
	s.logger.Info("sse sink ready", "name", s.name)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	s.hub.CloseAll()
	return nil
}

func (s *Sink) Subscribers() int { return s.hub.Len() }

func (s *Sink) Publish(ctx context.Context, evt core.LifecycleEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	frame := []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Type, data))
	if dropped := s.hub.Broadcast(evt, frame); dropped > 0 {
		s.logger.Warn("sse subscribers lagging, event dropped", "name", s.name, "dropped", dropped)
	}
	return nil
}

func (s *Sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.hub.Subscribe(stream.SubscriberID(r), r.URL.Query().Get("session_id"))
	defer func() {
		s.hub.Unsubscribe(sub)
		s.logger.Info("sse subscriber disconnected", "subscriber_id", sub.ID)
	}()
	s.logger.Info("sse subscriber connected", "subscriber_id", sub.ID, "session_id", sub.SessionID)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
