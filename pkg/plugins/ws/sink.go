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

package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/plugins/stream"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Sink streams lifecycle events to websocket subscribers. Subscribers
// may pass ?session_id= to follow a single session.
type Sink struct {
	name     string
	upgrader websocket.Upgrader
	hub      *stream.Hub
	logger   *slog.Logger
}

func New(name string, buffer int, logger *slog.Logger) *Sink {
	return &Sink{
		name: name,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub:    stream.NewHub(buffer),
		logger: logger,
	}
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "websocket" }

func (s *Sink) Connect(ctx context.Context) error {
	s.logger.Info("websocket sink ready", "name", s.name)
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
	if dropped := s.hub.Broadcast(evt, data); dropped > 0 {
		s.logger.Warn("websocket subscribers lagging, event dropped",
			"name", s.name,
			"event_type", evt.Type,
			"dropped", dropped,
		)
	}
	return nil
}

// ServeHTTP upgrades the request and streams events until either side
// goes away.
func (s *Sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", "error", err)
		return
	}

	sub := s.hub.Subscribe(stream.SubscriberID(r), r.URL.Query().Get("session_id"))
	s.logger.Info("ws subscriber connected", "subscriber_id", sub.ID, "session_id", sub.SessionID)

	done := make(chan struct{})
	go s.readLoop(conn, done)

	defer func() {
		s.hub.Unsubscribe(sub)
		conn.Close()
		s.logger.Info("ws subscriber disconnected", "subscriber_id", sub.ID)
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case data, ok := <-sub.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Error("ws write failed", "subscriber_id", sub.ID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards client frames and notices when the peer leaves.
func (s *Sink) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("ws read error", "error", err)
			}
			return
		}
	}
}
