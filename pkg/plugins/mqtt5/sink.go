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

package mqtt5

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

// Sink publishes each lifecycle event to <topic>/<session_id>/<type>.
type Sink struct {
	name      string
	brokerURL string
	topic     string
	logger    *slog.Logger

	mu sync.RWMutex
	cm *autopaho.ConnectionManager
}

func New(name, brokerURL, topic string, logger *slog.Logger) *Sink {
	return &Sink{
		name:      name,
		brokerURL: brokerURL,
		topic:     strings.TrimRight(topic, "/"),
		logger:    logger,
	}
}

// FromConfig reads broker and topic.
func FromConfig(name string, cfg map[string]string, logger *slog.Logger) (*Sink, error) {
	if cfg["broker"] == "" || cfg["topic"] == "" {
		return nil, fmt.Errorf("mqtt5 sink %s: broker and topic are required", name)
	}
	return New(name, cfg["broker"], cfg["topic"], logger), nil
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "mqtt5" }

func (s *Sink) Connect(ctx context.Context) error {
	serverURL, err := url.Parse(s.brokerURL)
	if err != nil {
		return fmt.Errorf("mqtt5 invalid URL: %w", err)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{serverURL},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			s.logger.Info("mqtt5 connection up", "name", s.name)
		},
		OnConnectError: func(err error) {
			s.logger.Warn("mqtt5 connect attempt failed", "name", s.name, "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "session-gateway-" + s.name + "-" + uuid.New().String()[:8],
		},
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mqtt5 connection: %w", err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("mqtt5 await connection: %w", err)
	}

	s.mu.Lock()
	s.cm = cm
	s.mu.Unlock()

	s.logger.Info("mqtt5 sink connected", "name", s.name, "broker", s.brokerURL, "topic", s.topic)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	cm := s.cm
	s.cm = nil
	s.mu.Unlock()
	if cm != nil {
		return cm.Disconnect(ctx)
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, evt core.LifecycleEvent) error {
	s.mu.RLock()
	cm := s.cm
	s.mu.RUnlock()
	if cm == nil {
		return fmt.Errorf("mqtt5 sink %s: not connected", s.name)
	}

	pub, err := s.publish(evt)
	if err != nil {
		return err
	}
	_, err = cm.Publish(ctx, pub)
	return err
}

func (s *Sink) publish(evt core.LifecycleEvent) (*paho.Publish, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return &paho.Publish{
		Topic:   Topic(s.topic, evt),
		QoS:     1,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	}, nil
}

func Topic(prefix string, evt core.LifecycleEvent) string {
	return prefix + "/" + evt.SessionID + "/" + evt.Type
}
