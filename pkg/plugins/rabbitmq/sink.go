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

package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

// Sink publishes lifecycle events either to a topic exchange, routed by
// event type, or straight to a durable queue.
type Sink struct {
	name     string
	url      string
	exchange string
	queue    string
	logger   *slog.Logger

	mu    sync.Mutex
	conn  *amqp.Connection
	pubCh *amqp.Channel
}

func New(name, url, exchange, queue string, logger *slog.Logger) *Sink {
	return &Sink{
		name:     name,
		url:      url,
		exchange: exchange,
		queue:    queue,
		logger:   logger,
	}
}

// FromConfig reads url and one of exchange or queue.
func FromConfig(name string, cfg map[string]string, logger *slog.Logger) (*Sink, error) {
	if cfg["url"] == "" {
		return nil, fmt.Errorf("rabbitmq sink %s: url is required", name)
	}
	if cfg["exchange"] == "" && cfg["queue"] == "" {
		return nil, fmt.Errorf("rabbitmq sink %s: exchange or queue is required", name)
	}
	return New(name, cfg["url"], cfg["exchange"], cfg["queue"], logger), nil
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "rabbitmq" }

func (s *Sink) Connect(ctx context.Context) error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq publish channel: %w", err)
	}

	if s.exchange != "" {
		if err := ch.ExchangeDeclare(s.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("rabbitmq exchange declare %s: %w", s.exchange, err)
		}
	} else if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq queue declare %s: %w", s.queue, err)
	}

	s.mu.Lock()
	s.conn, s.pubCh = conn, ch
	s.mu.Unlock()

	s.logger.Info("rabbitmq sink connected", "name", s.name, "exchange", s.exchange, "queue", s.queue)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubCh != nil {
		s.pubCh.Close()
		s.pubCh = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, evt core.LifecycleEvent) error {
	msg, err := publishing(evt)
	if err != nil {
		return err
	}
	key := s.routingKey(evt)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubCh == nil {
		return fmt.Errorf("rabbitmq sink %s: not connected", s.name)
	}
	return s.pubCh.PublishWithContext(ctx, s.exchange, key, false, false, msg)
}

// routingKey is the event type on an exchange and the queue name on the
// default exchange.
func (s *Sink) routingKey(evt core.LifecycleEvent) string {
	if s.exchange == "" {
		return s.queue
	}
	return evt.Type
}

func publishing(evt core.LifecycleEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		MessageId:    evt.ID,
		Timestamp:    evt.Timestamp,
		Type:         evt.Type,
		Headers:      amqp.Table{"session_id": evt.SessionID},
	}, nil
}
