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

package jms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Azure/go-amqp"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

// Sink sends lifecycle events to an AMQP 1.0 queue, the wire protocol of
// most JMS brokers.
type Sink struct {
	name   string
	url    string
	queue  string
	logger *slog.Logger

	mu       sync.Mutex
	conn     *amqp.Conn
	sendSess *amqp.Session
	sender   *amqp.Sender
}

func New(name, url, queue string, logger *slog.Logger) *Sink {
	return &Sink{
		name:   name,
		url:    url,
		queue:  queue,
		logger: logger,
	}
}

// FromConfig reads url and queue.
func FromConfig(name string, cfg map[string]string, logger *slog.Logger) (*Sink, error) {
	if cfg["url"] == "" || cfg["queue"] == "" {
		return nil, fmt.Errorf("jms sink %s: url and queue are required", name)
	}
	return New(name, cfg["url"], cfg["queue"], logger), nil
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Type() string { return "jms" }

func (s *Sink) Connect(ctx context.Context) error {
	conn, err := amqp.Dial(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("jms dial: %w", err)
	}
	sess, err := conn.NewSession(ctx, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("jms send session: %w", err)
	}
	sender, err := sess.NewSender(ctx, s.queue, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("jms sender: %w", err)
	}

	s.mu.Lock()
	s.conn, s.sendSess, s.sender = conn, sess, sender
	s.mu.Unlock()

	s.logger.Info("jms sink connected", "name", s.name, "url", s.url, "queue", s.queue)
	return nil
}

func (s *Sink) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sender != nil {
		s.sender.Close(ctx)
		s.sender = nil
	}
	if s.sendSess != nil {
		s.sendSess.Close(ctx)
		s.sendSess = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Sink) Publish(ctx context.Context, evt core.LifecycleEvent) error {
	msg, err := message(evt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return fmt.Errorf("jms sink %s: not connected", s.name)
	}
	return sender.Send(ctx, msg, nil)
}

func message(evt core.LifecycleEvent) (*amqp.Message, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	contentType, subject := "application/json", evt.Type
	return &amqp.Message{
		Data: [][]byte{body},
		Properties: &amqp.MessageProperties{
			MessageID:   evt.ID,
			ContentType: &contentType,
			Subject:     &subject,
		},
		ApplicationProperties: map[string]any{
			"session_id": evt.SessionID,
			"state":      evt.State,
		},
	}, nil
}
