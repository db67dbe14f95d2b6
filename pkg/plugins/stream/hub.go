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

// Package stream fans lifecycle events out to live HTTP subscribers.
package stream

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

const DefaultBuffer = 64

// Subscriber receives encoded events for one live connection. SessionID
// narrows the stream to a single session when set.
type Subscriber struct {
	ID        string
	SessionID string
	C         chan []byte

	mu     sync.Mutex
	closed bool
}

func (s *Subscriber) offer(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.C <- data:
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.C)
	}
}

// Hub tracks subscribers. Slow subscribers lose events instead of
// slowing the publisher.
type Hub struct {
	subs   sync.Map
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer}
}

func (h *Hub) Subscribe(id, sessionID string) *Subscriber {
	if id == "" {
		id = uuid.New().String()
	}
	sub := &Subscriber{ID: id + "-" + uuid.New().String()[:8], SessionID: sessionID, C: make(chan []byte, h.buffer)}
	h.subs.Store(sub.ID, sub)
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	if v, ok := h.subs.LoadAndDelete(sub.ID); ok {
		v.(*Subscriber).close()
	}
}

// Broadcast offers data to every subscriber whose filter matches evt and
// returns how many subscribers dropped it.
func (h *Hub) Broadcast(evt core.LifecycleEvent, data []byte) int {
	dropped := 0
	h.subs.Range(func(_, v any) bool {
		sub := v.(*Subscriber)
		if sub.SessionID != "" && sub.SessionID != evt.SessionID {
			return true
		}
		if !sub.offer(data) {
			dropped++
		}
		return true
	})
	return dropped
}

func (h *Hub) Len() int {
	n := 0
	h.subs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll ends every subscription.
func (h *Hub) CloseAll() {
	h.subs.Range(func(key, v any) bool {
		h.subs.Delete(key)
		v.(*Subscriber).close()
		return true
	})
}

// SubscriberID identifies the caller by the X-Subscriber-ID header, or by
// a hash of its remote host.
func SubscriberID(r *http.Request) string {
	if id := r.Header.Get("X-Subscriber-ID"); id != "" {
		return id
	}

	remoteAddr := r.RemoteAddr
	if remoteAddr == "" {
		return uuid.New().String()
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if strings.Contains(host, ":") {
		if ip := net.ParseIP(host); ip != nil {
			host = ip.String()
		}
	}

	hash := sha256.Sum256([]byte(host))
	return hex.EncodeToString(hash[:])[:12]
}
