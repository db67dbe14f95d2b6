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

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

// Status is the observable state of a session id.
type Status struct {
	ID               string `json:"id"`
	Mode             string `json:"mode,omitempty"`
	State            string `json:"state"`
	Attempts         int    `json:"attempts"`
	ReconnectPending bool   `json:"reconnect_pending"`
}

func (m *Manager) Get(id string) (*Session, bool) {
	return m.registry.Get(id)
}

func (m *Manager) Exists(id string) bool {
	return m.registry.Contains(id)
}

func (m *Manager) ActiveCount() int {
	return m.registry.Len()
}

// Status reports a live session, or one waiting out a reconnection delay.
func (m *Manager) Status(id string) (Status, bool) {
	st := Status{
		ID:               id,
		Attempts:         m.ledger.Attempts(id),
		ReconnectPending: m.ledger.Pending(id),
	}
	if s, ok := m.registry.Get(id); ok {
		st.Mode = s.Mode.String()
		st.State = s.State().String()
		return st, true
	}
	if st.ReconnectPending {
		if mode, ok := m.ledger.Mode(id); ok {
			st.Mode = mode.String()
		}
		st.State = StateReconnecting.String()
		return st, true
	}
	return st, false
}

func (m *Manager) List() []Status {
	sessions := m.registry.Snapshot()
	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, Status{
			ID:               s.ID,
			Mode:             s.Mode.String(),
			State:            s.State().String(),
			Attempts:         m.ledger.Attempts(s.ID),
			ReconnectPending: m.ledger.Pending(s.ID),
		})
	}
	return out
}

// ChatList projects the session's chat cache onto group or direct chats.
func (m *Manager) ChatList(id string, group bool) ([]core.Chat, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: id=%s", core.ErrSessionNotFound, id)
	}
	suffix := core.SuffixDirect
	if group {
		suffix = core.SuffixGroup
	}
	return s.Cache.List(suffix), nil
}

// AddressExists asks the engine whether address is reachable. Any engine
// error counts as "does not exist".
func AddressExists(ctx context.Context, client core.ProtocolClient, address string, group bool) bool {
	if group {
		info, err := client.GroupMetadata(ctx, address)
		return err == nil && info != nil && info.ID != ""
	}
	ok, err := client.LookupAddress(ctx, address)
	return err == nil && ok
}

func GroupMetadata(ctx context.Context, client core.ProtocolClient, address string) (*core.GroupInfo, error) {
	info, err := client.GroupMetadata(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("group metadata %s: %w", address, err)
	}
	return info, nil
}

// SendMessage waits delay, then sends. Failures carry no engine detail.
func SendMessage(ctx context.Context, client core.ProtocolClient, address string, payload json.RawMessage, delay time.Duration) (*core.SendResult, error) {
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, core.ErrSendFailed
		case <-t.C:
		}
	}
	res, err := client.Send(ctx, address, payload)
	if err != nil {
		return nil, core.ErrSendFailed
	}
	return res, nil
}

// Send is SendMessage on a live session, with packet logging.
func (m *Manager) Send(ctx context.Context, sess *Session, address string, payload json.RawMessage, delay time.Duration) (*core.SendResult, error) {
	res, err := SendMessage(ctx, sess.Client, address, payload, delay)
	m.packetLog.Outbound(sess.ID, address, len(payload), res, err)
	if err != nil {
		m.metrics.MessageSent("error")
		return nil, err
	}
	m.metrics.MessageSent("ok")
	return res, nil
}
