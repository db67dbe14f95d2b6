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
	"errors"
	"fmt"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

// Restore recreates every session found in storage, without a requester.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	names, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored sessions: %w", err)
	}

	restored := 0
	for _, name := range names {
		id, mode, ok := core.ParseStorageName(name)
		if !ok {
			continue
		}
		if err := m.Create(ctx, id, mode, nil); err != nil {
			m.logger.Warn("session restore failed", "session_id", id, "mode", mode.String(), "error", err)
			continue
		}
		restored++
	}
	m.logger.Info("sessions restored", "count", restored, "scanned", len(names))
	return restored, nil
}

// Shutdown disarms pending reconnections and persists the chat cache of
// every live multi-device session. It returns when ctx ends even if the
// drain is incomplete. The manager is unusable afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	cancelled := m.ledger.CancelAll()

	var errs []error
	saved := 0
	m.registry.ForEach(func(s *Session) {
		if s.Mode != core.ModeMultiDevice {
			return
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("persist cache %s: %w", s.ID, err))
			return
		}
		data, err := s.Cache.Marshal()
		if err == nil {
			err = m.store.Save(ctx, core.CacheName(s.ID), data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("persist cache %s: %w", s.ID, err))
			return
		}
		saved++
	})

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.forwards.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for webhook forwards: %w", ctx.Err()))
	}

	m.logger.Info("session manager drained",
		"caches_saved", saved,
		"reconnects_cancelled", cancelled,
		"errors", len(errs),
	)
	return errors.Join(errs...)
}
