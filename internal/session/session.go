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
	"sync/atomic"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

// Session is one live instantiation of a session id. Every reconnection
// builds a new Session around a new client.
type Session struct {
	ID        string
	Mode      core.Mode
	Client    core.ProtocolClient
	Cache     *ChatCache
	CreatedAt time.Time

	requester *Requester
	resumable bool
	state     atomic.Int32
	retired   atomic.Bool
}

func newSession(id string, mode core.Mode, client core.ProtocolClient, cache *ChatCache, req *Requester) *Session {
	s := &Session{
		ID:        id,
		Mode:      mode,
		Client:    client,
		Cache:     cache,
		CreatedAt: time.Now().UTC(),
		requester: req,
	}
	s.state.Store(int32(StateInitializing))
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// retire marks the instance as abandoned by the manager. Only the first
// call returns true.
func (s *Session) retire() bool {
	return s.retired.CompareAndSwap(false, true)
}
