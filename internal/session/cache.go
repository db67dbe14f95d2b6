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
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

// ChatCache is the per-session chat list.
type ChatCache struct {
	mu    sync.RWMutex
	chats map[string]core.Chat
}

type cacheFile struct {
	Chats []core.Chat `json:"chats"`
}

func NewChatCache() *ChatCache {
	return &ChatCache{chats: make(map[string]core.Chat)}
}

func (c *ChatCache) Upsert(chats ...core.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range chats {
		if ch.ID != "" {
			c.chats[ch.ID] = ch
		}
	}
}

func (c *ChatCache) InsertIfAbsent(chats ...core.Chat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range chats {
		if ch.ID == "" {
			continue
		}
		if _, ok := c.chats[ch.ID]; !ok {
			c.chats[ch.ID] = ch
		}
	}
}

// List returns the chats whose id ends with suffix, ordered by id.
func (c *ChatCache) List(suffix string) []core.Chat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Chat, 0, len(c.chats))
	for id, ch := range c.chats {
		if strings.HasSuffix(id, suffix) {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *ChatCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chats)
}

func (c *ChatCache) Marshal() ([]byte, error) {
	return json.Marshal(cacheFile{Chats: c.List("")})
}

// Load merges a persisted cache into c.
func (c *ChatCache) Load(data []byte) error {
	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode chat cache: %w", err)
	}
	c.Upsert(f.Chats...)
	return nil
}
