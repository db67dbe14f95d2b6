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
	"sort"
	"sync"
)

// Registry maps session ids to live session instances. A session is
// present only while a protocol client for it is instantiated.
type Registry struct {
	sessions sync.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Put(s *Session) {
	r.sessions.Store(s.ID, s)
}

// PutIfAbsent stores s unless the id is taken. It returns the session
// held for the id and whether s was stored.
func (r *Registry) PutIfAbsent(s *Session) (*Session, bool) {
	v, loaded := r.sessions.LoadOrStore(s.ID, s)
	return v.(*Session), !loaded
}

func (r *Registry) Get(id string) (*Session, bool) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

func (r *Registry) Contains(id string) bool {
	_, ok := r.sessions.Load(id)
	return ok
}

func (r *Registry) Remove(id string) (*Session, bool) {
	v, ok := r.sessions.LoadAndDelete(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// RemoveInstance removes s only if it is still the instance registered
// for its id.
func (r *Registry) RemoveInstance(s *Session) bool {
	return r.sessions.CompareAndDelete(s.ID, s)
}

// ForEach visits a snapshot of the registry in id order. Sessions removed
// after the snapshot is taken are still visited once.
func (r *Registry) ForEach(fn func(*Session)) {
	for _, s := range r.Snapshot() {
		fn(s)
	}
}

func (r *Registry) Snapshot() []*Session {
	var out []*Session
	r.sessions.Range(func(_, v any) bool {
		out = append(out, v.(*Session))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
