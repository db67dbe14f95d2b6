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

package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

// EngineBuilder constructs a protocol engine from its config block.
type EngineBuilder func(cfg map[string]string, logger *slog.Logger) (core.ClientFactory, error)

type Registry struct {
	sinks   map[string]core.Sink
	healthy map[string]bool
	engines map[string]EngineBuilder
	logger  *slog.Logger
	mu      sync.RWMutex
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sinks:   make(map[string]core.Sink),
		healthy: make(map[string]bool),
		engines: make(map[string]EngineBuilder),
		logger:  logger,
	}
}

func (r *Registry) RegisterSink(s core.Sink) error {
	r.mu.Lock()
	if _, dup := r.sinks[s.Name()]; dup {
		r.mu.Unlock()
		return fmt.Errorf("sink %q registered twice", s.Name())
	}
	r.sinks[s.Name()] = s
	r.mu.Unlock()
	r.logger.Info("registered sink", "name", s.Name(), "type", s.Type())
	return nil
}

func (r *Registry) Sink(name string) (core.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[name]
	return s, ok
}

func (r *Registry) Sinks() map[string]core.Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make(map[string]core.Sink, len(r.sinks))
	for k, v := range r.sinks {
		cp[k] = v
	}
	return cp
}

// ConnectSinks connects every sink and returns how many succeeded. A sink
// that fails stays registered and unhealthy.
func (r *Registry) ConnectSinks(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	connected := 0
	for name, s := range r.sinks {
		if err := s.Connect(ctx); err != nil {
			r.logger.Error("sink connect failed", "name", name, "error", err)
			r.healthy[name] = false
		} else {
			r.healthy[name] = true
			connected++
		}
	}
	return connected
}

func (r *Registry) IsSinkHealthy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.healthy[name]
}

// Health reports every sink by name.
func (r *Registry) Health() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.sinks))
	for name := range r.sinks {
		out[name] = r.healthy[name]
	}
	return out
}

func (r *Registry) RegisterEngine(typ string, b EngineBuilder) {
	r.mu.Lock()
	r.engines[typ] = b
	r.mu.Unlock()
	r.logger.Info("registered engine", "type", typ)
}

func (r *Registry) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for typ := range r.engines {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) NewEngine(typ string, cfg map[string]string) (core.ClientFactory, error) {
	r.mu.RLock()
	b, ok := r.engines[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: engine %q", core.ErrUnknownPlugin, typ)
	}
	return b(cfg, r.logger.With("component", "engine", "engine", typ))
}

func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, s := range r.sinks {
		r.logger.Info("stopping sink", "name", name)
		if err := s.Disconnect(ctx); err != nil {
			r.logger.Warn("sink disconnect failed", "name", name, "error", err)
		}
	}
}
