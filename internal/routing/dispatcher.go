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

package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/metrics"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

const defaultPublishTimeout = 5 * time.Second

// SinkSource resolves sink names to connected sinks.
type SinkSource interface {
	Sink(name string) (core.Sink, bool)
}

// Dispatcher fans lifecycle events out to the sinks routed for their
// type. Publishing never blocks the caller and failures are only logged.
type Dispatcher struct {
	routes  *Table
	sinks   SinkSource
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

func NewDispatcher(routes *Table, sinks SinkSource, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		routes:  routes,
		sinks:   sinks,
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

func (d *Dispatcher) Publish(ctx context.Context, evt core.LifecycleEvent) {
	targets, ok := d.routes.Lookup(evt.Type)
	if !ok {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	for _, name := range targets {
		sink, ok := d.sinks.Sink(name)
		if !ok {
			d.metrics.SinkPublish(name, "missing")
			d.logger.Warn("route targets unknown sink", "sink", name, "event_type", evt.Type)
			continue
		}
		d.inflight.Add(1)
		go d.deliver(context.WithoutCancel(ctx), sink, evt)
	}
}

func (d *Dispatcher) deliver(parent context.Context, sink core.Sink, evt core.LifecycleEvent) {
	defer d.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			d.metrics.Panic()
			d.logger.Error("sink publish panic recovered", "sink", sink.Name(), "error", r)
		}
	}()

	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	if err := sink.Publish(ctx, evt); err != nil {
		d.metrics.SinkPublish(sink.Name(), "error")
		d.logger.Warn("sink publish failed",
			"sink", sink.Name(),
			"type", sink.Type(),
			"event_type", evt.Type,
			"session_id", evt.SessionID,
			"error", err,
		)
		return
	}
	d.metrics.SinkPublish(sink.Name(), "ok")
}

// Close stops accepting events and waits for in-flight publishes until
// ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for sink publishes: %w", ctx.Err())
	}
}
