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

package config

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/metrics"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/routing"
)

const defaultWatchInterval = 5 * time.Second

// Watcher polls the config file and applies the hot-reloadable parts of
// it: the route table and anything handed to the reload callback.
type Watcher struct {
	path     string
	table    *routing.Table
	onReload func(*Config)
	metrics  *metrics.Metrics
	interval time.Duration
	logger   *slog.Logger
	lastMod  time.Time
}

func NewWatcher(path string, table *routing.Table, onReload func(*Config), m *metrics.Metrics, logger *slog.Logger) *Watcher {
	w := &Watcher{
		path:     path,
		table:    table,
		onReload: onReload,
		metrics:  m,
		interval: defaultWatchInterval,
		logger:   logger,
	}
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// SetInterval changes the poll interval. It must be called before Watch.
func (w *Watcher) SetInterval(d time.Duration) {
	if d > 0 {
		w.interval = d
	}
}

func (w *Watcher) Watch(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file if it changed since the last successful look.
// It reports whether a new configuration was applied.
func (w *Watcher) check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("config stat failed", "path", w.path, "error", err)
		return false
	}
	if !info.ModTime().After(w.lastMod) {
		return false
	}
	w.lastMod = info.ModTime()

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed", "path", w.path, "error", err)
		return false
	}

	routes := cfg.RouteList()
	w.table.ReplaceAll(routes)
	if w.onReload != nil {
		w.onReload(cfg)
	}
	w.metrics.ConfigReloaded(float64(time.Now().Unix()))
	w.logger.Info("config reloaded",
		"routes", len(routes),
		"max_retries", cfg.Sessions.MaxRetries,
	)
	return true
}
