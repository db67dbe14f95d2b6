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

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/api"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/metrics"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/routing"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/session"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/config"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/notifier"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/pairing"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/plugins"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/plugins/mock"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/store"
)

const sinkPublishTimeout = 5 * time.Second

func main() {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "/etc/session-gateway/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	packetLog := logging.NewPacketLogger(logger.With("component", "packet"))
	m := metrics.New()

	st, err := store.New(cfg.Store)
	if err != nil {
		logger.Error("failed to open state store", "type", cfg.Store.Type, "error", err)
		os.Exit(1)
	}

	var notify core.Notifier = notifier.Nop{}
	if cfg.Notifier.BaseURL != "" {
		n, err := notifier.NewHTTPNotifier(cfg.Notifier, logger.With("component", "notifier"))
		if err != nil {
			logger.Error("failed to build notifier", "error", err)
			os.Exit(1)
		}
		notify = n
	} else {
		logger.Warn("no notifier base url configured, device status and webhooks are dropped")
	}

	renderer, err := pairing.New(cfg.Pairing.Format, cfg.Pairing.Size)
	if err != nil {
		logger.Error("failed to build pairing renderer", "error", err)
		os.Exit(1)
	}

	registry := plugins.NewRegistry(logger)
	registry.RegisterEngine("mock", mock.Builder)
	factory, err := registry.NewEngine(cfg.Engine.Type, cfg.Engine.Config)
	if err != nil {
		logger.Error("failed to build protocol engine", "type", cfg.Engine.Type, "available", registry.Engines(), "error", err)
		os.Exit(1)
	}

	streams := registerSinks(cfg, registry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := registry.ConnectSinks(ctx)
	logger.Info("sinks connected", "connected", connected, "configured", len(cfg.Sinks))

	routeTable := routing.NewTable()
	routeTable.ReplaceAll(cfg.RouteList())
	dispatcher := routing.NewDispatcher(routeTable, registry, sinkPublishTimeout, m, logger.With("component", "dispatcher"))

	mgr := session.NewManager(session.Options{
		Store:     st,
		Factory:   factory,
		Notifier:  notify,
		Renderer:  renderer,
		Publisher: dispatcher,
		Policy:    cfg.Sessions.RetryPolicy(),
		Metrics:   m,
		Logger:    logger.With("component", "session"),
		PacketLog: packetLog,
	})

	restored, err := mgr.Restore(ctx)
	if err != nil {
		logger.Error("session restore failed", "error", err)
	}
	logger.Info("sessions restored", "count", restored)

	watcher := config.NewWatcher(configPath, routeTable, func(c *config.Config) {
		mgr.SetRetryPolicy(c.Sessions.RetryPolicy())
	}, m, logger.With("component", "config"))
	go watcher.Watch(ctx)

	srv := api.NewServer(api.Options{
		Manager:       mgr,
		Health:        registry,
		Metrics:       m.Handler(),
		Streams:       streams,
		CreateTimeout: cfg.Server.CreateTimeout,
		SendDelay:     cfg.Sessions.SendDelay,
		Logger:        logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "addr", httpServer.Addr, "error", err)
			cancel()
		}
	}()

	logger.Info("session gateway started", "addr", httpServer.Addr, "config", configPath, "engine", cfg.Engine.Type)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	logger.Info("shutting down session gateway")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Sessions.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", "error", err)
	}
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Warn("session drain incomplete", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("dispatcher drain incomplete", "error", err)
	}
	registry.StopAll(shutdownCtx)
	if err := st.Close(); err != nil {
		logger.Warn("state store close failed", "error", err)
	}

	logger.Info("session gateway stopped")
}

// registerSinks builds every configured sink and returns the ones that
// serve live subscribers over HTTP, keyed by sink name.
func registerSinks(cfg *config.Config, reg *plugins.Registry, logger *slog.Logger) map[string]http.Handler {
	streams := make(map[string]http.Handler)
	for _, sc := range cfg.Sinks {
		s, err := plugins.BuildSink(sc.Name, sc.Type, sc.Config, logger)
		if err != nil {
			logger.Warn("skipping sink", "name", sc.Name, "type", sc.Type, "error", err)
			continue
		}
		if err := reg.RegisterSink(s); err != nil {
			logger.Warn("skipping sink", "name", sc.Name, "error", err)
			continue
		}
		if h, ok := s.(http.Handler); ok {
			streams[sc.Name] = h
		}
	}
	return streams
}
