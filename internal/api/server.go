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

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/session"
)

const (
	defaultCreateTimeout = 60 * time.Second
	defaultSendDelay     = time.Second
)

// HealthSource reports sink connectivity by sink name.
type HealthSource interface {
	Health() map[string]bool
}

// Options configures the API server. Streams maps a sink name to its live
// event handler; SendDelay paces sends that do not set their own delay.
type Options struct {
	Manager       *session.Manager
	Health        HealthSource
	Metrics       http.Handler
	Streams       map[string]http.Handler
	CreateTimeout time.Duration
	SendDelay     time.Duration
	Logger        *slog.Logger
}

type Server struct {
	mgr           *session.Manager
	health        HealthSource
	metrics       http.Handler
	streams       map[string]http.Handler
	createTimeout time.Duration
	sendDelay     time.Duration
	logger        *slog.Logger
}

func NewServer(opts Options) *Server {
	if opts.CreateTimeout <= 0 {
		opts.CreateTimeout = defaultCreateTimeout
	}
	if opts.SendDelay < 0 {
		opts.SendDelay = defaultSendDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		mgr:           opts.Manager,
		health:        opts.Health,
		metrics:       opts.Metrics,
		streams:       opts.Streams,
		createTimeout: opts.CreateTimeout,
		sendDelay:     opts.SendDelay,
		logger:        opts.Logger.With("component", "api"),
	}
}

// Router builds the gin engine serving every endpoint.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(CorrelationID(s.logger), RequestLogger(s.logger), Recovery(s.logger))

	r.GET("/healthz", s.healthz)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	r.GET("/events/:sink", s.stream)

	sessions := r.Group("/sessions")
	sessions.GET("", s.listSessions)
	sessions.POST("", s.createSession)
	sessions.GET("/:id/status", s.sessionStatus)
	sessions.DELETE("/:id", s.deleteSession)

	live := sessions.Group("/:id", sessionValidator(s.mgr))
	live.GET("", s.findSession)
	live.GET("/chats", s.listChats)
	live.POST("/chats/send", s.sendChat)
	live.POST("/chats/send-bulk", s.sendBulk)
	live.POST("/groups/send", s.sendGroup)
	live.GET("/groups/:gid", s.groupMetadata)

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Not found.")
	})
	return r
}

func (s *Server) healthz(c *gin.Context) {
	status := "ok"
	var sinks map[string]bool
	if s.health != nil {
		sinks = s.health.Health()
		for _, healthy := range sinks {
			if !healthy {
				status = "degraded"
			}
		}
	}
	ok(c, status, gin.H{
		"sessions": s.mgr.ActiveCount(),
		"sinks":    sinks,
	})
}

func (s *Server) stream(c *gin.Context) {
	h, found := s.streams[c.Param("sink")]
	if !found {
		fail(c, http.StatusNotFound, "Event stream not found.")
		return
	}
	h.ServeHTTP(c.Writer, c.Request)
}
