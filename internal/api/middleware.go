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
	"github.com/google/uuid"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/session"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"

	correlationIDKey = "correlation_id"
	loggerKey        = "logger"
	sessionKey       = "session"
)

// CorrelationID reuses the caller's X-Correlation-ID or generates one, and
// stores a logger carrying it in the context.
func CorrelationID(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(correlationIDKey, id)
		c.Set(loggerKey, base.With("correlation_id", id))
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// GetLogger returns the request logger, or fallback outside CorrelationID.
func GetLogger(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if v, exists := c.Get(loggerKey); exists {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return fallback
}

func RequestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		GetLogger(c, base).Info("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// Recovery turns a handler panic into a generic 500.
func Recovery(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				GetLogger(c, base).Error("panic recovered",
					"error", r,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				fail(c, http.StatusInternalServerError, "Internal server error.")
			}
		}()
		c.Next()
	}
}

// sessionValidator rejects requests for ids without a live session.
func sessionValidator(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, found := mgr.Get(c.Param("id"))
		if !found {
			fail(c, http.StatusNotFound, "Session not found.")
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}
