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
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/session"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

type createSessionRequest struct {
	ID       string `json:"id" binding:"required"`
	IsLegacy bool   `json:"is_legacy"`
}

func (s *Server) listSessions(c *gin.Context) {
	ok(c, "", s.mgr.List())
}

// createSession holds the request open until the session yields a pairing
// artifact, connects, or fails.
func (s *Server) createSession(c *gin.Context) {
	var body createSessionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "The id field is required.")
		return
	}
	mode := core.ModeMultiDevice
	if body.IsLegacy {
		mode = core.ModeLegacy
	}
	log := GetLogger(c, s.logger).With("session_id", body.ID)

	req := session.NewRequester()
	err := s.mgr.Create(c.Request.Context(), body.ID, mode, req)
	switch {
	case errors.Is(err, core.ErrSessionExists):
		fail(c, http.StatusConflict, "Session already exists, please use another id.")
		return
	case errors.Is(err, core.ErrInvalidSessionID):
		fail(c, http.StatusBadRequest, "Invalid session id.")
		return
	case err != nil:
		log.Error("session create failed", "error", err)
		fail(c, http.StatusInternalServerError, "Unable to create session.")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.createTimeout)
	defer cancel()
	res, err := req.Wait(ctx)
	switch {
	case err != nil:
		log.Warn("session create timed out", "timeout", s.createTimeout)
		fail(c, http.StatusInternalServerError, "Unable to create session.")
	case res.Err != nil:
		log.Error("session create failed", "error", res.Err)
		fail(c, http.StatusInternalServerError, "Unable to create session.")
	case res.PairingArtifact != "":
		ok(c, "QR code received, please scan the QR code.", gin.H{"qr": res.PairingArtifact})
	default:
		ok(c, "Session has been successfully created.", nil)
	}
}

func (s *Server) findSession(c *gin.Context) {
	ok(c, "Session found.", nil)
}

func (s *Server) sessionStatus(c *gin.Context) {
	st, found := s.mgr.Status(c.Param("id"))
	if !found {
		fail(c, http.StatusNotFound, "Session not found.")
		return
	}
	ok(c, "", st)
}

// deleteSession logs the account out on a best-effort basis before
// removing every trace of the session.
// deleteSession also accepts a session waiting out a reconnection delay.
// Only a live session is logged out first.
func (s *Server) deleteSession(c *gin.Context) {
	id := c.Param("id")
	log := GetLogger(c, s.logger).With("session_id", id)

	mode := core.ModeMultiDevice
	if sess, found := s.mgr.Get(id); found {
		mode = sess.Mode
		if err := sess.Client.Logout(c.Request.Context()); err != nil {
			log.Warn("logout failed", "error", err)
		}
	} else if st, found := s.mgr.Status(id); !found || !st.ReconnectPending {
		fail(c, http.StatusNotFound, "Session not found.")
		return
	}
	if err := s.mgr.Delete(c.Request.Context(), id, mode); err != nil {
		log.Error("session delete failed", "error", err)
		fail(c, http.StatusInternalServerError, "Unable to logout.")
		return
	}
	ok(c, "The session has been successfully deleted.", nil)
}
