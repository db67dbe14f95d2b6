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
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/session"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

type sendRequest struct {
	Receiver string          `json:"receiver" binding:"required"`
	Message  json.RawMessage `json:"message" binding:"required"`
	DelayMS  *int            `json:"delay_ms"`
}

// bulkItem carries no binding rules so one bad entry cannot reject the
// whole batch.
type bulkItem struct {
	Receiver string          `json:"receiver"`
	Message  json.RawMessage `json:"message"`
	DelayMS  *int            `json:"delay_ms"`
}

type bulkResult struct {
	Sent   int   `json:"sent"`
	Failed []int `json:"failed"`
}

func (s *Server) delay(ms *int) time.Duration {
	if ms == nil || *ms < 0 {
		return s.sendDelay
	}
	return time.Duration(*ms) * time.Millisecond
}

func (s *Server) listChats(c *gin.Context) {
	group, _ := strconv.ParseBool(c.DefaultQuery("group", "false"))
	chats, err := s.mgr.ChatList(c.Param("id"), group)
	if err != nil {
		fail(c, http.StatusNotFound, "Session not found.")
		return
	}
	ok(c, "", chats)
}

func (s *Server) sendChat(c *gin.Context) {
	s.send(c, false)
}

func (s *Server) sendGroup(c *gin.Context) {
	s.send(c, true)
}

func (s *Server) send(c *gin.Context, group bool) {
	var body sendRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "The receiver and message fields are required.")
		return
	}
	sess := sessionFrom(c)
	ctx := c.Request.Context()

	address := core.FormatPhone(body.Receiver)
	missing := "The receiver number is not exists."
	if group {
		address = core.FormatGroup(body.Receiver)
		missing = "The group is not exists."
	}
	if !session.AddressExists(ctx, sess.Client, address, group) {
		fail(c, http.StatusBadRequest, missing)
		return
	}

	res, err := s.mgr.Send(ctx, sess, address, body.Message, s.delay(body.DelayMS))
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to send the message.")
		return
	}
	ok(c, "The message has been successfully sent.", res)
}

// sendBulk sends each direct message in order. A missing receiver or a
// failed send only marks that index as failed.
func (s *Server) sendBulk(c *gin.Context) {
	var batch []bulkItem
	if err := c.ShouldBindJSON(&batch); err != nil {
		fail(c, http.StatusBadRequest, "A list of messages is required.")
		return
	}
	sess := sessionFrom(c)
	ctx := c.Request.Context()

	out := bulkResult{Failed: []int{}}
	for i, item := range batch {
		if item.Receiver == "" || len(item.Message) == 0 {
			out.Failed = append(out.Failed, i)
			continue
		}
		address := core.FormatPhone(item.Receiver)
		if !session.AddressExists(ctx, sess.Client, address, false) {
			out.Failed = append(out.Failed, i)
			continue
		}
		if _, err := s.mgr.Send(ctx, sess, address, item.Message, s.delay(item.DelayMS)); err != nil {
			out.Failed = append(out.Failed, i)
			continue
		}
		out.Sent++
	}

	switch {
	case len(out.Failed) == 0:
		ok(c, "All messages has been successfully sent.", out)
	case out.Sent == 0:
		c.JSON(http.StatusInternalServerError, Response{Message: "Failed to send all messages.", Data: out})
	default:
		ok(c, "Some messages has been successfully sent.", out)
	}
}

func (s *Server) groupMetadata(c *gin.Context) {
	sess := sessionFrom(c)
	info, err := session.GroupMetadata(c.Request.Context(), sess.Client, core.FormatGroup(c.Param("gid")))
	if err != nil {
		GetLogger(c, s.logger).Warn("group metadata failed", "session_id", sess.ID, "error", err)
		fail(c, http.StatusNotFound, "The group is not exists.")
		return
	}
	ok(c, "", info)
}
