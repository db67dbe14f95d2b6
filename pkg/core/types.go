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

package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Mode selects the credential format of a session. It is fixed at creation.
type Mode int

const (
	ModeMultiDevice Mode = iota
	ModeLegacy
)

func (m Mode) String() string {
	if m == ModeLegacy {
		return "legacy"
	}
	return "md"
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "md", "multi_device", "":
		return ModeMultiDevice, nil
	case "legacy":
		return ModeLegacy, nil
	default:
		return ModeMultiDevice, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

type EventKind int

const (
	EventPairingCode EventKind = iota
	EventConnectionState
	EventCredentialsChanged
	EventMessageReceived
	EventChatsSet
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPairingCode:
		return "pairing-code"
	case EventConnectionState:
		return "connection-state"
	case EventCredentialsChanged:
		return "credentials-changed"
	case EventMessageReceived:
		return "message-received"
	case EventChatsSet:
		return "chats-set"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

type ConnectionState int

const (
	ConnectionConnecting ConnectionState = iota
	ConnectionOpen
	ConnectionClose
)

// StatusLoggedOut is the close status an engine reports when the account
// was logged out remotely.
const StatusLoggedOut = 401

// CloseReason describes why a connection closed. StatusCode is zero when
// the engine closed without a code.
type CloseReason struct {
	StatusCode int
	Err        error
}

func (c *CloseReason) LoggedOut() bool {
	return c != nil && c.StatusCode == StatusLoggedOut
}

// UpsertType distinguishes live deliveries from history batches.
type UpsertType string

const (
	UpsertNotify UpsertType = "notify"
	UpsertAppend UpsertType = "append"
)

type InboundMessage struct {
	ID            string          `json:"id"`
	RemoteAddress string          `json:"remote_address"`
	FromMe        bool            `json:"from_me"`
	Upsert        UpsertType      `json:"upsert"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Event is one item of a protocol client's event stream. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind        EventKind
	PairingCode string
	Connection  ConnectionState
	Close       *CloseReason
	Credentials []byte
	Message     *InboundMessage
	Chats       []Chat
	Err         error
}

type Chat struct {
	ID                    string `json:"id"`
	Name                  string `json:"name,omitempty"`
	UnreadCount           int    `json:"unread_count,omitempty"`
	ConversationTimestamp int64  `json:"conversation_timestamp,omitempty"`
}

type GroupInfo struct {
	ID           string    `json:"id"`
	Subject      string    `json:"subject"`
	Owner        string    `json:"owner,omitempty"`
	Description  string    `json:"description,omitempty"`
	Participants []string  `json:"participants"`
	Created      time.Time `json:"created,omitempty"`
}

type SendResult struct {
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientOptions struct {
	SessionID   string
	Mode        Mode
	Credentials []byte
}

type DeviceStatus int

const (
	DeviceOffline DeviceStatus = 0
	DeviceOnline  DeviceStatus = 1
)

type WebhookMessage struct {
	From      string          `json:"from"`
	MessageID string          `json:"message_id"`
	Message   json.RawMessage `json:"message"`
}

type WebhookReply struct {
	SessionID string          `json:"session_id"`
	Receiver  string          `json:"receiver"`
	Message   json.RawMessage `json:"message"`
}

// Lifecycle event types published to sinks.
const (
	EventTypeSessionCreated      = "session.created"
	EventTypeSessionPairing      = "session.pairing"
	EventTypeSessionConnected    = "session.connected"
	EventTypeSessionDisconnected = "session.disconnected"
	EventTypeSessionReconnecting = "session.reconnecting"
	EventTypeSessionTerminated   = "session.terminated"
	EventTypeSessionDeleted      = "session.deleted"
	EventTypeMessageReceived     = "message.received"
)

type LifecycleEvent struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	SessionID string            `json:"session_id"`
	Mode      string            `json:"mode"`
	State     string            `json:"state,omitempty"`
	Attempt   int               `json:"attempt,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Route binds a lifecycle event type, or "*", to a sink name.
type Route struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}
