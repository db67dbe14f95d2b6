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
	"context"
	"encoding/json"
)

// ProtocolClient is one instance of a connection to the messaging engine.
// Events is closed once Close returns. Close may be called from inside
// event handling and must not wait for the event consumer.
type ProtocolClient interface {
	Connect(ctx context.Context) error
	Events() <-chan Event
	Send(ctx context.Context, address string, payload json.RawMessage) (*SendResult, error)
	Logout(ctx context.Context) error
	LookupAddress(ctx context.Context, address string) (bool, error)
	GroupMetadata(ctx context.Context, address string) (*GroupInfo, error)
	Close() error
}

type ClientFactory interface {
	NewClient(ctx context.Context, opts ClientOptions) (ProtocolClient, error)
}

// StateStore persists opaque credential and cache blobs by storage name.
// Load returns ErrStateNotFound for unknown names; Delete of an unknown
// name is not an error.
type StateStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

type Notifier interface {
	SetDeviceStatus(ctx context.Context, sessionID string, status DeviceStatus) error
	// SendWebhook returns a nil reply when the consumer did not answer
	// with a complete reply body.
	SendWebhook(ctx context.Context, sessionID string, msg WebhookMessage) (*WebhookReply, error)
}

type PairingRenderer interface {
	Render(code string) (string, error)
}

type Sink interface {
	Name() string
	Type() string
	Connect(ctx context.Context) error
	Publish(ctx context.Context, evt LifecycleEvent) error
	Disconnect(ctx context.Context) error
}

type EventPublisher interface {
	Publish(ctx context.Context, evt LifecycleEvent)
}
