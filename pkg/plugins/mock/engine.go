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

// Package mock is a simulated protocol engine for local development and
// end-to-end tests of the gateway.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

const (
	defaultPairAfter    = 3 * time.Second
	defaultCodeInterval = 20 * time.Second
	eventBuffer         = 32
)

var errClosed = errors.New("mock client closed")

type Options struct {
	// PairAfter is how long a fresh client waits before the simulated
	// scan. Zero disables auto pairing.
	PairAfter time.Duration
	// CodeInterval is how often an unscanned client rotates its code.
	CodeInterval time.Duration
	// Echo turns every send into an inbound message from the receiver.
	Echo bool
}

// OptionsFromConfig reads pair_after, code_interval and echo.
func OptionsFromConfig(cfg map[string]string) (Options, error) {
	opts := Options{PairAfter: defaultPairAfter, CodeInterval: defaultCodeInterval}
	for key, dst := range map[string]*time.Duration{"pair_after": &opts.PairAfter, "code_interval": &opts.CodeInterval} {
		v, ok := cfg[key]
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return opts, fmt.Errorf("mock engine %s: %w", key, err)
		}
		*dst = d
	}
	if v := cfg["echo"]; v != "" {
		echo, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("mock engine echo: %w", err)
		}
		opts.Echo = echo
	}
	if opts.CodeInterval <= 0 {
		opts.CodeInterval = defaultCodeInterval
	}
	return opts, nil
}

type Factory struct {
	opts   Options
	logger *slog.Logger
}

func NewFactory(opts Options, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{opts: opts, logger: logger}
}

// Builder adapts the factory to the plugin registry.
func Builder(cfg map[string]string, logger *slog.Logger) (core.ClientFactory, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewFactory(opts, logger), nil
}

func (f *Factory) NewClient(_ context.Context, opts core.ClientOptions) (core.ProtocolClient, error) {
	return &Client{
		id:      opts.SessionID,
		mode:    opts.Mode,
		paired:  len(opts.Credentials) > 0,
		opts:    f.opts,
		logger:  f.logger.With("session_id", opts.SessionID),
		events:  make(chan core.Event, eventBuffer),
		done:    make(chan struct{}),
		account: accountFor(opts.SessionID),
	}, nil
}

type Client struct {
	id      string
	mode    core.Mode
	paired  bool
	opts    Options
	logger  *slog.Logger
	account string

	events    chan core.Event
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

func (c *Client) Events() <-chan core.Event { return c.events }

func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	go c.simulate()
	return nil
}

func (c *Client) simulate() {
	if c.paired {
		c.emit(core.Event{Kind: core.EventConnectionState, Connection: core.ConnectionOpen})
		return
	}

	var pair <-chan time.Time
	if c.opts.PairAfter > 0 {
		t := time.NewTimer(c.opts.PairAfter)
		defer t.Stop()
		pair = t.C
	}
	rotate := time.NewTicker(c.opts.CodeInterval)
	defer rotate.Stop()

	n := 1
	c.emit(core.Event{Kind: core.EventPairingCode, PairingCode: c.code(n)})
	for {
		select {
		case <-c.done:
			return
		case <-rotate.C:
			n++
			c.emit(core.Event{Kind: core.EventPairingCode, PairingCode: c.code(n)})
		case <-pair:
			creds, _ := json.Marshal(map[string]string{"account": c.account, "mode": c.mode.String()})
			c.logger.Debug("mock pairing scanned")
			c.emit(core.Event{Kind: core.EventCredentialsChanged, Credentials: creds})
			c.emit(core.Event{Kind: core.EventConnectionState, Connection: core.ConnectionOpen})
			return
		}
	}
}

func (c *Client) code(n int) string {
	return fmt.Sprintf("mock,%s,%d,%s", c.id, n, uuid.New().String()[:8])
}

func (c *Client) Send(ctx context.Context, address string, payload json.RawMessage) (*core.SendResult, error) {
	if c.isClosed() {
		return nil, errClosed
	}
	res := &core.SendResult{MessageID: strings.ToUpper(uuid.New().String()[:16]), Timestamp: time.Now().UTC()}
	c.emit(core.Event{Kind: core.EventChatsSet, Chats: []core.Chat{{
		ID:                    address,
		ConversationTimestamp: res.Timestamp.Unix(),
	}}})
	if c.opts.Echo && !core.IsGroup(address) {
		c.emit(core.Event{Kind: core.EventMessageReceived, Message: &core.InboundMessage{
			ID:            uuid.New().String(),
			RemoteAddress: address,
			Upsert:        core.UpsertNotify,
			Payload:       payload,
			Timestamp:     res.Timestamp,
		}})
	}
	return res, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if c.isClosed() {
		return errClosed
	}
	c.emit(core.Event{
		Kind:       core.EventConnectionState,
		Connection: core.ConnectionClose,
		Close:      &core.CloseReason{StatusCode: core.StatusLoggedOut},
	})
	return nil
}

// Drop simulates the transport closing with the given status code.
func (c *Client) Drop(code int) {
	c.emit(core.Event{
		Kind:       core.EventConnectionState,
		Connection: core.ConnectionClose,
		Close:      &core.CloseReason{StatusCode: code},
	})
}

// LookupAddress treats every direct address with a numeric user part as
// registered.
func (c *Client) LookupAddress(ctx context.Context, address string) (bool, error) {
	if c.isClosed() {
		return false, errClosed
	}
	user, _, ok := strings.Cut(address, "@")
	if !ok || user == "" {
		return false, nil
	}
	_, err := strconv.ParseUint(user, 10, 64)
	return err == nil, nil
}

func (c *Client) GroupMetadata(ctx context.Context, address string) (*core.GroupInfo, error) {
	if c.isClosed() {
		return nil, errClosed
	}
	if !core.IsGroup(address) {
		return nil, fmt.Errorf("item-not-found: %s", address)
	}
	return &core.GroupInfo{
		ID:           address,
		Subject:      "Mock group " + strings.TrimSuffix(address, core.SuffixGroup),
		Owner:        c.account,
		Participants: []string{c.account},
	}, nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.closed = true
		close(c.events)
		c.mu.Unlock()
	})
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// emit drops the event once the client is closing.
func (c *Client) emit(ev core.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func accountFor(id string) string {
	n := 0
	for _, r := range id {
		n = (n*31 + int(r)) % 1_000_000_000
	}
	return fmt.Sprintf("62%09d%s", n, core.SuffixDirect)
}
