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

package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/store"
)

type sentMessage struct {
	address string
	payload json.RawMessage
}

type fakeClient struct {
	opts       core.ClientOptions
	connectErr error
	events     chan core.Event

	mu        sync.Mutex
	closed    bool
	loggedOut bool
	sent      []sentMessage
	sendErr   error
	known     map[string]bool
	groups    map[string]*core.GroupInfo
}

func newFakeClient(opts core.ClientOptions) *fakeClient {
	return &fakeClient{
		opts:   opts,
		events: make(chan core.Event, 64),
		known:  make(map[string]bool),
		groups: make(map[string]*core.GroupInfo),
	}
}

func (c *fakeClient) Connect(context.Context) error { return c.connectErr }
func (c *fakeClient) Events() <-chan core.Event      { return c.events }

func (c *fakeClient) Send(_ context.Context, address string, payload json.RawMessage) (*core.SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return nil, c.sendErr
	}
	c.sent = append(c.sent, sentMessage{address: address, payload: payload})
	return &core.SendResult{MessageID: "out-1", Timestamp: time.Now()}, nil
}

func (c *fakeClient) Logout(context.Context) error {
	c.mu.Lock()
	c.loggedOut = true
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) LookupAddress(_ context.Context, address string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if address == "boom@s.whatsapp.net" {
		return false, errors.New("engine failure")
	}
	return c.known[address], nil
}

func (c *fakeClient) GroupMetadata(_ context.Context, address string) (*core.GroupInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.groups[address]
	if !ok {
		return nil, errors.New("item-not-found")
	}
	return g, nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *fakeClient) emit(ev core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.events <- ev
	}
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) isLoggedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedOut
}

func (c *fakeClient) sentMessages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

type fakeFactory struct {
	mu         sync.Mutex
	clients    []*fakeClient
	connectErr error
	newErr     error
}

func (f *fakeFactory) NewClient(_ context.Context, opts core.ClientOptions) (core.ProtocolClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	c := newFakeClient(opts)
	c.connectErr = f.connectErr
	f.clients = append(f.clients, c)
	return c, nil
}

// failConnects makes clients built from now on fail to connect.
func (f *fakeFactory) failConnects(err error) {
	f.mu.Lock()
	f.connectErr = err
	f.mu.Unlock()
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) client(t *testing.T, i int) *fakeClient {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() > i }, time.Second, time.Millisecond)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

type statusCall struct {
	id     string
	status core.DeviceStatus
}

type fakeNotifier struct {
	mu       sync.Mutex
	statuses []statusCall
	webhooks []core.WebhookMessage
	reply    *core.WebhookReply
	panicFor string
}

func (n *fakeNotifier) SetDeviceStatus(_ context.Context, id string, status core.DeviceStatus) error {
	if id == n.panicFor {
		panic("notifier exploded")
	}
	n.mu.Lock()
	n.statuses = append(n.statuses, statusCall{id: id, status: status})
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) SendWebhook(_ context.Context, _ string, msg core.WebhookMessage) (*core.WebhookReply, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.webhooks = append(n.webhooks, msg)
	return n.reply, nil
}

func (n *fakeNotifier) statusesFor(id string) []core.DeviceStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []core.DeviceStatus
	for _, s := range n.statuses {
		if s.id == id {
			out = append(out, s.status)
		}
	}
	return out
}

func (n *fakeNotifier) webhookCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.webhooks)
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeScheduler records timers and fires them only on request.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.delay)
	}
	return out
}

// fire runs timer i the way time.AfterFunc would, ignoring Stop. The
// ledger's token check is what must turn a stale timer into a no-op.
func (s *fakeScheduler) fire(t *testing.T, i int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.count() > i }, time.Second, time.Millisecond)
	s.mu.Lock()
	timer := s.timers[i]
	s.mu.Unlock()
	timer.fn()
}

type fakeRenderer struct{ err error }

func (r fakeRenderer) Render(code string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "data:image/png;base64," + code, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.LifecycleEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt core.LifecycleEvent) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *recordingPublisher) types(id string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.SessionID == id {
			out = append(out, e.Type)
		}
	}
	return out
}

type harness struct {
	mgr       *Manager
	factory   *fakeFactory
	notifier  *fakeNotifier
	store     *store.MemoryStore
	sched     *fakeScheduler
	publisher *recordingPublisher
}

func newHarness(t *testing.T, maxRetries int) *harness {
	t.Helper()
	h := &harness{
		factory:   &fakeFactory{},
		notifier:  &fakeNotifier{},
		store:     store.NewMemoryStore(),
		sched:     &fakeScheduler{},
		publisher: &recordingPublisher{},
	}
	h.mgr = NewManager(Options{
		Store:     h.store,
		Factory:   h.factory,
		Notifier:  h.notifier,
		Renderer:  fakeRenderer{},
		Publisher: h.publisher,
		Ledger:    NewRetryLedger(h.sched),
		Policy:    RetryPolicy{MaxRetries: maxRetries, Base: time.Second, Cap: 30 * time.Second},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.mgr.Shutdown(ctx)
	})
	return h
}

func (h *harness) seedCredentials(t *testing.T, mode core.Mode, id string) {
	t.Helper()
	require.NoError(t, h.store.Save(context.Background(), core.CredentialName(mode, id), []byte(`{"creds":true}`)))
}

func (h *harness) stored(name string) bool {
	_, err := h.store.Load(context.Background(), name)
	return err == nil
}

func (h *harness) waitState(t *testing.T, id string, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, ok := h.mgr.Get(id)
		return ok && s.State() == want
	}, time.Second, time.Millisecond, "session %s never reached %s", id, want)
}

func (h *harness) waitGone(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool { return !h.mgr.Exists(id) }, time.Second, time.Millisecond)
}

func opened() core.Event {
	return core.Event{Kind: core.EventConnectionState, Connection: core.ConnectionOpen}
}

func closed(code int) core.Event {
	return core.Event{
		Kind:       core.EventConnectionState,
		Connection: core.ConnectionClose,
		Close:      &core.CloseReason{StatusCode: code},
	}
}

func waitResult(t *testing.T, req *Requester) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := req.Wait(ctx)
	require.NoError(t, err)
	return res
}
