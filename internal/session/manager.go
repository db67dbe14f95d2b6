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
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/logging"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/metrics"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

const defaultIOTimeout = 10 * time.Second

type Options struct {
	Store     core.StateStore
	Factory   core.ClientFactory
	Notifier  core.Notifier
	Renderer  core.PairingRenderer
	Publisher core.EventPublisher
	Registry  *Registry
	Ledger    *RetryLedger
	Policy    RetryPolicy
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	PacketLog *logging.PacketLogger
	// IOTimeout bounds each store and notifier call made while handling
	// an event.
	IOTimeout time.Duration
}

// Manager drives every session through its connection state machine.
// Events of one client instance are handled in order on a dedicated
// goroutine; instances never share one.
type Manager struct {
	registry  *Registry
	ledger    *RetryLedger
	store     core.StateStore
	factory   core.ClientFactory
	notifier  core.Notifier
	renderer  core.PairingRenderer
	publisher core.EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	packetLog *logging.PacketLogger
	ioTimeout time.Duration

	policy atomic.Pointer[RetryPolicy]

	// lifecycle serialises registry membership changes against ledger
	// intent so a reconnection cannot race a deletion.
	lifecycle sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	forwards sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Ledger == nil {
		opts.Ledger = NewRetryLedger(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = defaultIOTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry:  opts.Registry,
		ledger:    opts.Ledger,
		store:     opts.Store,
		factory:   opts.Factory,
		notifier:  opts.Notifier,
		renderer:  opts.Renderer,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		packetLog: opts.PacketLog,
		ioTimeout: opts.IOTimeout,
		ctx:       ctx,
		cancel:    cancel,
	}
	policy := opts.Policy
	m.policy.Store(&policy)
	return m
}

func (m *Manager) RetryPolicy() RetryPolicy {
	return *m.policy.Load()
}

// SetRetryPolicy applies to disconnections handled after the call.
func (m *Manager) SetRetryPolicy(p RetryPolicy) {
	m.policy.Store(&p)
	m.logger.Info("retry policy updated",
		"max_retries", p.Max(),
		"backoff_base", p.Base,
		"backoff_cap", p.Cap,
	)
}

// Create instantiates a session. req may be nil when nobody waits for the
// outcome. A pending reconnection for id is superseded.
func (m *Manager) Create(ctx context.Context, id string, mode core.Mode, req *Requester) error {
	if err := core.ValidateSessionID(id); err != nil {
		return err
	}
	if m.registry.Contains(id) {
		return fmt.Errorf("%w: id=%s", core.ErrSessionExists, id)
	}
	return m.instantiate(ctx, id, mode, req, false)
}

func (m *Manager) instantiate(ctx context.Context, id string, mode core.Mode, req *Requester, reconnect bool) error {
	creds, err := m.load(ctx, core.CredentialName(mode, id))
	if err != nil {
		return m.abort(ctx, id, req, reconnect, fmt.Errorf("load credentials: %w", err))
	}

	cache := NewChatCache()
	if mode == core.ModeMultiDevice {
		data, err := m.load(ctx, core.CacheName(id))
		switch {
		case err != nil:
			m.logger.Warn("chat cache load failed", "session_id", id, "error", err)
		case data != nil:
			if err := cache.Load(data); err != nil {
				m.logger.Warn("chat cache discarded", "session_id", id, "error", err)
			}
		}
	}

	client, err := m.factory.NewClient(ctx, core.ClientOptions{
		SessionID:   id,
		Mode:        mode,
		Credentials: creds,
	})
	if err != nil {
		return m.abort(ctx, id, req, reconnect, fmt.Errorf("new client: %w", err))
	}

	sess := newSession(id, mode, client, cache, req)
	sess.resumable = reconnect || len(creds) > 0

	m.lifecycle.Lock()
	if reconnect && !m.ledger.Contains(id) {
		m.lifecycle.Unlock()
		_ = client.Close()
		m.logger.Info("reconnection dropped, session was deleted", "session_id", id)
		return nil
	}
	if _, stored := m.registry.PutIfAbsent(sess); !stored {
		m.lifecycle.Unlock()
		_ = client.Close()
		return fmt.Errorf("%w: id=%s", core.ErrSessionExists, id)
	}
	if !reconnect && m.ledger.CancelPending(id) {
		m.logger.Info("pending reconnection superseded", "session_id", id)
	}
	m.lifecycle.Unlock()

	attempt := m.ledger.Attempts(id)
	m.metrics.SessionOpened()
	m.metrics.Transition(StateInitializing.String())
	m.emit(core.LifecycleEvent{
		Type:      core.EventTypeSessionCreated,
		SessionID: id,
		Mode:      mode.String(),
		State:     StateInitializing.String(),
		Attempt:   attempt,
	})
	m.logger.Info("session created",
		"session_id", id,
		"mode", mode.String(),
		"reconnect", reconnect,
		"attempt", attempt,
		"has_credentials", len(creds) > 0,
	)

	go m.run(sess)
	return nil
}

func (m *Manager) abort(ctx context.Context, id string, req *Requester, reconnect bool, cause error) error {
	m.logger.Error("session instantiation failed", "session_id", id, "reconnect", reconnect, "error", cause)
	if reconnect {
		m.ledger.Clear(id)
	}
	m.reportStatus(ctx, id, core.DeviceOffline)
	req.answer(Result{Err: core.ErrCreateFailed})
	return fmt.Errorf("%w: %w", core.ErrCreateFailed, cause)
}

func (m *Manager) load(ctx context.Context, name string) ([]byte, error) {
	data, err := m.store.Load(ctx, name)
	if errors.Is(err, core.ErrStateNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) run(sess *Session) {
	connectErr := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				connectErr <- fmt.Errorf("connect panic: %v", r)
			}
		}()
		connectErr <- sess.Client.Connect(m.ctx)
	}()

	events := sess.Client.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case err := <-connectErr:
			connectErr = nil
			if err != nil {
				m.logger.Warn("client connect failed", "session_id", sess.ID, "error", err)
				m.process(sess, Input{
					Kind:             InputConnectFailed,
					Resumable:        sess.resumable,
					Attempts:         m.ledger.Attempts(sess.ID),
					MaxRetries:       m.RetryPolicy().Max(),
					RequesterWaiting: sess.requester.Waiting(),
				}, core.Event{Kind: core.EventError, Err: err})
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			in, ok := m.inputFor(sess, ev)
			if !ok {
				continue
			}
			m.process(sess, in, ev)
		}
	}
}

func (m *Manager) inputFor(sess *Session, ev core.Event) (Input, bool) {
	in := Input{
		Attempts:         m.ledger.Attempts(sess.ID),
		MaxRetries:       m.RetryPolicy().Max(),
		RequesterWaiting: sess.requester.Waiting(),
		Message:          ev.Message,
	}
	switch ev.Kind {
	case core.EventPairingCode:
		in.Kind = InputPairingCode
	case core.EventConnectionState:
		switch ev.Connection {
		case core.ConnectionOpen:
			in.Kind = InputOpened
		case core.ConnectionClose:
			in.Kind = InputClosed
			in.LoggedOut = ev.Close.LoggedOut()
		default:
			return in, false
		}
	case core.EventCredentialsChanged:
		in.Kind = InputCredentials
	case core.EventMessageReceived:
		in.Kind = InputMessage
	case core.EventChatsSet:
		in.Kind = InputChats
	case core.EventError:
		in.Kind = InputError
	default:
		return in, false
	}
	return in, true
}

// process runs one transition and its actions. A panic is contained to
// the event that raised it.
func (m *Manager) process(sess *Session, in Input, ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.Panic()
			m.logger.Error("session event panic recovered",
				"session_id", sess.ID,
				"event", ev.Kind.String(),
				"error", r,
			)
		}
	}()

	if sess.retired.Load() {
		return
	}

	cur := sess.State()
	dec := Transition(cur, in)
	for _, st := range dec.Path {
		sess.setState(st)
		m.metrics.Transition(st.String())
		m.emitState(sess, st, in)
	}
	if len(dec.Path) > 0 {
		m.logger.Info("session state changed",
			"session_id", sess.ID,
			"from", cur.String(),
			"to", dec.Next(cur).String(),
		)
	}
	if in.Kind == InputMessage {
		m.packetLog.Inbound(sess.ID, ev.Message, len(dec.Actions) > 0)
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.ioTimeout)
	defer cancel()
	for _, act := range dec.Actions {
		m.apply(ctx, sess, act, in, ev)
	}
}

func (m *Manager) apply(ctx context.Context, sess *Session, act Action, in Input, ev core.Event) {
	switch act {
	case ActionDeliverPairing:
		m.deliverPairing(ctx, sess, ev.PairingCode)
	case ActionLogout:
		if err := sess.Client.Logout(ctx); err != nil {
			m.logger.Debug("logout failed", "session_id", sess.ID, "error", err)
		}
	case ActionDelete:
		m.teardown(ctx, sess, sess.ID, sess.Mode, terminationReason(in))
	case ActionClearRetries:
		m.ledger.Clear(sess.ID)
	case ActionReportOnline:
		m.reportStatus(ctx, sess.ID, core.DeviceOnline)
	case ActionReportOffline:
		m.reportStatus(ctx, sess.ID, core.DeviceOffline)
	case ActionAnswerConnected:
		sess.requester.answer(Result{Connected: true})
	case ActionFailRequester:
		sess.requester.answer(Result{Err: core.ErrCreateFailed})
	case ActionScheduleReconnect:
		m.scheduleReconnect(sess)
	case ActionPersistCredentials:
		if err := m.store.Save(ctx, core.CredentialName(sess.Mode, sess.ID), ev.Credentials); err != nil {
			m.logger.Error("credential persist failed", "session_id", sess.ID, "error", err)
		}
	case ActionForwardMessage:
		m.forward(sess, ev.Message)
	case ActionUpdateChats:
		if sess.Mode == core.ModeLegacy {
			sess.Cache.InsertIfAbsent(ev.Chats...)
		} else {
			sess.Cache.Upsert(ev.Chats...)
		}
	}
}

func (m *Manager) deliverPairing(ctx context.Context, sess *Session, code string) {
	artifact := code
	if m.renderer != nil {
		rendered, err := m.renderer.Render(code)
		if err != nil {
			m.logger.Error("pairing code render failed", "session_id", sess.ID, "error", err)
			sess.requester.answer(Result{Err: core.ErrPairingRender})
			sess.setState(StateTerminated)
			m.metrics.Transition(StateTerminated.String())
			if err := sess.Client.Logout(ctx); err != nil {
				m.logger.Debug("logout failed", "session_id", sess.ID, "error", err)
			}
			m.teardown(ctx, sess, sess.ID, sess.Mode, "pairing_render_failed")
			return
		}
		artifact = rendered
	}
	if sess.requester.answer(Result{PairingArtifact: artifact}) {
		m.logger.Info("pairing code delivered", "session_id", sess.ID)
	}
}

func (m *Manager) scheduleReconnect(sess *Session) {
	id, mode, req := sess.ID, sess.Mode, sess.requester
	policy := m.RetryPolicy()

	m.lifecycle.Lock()
	removed := m.registry.RemoveInstance(sess)
	attempt := m.ledger.Increment(id)
	m.ledger.SetMode(id, mode)
	delay := policy.Delay(attempt)
	m.ledger.Schedule(id, delay, func() { m.reconnect(id, mode, req) })
	m.lifecycle.Unlock()

	sess.retire()
	_ = sess.Client.Close()
	if removed {
		m.metrics.SessionClosed()
	}
	m.metrics.ReconnectScheduled()
	m.emit(core.LifecycleEvent{
		Type:      core.EventTypeSessionReconnecting,
		SessionID: id,
		Mode:      mode.String(),
		State:     StateReconnecting.String(),
		Attempt:   attempt,
		Metadata:  map[string]string{"delay": delay.String()},
	})
	m.logger.Info("reconnection scheduled",
		"session_id", id,
		"attempt", attempt,
		"max_retries", policy.Max(),
		"delay", delay,
	)
}

func (m *Manager) reconnect(id string, mode core.Mode, req *Requester) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.Panic()
			m.logger.Error("reconnection panic recovered", "session_id", id, "error", r)
		}
	}()
	if m.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.ioTimeout)
	defer cancel()
	if err := m.instantiate(ctx, id, mode, req, true); err != nil && !errors.Is(err, core.ErrSessionExists) {
		m.logger.Error("reconnection failed", "session_id", id, "error", err)
	}
}

// Delete removes every trace of a session. The mode of a live session,
// or of a pending reconnection, takes precedence over mode. Deleting an
// unknown id is not an error.
func (m *Manager) Delete(ctx context.Context, id string, mode core.Mode) error {
	if err := core.ValidateSessionID(id); err != nil {
		return err
	}
	if s, ok := m.registry.Get(id); ok {
		mode = s.Mode
	} else if pending, ok := m.ledger.Mode(id); ok && m.ledger.Pending(id) {
		mode = pending
	}
	m.teardown(ctx, nil, id, mode, "deleted")
	return nil
}

// teardown removes the session from the registry and the ledger before
// touching storage. sess is nil when the caller holds no instance.
func (m *Manager) teardown(ctx context.Context, sess *Session, id string, mode core.Mode, reason string) {
	m.lifecycle.Lock()
	m.ledger.Clear(id)
	removed := false
	if sess != nil {
		removed = m.registry.RemoveInstance(sess)
	} else if s, ok := m.registry.Remove(id); ok {
		sess, removed = s, true
	}
	m.lifecycle.Unlock()

	if sess != nil {
		sess.retire()
		sess.setState(StateTerminated)
		_ = sess.Client.Close()
	}
	if removed {
		m.metrics.SessionClosed()
	}

	for _, name := range []string{core.CredentialName(mode, id), core.CacheName(id)} {
		if err := m.store.Delete(ctx, name); err != nil {
			m.logger.Error("session storage delete failed", "session_id", id, "name", name, "error", err)
		}
	}
	m.reportStatus(ctx, id, core.DeviceOffline)

	m.metrics.Terminated(reason)
	m.emit(core.LifecycleEvent{
		Type:      core.EventTypeSessionDeleted,
		SessionID: id,
		Mode:      mode.String(),
		State:     StateTerminated.String(),
		Metadata:  map[string]string{"reason": reason},
	})
	m.logger.Info("session deleted", "session_id", id, "mode", mode.String(), "reason", reason)
}

func (m *Manager) reportStatus(ctx context.Context, id string, status core.DeviceStatus) {
	if m.notifier == nil {
		return
	}
	label := "offline"
	if status == core.DeviceOnline {
		label = "online"
	}
	if err := m.notifier.SetDeviceStatus(ctx, id, status); err != nil {
		m.metrics.DeviceStatus(label, "error")
		m.logger.Warn("device status report failed", "session_id", id, "status", label, "error", err)
		return
	}
	m.metrics.DeviceStatus(label, "ok")
}

// forward hands an inbound message to the webhook without blocking the
// session's event goroutine. A reply is sent back with no pacing delay.
func (m *Manager) forward(sess *Session, msg *core.InboundMessage) {
	m.emit(core.LifecycleEvent{
		Type:      core.EventTypeMessageReceived,
		SessionID: sess.ID,
		Mode:      sess.Mode.String(),
		State:     sess.State().String(),
		Payload:   msg.Payload,
		Metadata:  map[string]string{"from": msg.RemoteAddress, "message_id": msg.ID},
	})
	if m.notifier == nil {
		return
	}

	id := sess.ID
	m.forwards.Add(1)
	go func() {
		defer m.forwards.Done()
		defer func() {
			if r := recover(); r != nil {
				m.metrics.Panic()
				m.logger.Error("webhook forward panic recovered", "session_id", id, "error", r)
			}
		}()

		ctx, cancel := context.WithTimeout(m.ctx, m.ioTimeout)
		defer cancel()

		reply, err := m.notifier.SendWebhook(ctx, id, core.WebhookMessage{
			From:      msg.RemoteAddress,
			MessageID: msg.ID,
			Message:   msg.Payload,
		})
		if err != nil {
			m.metrics.Webhook("error")
			m.logger.Warn("webhook forward failed", "session_id", id, "message_id", msg.ID, "error", err)
			return
		}
		if reply == nil {
			m.metrics.Webhook("delivered")
			return
		}
		m.metrics.Webhook("replied")

		target := reply.SessionID
		if target == "" {
			target = id
		}
		live, ok := m.registry.Get(target)
		if !ok {
			m.logger.Warn("webhook reply for inactive session", "session_id", target)
			return
		}
		if _, err := m.Send(ctx, live, reply.Receiver, reply.Message, 0); err != nil {
			m.logger.Warn("webhook reply send failed", "session_id", target, "receiver", reply.Receiver)
		}
	}()
}

func (m *Manager) emitState(sess *Session, st State, in Input) {
	var typ string
	switch st {
	case StateAwaitingPairing:
		typ = core.EventTypeSessionPairing
	case StateConnected:
		typ = core.EventTypeSessionConnected
	case StateDisconnected:
		typ = core.EventTypeSessionDisconnected
	case StateTerminated:
		typ = core.EventTypeSessionTerminated
	default:
		return
	}
	evt := core.LifecycleEvent{
		Type:      typ,
		SessionID: sess.ID,
		Mode:      sess.Mode.String(),
		State:     st.String(),
		Attempt:   in.Attempts,
	}
	if st == StateTerminated {
		evt.Metadata = map[string]string{"reason": terminationReason(in)}
	}
	if in.Kind == InputClosed {
		if evt.Metadata == nil {
			evt.Metadata = map[string]string{}
		}
		evt.Metadata["logged_out"] = strconv.FormatBool(in.LoggedOut)
	}
	m.emit(evt)
}

func (m *Manager) emit(evt core.LifecycleEvent) {
	if m.publisher == nil {
		return
	}
	evt.ID = uuid.New().String()
	evt.Timestamp = time.Now().UTC()
	m.publisher.Publish(m.ctx, evt)
}

func terminationReason(in Input) string {
	switch in.Kind {
	case InputPairingCode:
		return "pairing_expired"
	case InputConnectFailed:
		return "connect_failed"
	case InputClosed:
		if in.LoggedOut {
			return "logged_out"
		}
		return "retries_exhausted"
	default:
		return "deleted"
	}
}
