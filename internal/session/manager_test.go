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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

func (h *harness) waitDeleted(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, typ := range h.publisher.types(id) {
			if typ == core.EventTypeSessionDeleted {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond, "session %s was never deleted", id)
}

func TestPairingCodeDeliveredThenSessionDeleted(t *testing.T) {
	h := newHarness(t, 1)
	req := NewRequester()

	require.NoError(t, h.mgr.Create(context.Background(), "s1", core.ModeMultiDevice, req))
	c := h.factory.client(t, 0)
	assert.Empty(t, c.opts.Credentials)

	c.emit(core.Event{Kind: core.EventPairingCode, PairingCode: "code-1"})
	res := waitResult(t, req)
	assert.Equal(t, "data:image/png;base64,code-1", res.PairingArtifact)
	h.waitState(t, "s1", StateAwaitingPairing)

	// The first code lapsed unscanned.
	c.emit(core.Event{Kind: core.EventPairingCode, PairingCode: "code-2"})
	h.waitDeleted(t, "s1")

	assert.False(t, h.mgr.Exists("s1"))
	assert.True(t, c.isLoggedOut())
	assert.True(t, c.isClosed())
	assert.False(t, h.stored("md_s1"))
	assert.Contains(t, h.publisher.types("s1"), core.EventTypeSessionPairing)
}

func TestPairingCodeWithoutRequesterDeletesSession(t *testing.T) {
	h := newHarness(t, 1)

	require.NoError(t, h.mgr.Create(context.Background(), "lonely", core.ModeMultiDevice, nil))
	c := h.factory.client(t, 0)
	c.emit(core.Event{Kind: core.EventPairingCode, PairingCode: "code"})

	h.waitDeleted(t, "lonely")
	assert.True(t, c.isLoggedOut())
	assert.False(t, h.mgr.Exists("lonely"))
}

func TestPairingRenderFailureFailsRequester(t *testing.T) {
	h := newHarness(t, 1)
	h.mgr.renderer = fakeRenderer{err: errors.New("qr too large")}
	req := NewRequester()

	require.NoError(t, h.mgr.Create(context.Background(), "s1", core.ModeMultiDevice, req))
	h.factory.client(t, 0).emit(core.Event{Kind: core.EventPairingCode, PairingCode: "code"})

	res := waitResult(t, req)
	assert.ErrorIs(t, res.Err, core.ErrPairingRender)
	h.waitDeleted(t, "s1")
}

func TestOpenWithValidCredentialsAnswersRequester(t *testing.T) {
	h := newHarness(t, 1)
	h.seedCredentials(t, core.ModeMultiDevice, "s0")
	req := NewRequester()

	require.NoError(t, h.mgr.Create(context.Background(), "s0", core.ModeMultiDevice, req))
	c := h.factory.client(t, 0)
	assert.JSONEq(t, `{"creds":true}`, string(c.opts.Credentials))

	c.emit(opened())
	res := waitResult(t, req)
	assert.True(t, res.Connected)
	h.waitState(t, "s0", StateConnected)

	require.Eventually(t, func() bool {
		return len(h.notifier.statusesFor("s0")) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []core.DeviceStatus{core.DeviceOnline}, h.notifier.statusesFor("s0"))
}

func TestTransientClosesExhaustRetryBudget(t *testing.T) {
	h := newHarness(t, 2)
	h.seedCredentials(t, core.ModeMultiDevice, "s2")

	require.NoError(t, h.mgr.Create(context.Background(), "s2", core.ModeMultiDevice, nil))
	c0 := h.factory.client(t, 0)
	c0.emit(opened())
	h.waitState(t, "s2", StateConnected)

	c0.emit(closed(0))
	require.Eventually(t, func() bool { return h.sched.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.mgr.ledger.Attempts("s2"))
	assert.False(t, h.mgr.Exists("s2"))
	assert.True(t, c0.isClosed())
	st, ok := h.mgr.Status("s2")
	require.True(t, ok)
	assert.Equal(t, "reconnecting", st.State)

	h.sched.fire(t, 0)
	c1 := h.factory.client(t, 1)
	c1.emit(closed(503))
	require.Eventually(t, func() bool { return h.sched.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, h.mgr.ledger.Attempts("s2"))

	h.sched.fire(t, 1)
	c2 := h.factory.client(t, 2)
	c2.emit(closed(0))
	h.waitDeleted(t, "s2")

	assert.False(t, h.mgr.Exists("s2"))
	assert.False(t, h.mgr.ledger.Contains("s2"))
	assert.False(t, h.stored("md_s2"))
	assert.Equal(t, 2, h.sched.count())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.sched.delays())
}

func TestLoggedOutCloseTerminatesImmediately(t *testing.T) {
	h := newHarness(t, 5)
	h.seedCredentials(t, core.ModeLegacy, "s7")
	require.NoError(t, h.store.Save(context.Background(), core.CacheName("s7"), []byte(`{"chats":[]}`)))

	require.NoError(t, h.mgr.Create(context.Background(), "s7", core.ModeLegacy, nil))
	c := h.factory.client(t, 0)
	c.emit(opened())
	h.waitState(t, "s7", StateConnected)

	c.emit(closed(core.StatusLoggedOut))
	h.waitDeleted(t, "s7")

	assert.False(t, h.mgr.Exists("s7"))
	assert.False(t, h.mgr.ledger.Contains("s7"))
	assert.False(t, h.stored("legacy_s7"))
	assert.False(t, h.stored("s7_store"))
	assert.Zero(t, h.sched.count())

	statuses := h.notifier.statusesFor("s7")
	require.NotEmpty(t, statuses)
	assert.Equal(t, core.DeviceOffline, statuses[len(statuses)-1])
}

func TestCloseAfterFailedAttemptFailsWaitingRequester(t *testing.T) {
	h := newHarness(t, 1)
	h.seedCredentials(t, core.ModeMultiDevice, "s8")
	req := NewRequester()

	require.NoError(t, h.mgr.Create(context.Background(), "s8", core.ModeMultiDevice, req))
	h.factory.client(t, 0).emit(closed(0))
	require.Eventually(t, func() bool { return h.sched.count() == 1 }, time.Second, time.Millisecond)
	assert.True(t, req.Waiting())

	h.sched.fire(t, 0)
	h.factory.client(t, 1).emit(closed(0))

	res := waitResult(t, req)
	assert.ErrorIs(t, res.Err, core.ErrCreateFailed)
	h.waitDeleted(t, "s8")
}

func TestOpenResetsRetryLedger(t *testing.T) {
	h := newHarness(t, 3)
	h.seedCredentials(t, core.ModeMultiDevice, "s9")

	require.NoError(t, h.mgr.Create(context.Background(), "s9", core.ModeMultiDevice, nil))
	c0 := h.factory.client(t, 0)
	c0.emit(opened())
	c0.emit(closed(0))
	require.Eventually(t, func() bool { return h.sched.count() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, 1, h.mgr.ledger.Attempts("s9"))

	h.sched.fire(t, 0)
	h.factory.client(t, 1).emit(opened())
	h.waitState(t, "s9", StateConnected)

	assert.False(t, h.mgr.ledger.Contains("s9"))
	assert.Zero(t, h.mgr.ledger.Attempts("s9"))
}

func TestDeleteDuringBackoffCancelsReconnection(t *testing.T) {
	h := newHarness(t, 3)
	h.seedCredentials(t, core.ModeMultiDevice, "s4")

	require.NoError(t, h.mgr.Create(context.Background(), "s4", core.ModeMultiDevice, nil))
	c0 := h.factory.client(t, 0)
	c0.emit(opened())
	c0.emit(closed(0))
	require.Eventually(t, func() bool { return h.mgr.ledger.Pending("s4") }, time.Second, time.Millisecond)

	require.NoError(t, h.mgr.Delete(context.Background(), "s4", core.ModeMultiDevice))
	assert.False(t, h.mgr.ledger.Contains("s4"))
	assert.False(t, h.stored("md_s4"))

	h.sched.fire(t, 0)
	assert.Equal(t, 1, h.factory.count())
	assert.False(t, h.mgr.Exists("s4"))
}

func TestExplicitCreateSupersedesPendingReconnection(t *testing.T) {
	h := newHarness(t, 3)
	h.seedCredentials(t, core.ModeMultiDevice, "s5")

	require.NoError(t, h.mgr.Create(context.Background(), "s5", core.ModeMultiDevice, nil))
	c0 := h.factory.client(t, 0)
	c0.emit(opened())
	c0.emit(closed(0))
	require.Eventually(t, func() bool { return h.mgr.ledger.Pending("s5") }, time.Second, time.Millisecond)

	require.NoError(t, h.mgr.Create(context.Background(), "s5", core.ModeMultiDevice, nil))
	h.factory.client(t, 1)
	assert.False(t, h.mgr.ledger.Pending("s5"))
	assert.Equal(t, 1, h.mgr.ledger.Attempts("s5"))

	h.sched.fire(t, 0)
	assert.Equal(t, 2, h.factory.count())
}

func TestCreateRejectsDuplicateAndInvalidIDs(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	require.NoError(t, h.mgr.Create(ctx, "dup", core.ModeMultiDevice, nil))
	err := h.mgr.Create(ctx, "dup", core.ModeMultiDevice, nil)
	assert.ErrorIs(t, err, core.ErrSessionExists)
	assert.Equal(t, 1, h.factory.count())

	for _, id := range []string{"", "../etc", "a/b", "has space", "shop_store"} {
		assert.ErrorIs(t, h.mgr.Create(ctx, id, core.ModeMultiDevice, nil), core.ErrInvalidSessionID, "id %q", id)
	}
}

func TestConnectFailureFailsRequesterAndDeletes(t *testing.T) {
	h := newHarness(t, 1)
	h.factory.connectErr = errors.New("dial tcp: refused")
	req := NewRequester()

	require.NoError(t, h.mgr.Create(context.Background(), "cf", core.ModeMultiDevice, req))

	res := waitResult(t, req)
	assert.ErrorIs(t, res.Err, core.ErrCreateFailed)
	h.waitDeleted(t, "cf")
	assert.False(t, h.mgr.Exists("cf"))
}

func TestReconnectConnectFailureKeepsCredentials(t *testing.T) {
	h := newHarness(t, 5)
	h.seedCredentials(t, core.ModeMultiDevice, "rc")

	require.NoError(t, h.mgr.Create(context.Background(), "rc", core.ModeMultiDevice, nil))
	c0 := h.factory.client(t, 0)
	c0.emit(opened())
	h.waitState(t, "rc", StateConnected)

	c0.emit(closed(428))
	require.Eventually(t, func() bool { return h.sched.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.mgr.ledger.Attempts("rc"))

	h.factory.failConnects(errors.New("dial tcp: network is unreachable"))
	h.sched.fire(t, 0)

	require.Eventually(t, func() bool { return h.sched.count() == 2 }, time.Second, time.Millisecond)
	assert.True(t, h.stored("md_rc"))
	assert.Equal(t, 2, h.mgr.ledger.Attempts("rc"))
	assert.True(t, h.mgr.ledger.Pending("rc"))
	c1 := h.factory.client(t, 1)
	assert.Eventually(t, c1.isClosed, time.Second, time.Millisecond)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, h.sched.delays())
	assert.NotContains(t, h.publisher.types("rc"), core.EventTypeSessionDeleted)

	st, ok := h.mgr.Status("rc")
	require.True(t, ok)
	assert.Equal(t, "reconnecting", st.State)
}

func TestReconnectConnectFailuresExhaustRetryBudget(t *testing.T) {
	h := newHarness(t, 2)
	h.seedCredentials(t, core.ModeMultiDevice, "rx")

	require.NoError(t, h.mgr.Create(context.Background(), "rx", core.ModeMultiDevice, nil))
	c0 := h.factory.client(t, 0)
	c0.emit(opened())
	h.waitState(t, "rx", StateConnected)

	h.factory.failConnects(errors.New("dial tcp: refused"))
	c0.emit(closed(0))
	h.sched.fire(t, 0)
	h.sched.fire(t, 1)

	h.waitDeleted(t, "rx")
	assert.False(t, h.stored("md_rx"))
	assert.False(t, h.mgr.ledger.Contains("rx"))
	assert.Equal(t, 2, h.sched.count())
}

func TestRestoreConnectFailureSchedulesReconnect(t *testing.T) {
	h := newHarness(t, 3)
	h.seedCredentials(t, core.ModeMultiDevice, "boot")
	h.factory.failConnects(errors.New("dial tcp: network is unreachable"))

	n, err := h.mgr.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool { return h.sched.count() == 1 }, time.Second, time.Millisecond)
	assert.True(t, h.stored("md_boot"))
	assert.Equal(t, 1, h.mgr.ledger.Attempts("boot"))
	assert.Equal(t, []core.DeviceStatus{core.DeviceOffline}, h.notifier.statusesFor("boot"))
}

func TestDeleteDuringBackoffUsesPendingMode(t *testing.T) {
	h := newHarness(t, 3)
	h.seedCredentials(t, core.ModeLegacy, "old")

	require.NoError(t, h.mgr.Create(context.Background(), "old", core.ModeLegacy, nil))
	c0 := h.factory.client(t, 0)
	c0.emit(opened())
	h.waitState(t, "old", StateConnected)

	c0.emit(closed(0))
	require.Eventually(t, func() bool { return h.mgr.ledger.Pending("old") }, time.Second, time.Millisecond)

	st, ok := h.mgr.Status("old")
	require.True(t, ok)
	assert.Equal(t, "reconnecting", st.State)
	assert.Equal(t, core.ModeLegacy.String(), st.Mode)

	require.NoError(t, h.mgr.Delete(context.Background(), "old", core.ModeMultiDevice))
	assert.False(t, h.stored("legacy_old"))
	assert.False(t, h.mgr.ledger.Contains("old"))

	h.sched.fire(t, 0)
	assert.Equal(t, 1, h.factory.count())
	_, ok = h.mgr.Status("old")
	assert.False(t, ok)
}

func TestFactoryFailureSurfacesToCaller(t *testing.T) {
	h := newHarness(t, 1)
	h.factory.newErr = errors.New("engine unavailable")
	req := NewRequester()

	err := h.mgr.Create(context.Background(), "ff", core.ModeMultiDevice, req)
	assert.ErrorIs(t, err, core.ErrCreateFailed)

	res := waitResult(t, req)
	assert.ErrorIs(t, res.Err, core.ErrCreateFailed)
	assert.Equal(t, []core.DeviceStatus{core.DeviceOffline}, h.notifier.statusesFor("ff"))
}

func TestCredentialsChangedArePersisted(t *testing.T) {
	h := newHarness(t, 1)

	require.NoError(t, h.mgr.Create(context.Background(), "s6", core.ModeMultiDevice, nil))
	h.factory.client(t, 0).emit(core.Event{
		Kind:        core.EventCredentialsChanged,
		Credentials: []byte(`{"noise":"key"}`),
	})

	require.Eventually(t, func() bool { return h.stored("md_s6") }, time.Second, time.Millisecond)
	data, err := h.store.Load(context.Background(), "md_s6")
	require.NoError(t, err)
	assert.JSONEq(t, `{"noise":"key"}`, string(data))
}

func TestInboundMessageFiltering(t *testing.T) {
	h := newHarness(t, 1)
	h.seedCredentials(t, core.ModeMultiDevice, "s3")

	require.NoError(t, h.mgr.Create(context.Background(), "s3", core.ModeMultiDevice, nil))
	c := h.factory.client(t, 0)
	c.emit(opened())

	msgs := []*core.InboundMessage{
		{ID: "own", RemoteAddress: "1@s.whatsapp.net", FromMe: true, Upsert: core.UpsertNotify},
		{ID: "group", RemoteAddress: "123-456@g.us", Upsert: core.UpsertNotify},
		{ID: "history", RemoteAddress: "1@s.whatsapp.net", Upsert: core.UpsertAppend},
		{ID: "live", RemoteAddress: "1@s.whatsapp.net", Upsert: core.UpsertNotify, Payload: json.RawMessage(`{"conversation":"hi"}`)},
	}
	for _, m := range msgs {
		c.emit(core.Event{Kind: core.EventMessageReceived, Message: m})
	}

	require.Eventually(t, func() bool { return h.notifier.webhookCount() == 1 }, time.Second, time.Millisecond)
	h.notifier.mu.Lock()
	got := h.notifier.webhooks[0]
	h.notifier.mu.Unlock()
	assert.Equal(t, "live", got.MessageID)
	assert.Equal(t, "1@s.whatsapp.net", got.From)
	assert.JSONEq(t, `{"conversation":"hi"}`, string(got.Message))
}

func TestWebhookReplyIsSentWithoutDelay(t *testing.T) {
	h := newHarness(t, 1)
	h.seedCredentials(t, core.ModeMultiDevice, "s3")
	h.notifier.reply = &core.WebhookReply{
		SessionID: "s3",
		Receiver:  "1234@direct",
		Message:   json.RawMessage(`"ok"`),
	}

	require.NoError(t, h.mgr.Create(context.Background(), "s3", core.ModeMultiDevice, nil))
	c := h.factory.client(t, 0)
	c.emit(opened())
	h.waitState(t, "s3", StateConnected)

	start := time.Now()
	c.emit(core.Event{Kind: core.EventMessageReceived, Message: &core.InboundMessage{
		ID:            "m1",
		RemoteAddress: "1234@direct",
		Upsert:        core.UpsertNotify,
		Payload:       json.RawMessage(`"P"`),
	}})

	require.Eventually(t, func() bool { return len(c.sentMessages()) == 1 }, time.Second, time.Millisecond)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	sent := c.sentMessages()[0]
	assert.Equal(t, "1234@direct", sent.address)
	assert.JSONEq(t, `"ok"`, string(sent.payload))
}

func TestChatsSetByMode(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	require.NoError(t, h.mgr.Create(ctx, "md1", core.ModeMultiDevice, nil))
	require.NoError(t, h.mgr.Create(ctx, "lg1", core.ModeLegacy, nil))
	md := h.factory.client(t, 0)
	lg := h.factory.client(t, 1)

	first := []core.Chat{{ID: "1@s.whatsapp.net", Name: "first"}, {ID: "9-9@g.us", Name: "group"}}
	second := []core.Chat{{ID: "1@s.whatsapp.net", Name: "second"}}
	for _, c := range []*fakeClient{md, lg} {
		c.emit(core.Event{Kind: core.EventChatsSet, Chats: first})
		c.emit(core.Event{Kind: core.EventChatsSet, Chats: second})
		c.emit(core.Event{Kind: core.EventCredentialsChanged, Credentials: []byte("x")})
	}
	require.Eventually(t, func() bool {
		return h.stored("md_md1") && h.stored("legacy_lg1")
	}, time.Second, time.Millisecond)

	direct, err := h.mgr.ChatList("md1", false)
	require.NoError(t, err)
	require.Len(t, direct, 1)
	assert.Equal(t, "second", direct[0].Name)

	direct, err = h.mgr.ChatList("lg1", false)
	require.NoError(t, err)
	require.Len(t, direct, 1)
	assert.Equal(t, "first", direct[0].Name)

	groups, err := h.mgr.ChatList("lg1", true)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "9-9@g.us", groups[0].ID)

	_, err = h.mgr.ChatList("ghost", false)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestRestoreRecreatesStoredSessions(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	for _, name := range []string{"md_a", "legacy_b", "a_store", "junk", "md_"} {
		require.NoError(t, h.store.Save(ctx, name, []byte("{}")))
	}

	n, err := h.mgr.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Equal(t, 2, h.factory.count())

	lg := h.factory.client(t, 0)
	md := h.factory.client(t, 1)
	assert.Equal(t, "b", lg.opts.SessionID)
	assert.Equal(t, core.ModeLegacy, lg.opts.Mode)
	assert.Equal(t, "a", md.opts.SessionID)
	assert.Equal(t, core.ModeMultiDevice, md.opts.Mode)
}

func TestShutdownPersistsMultiDeviceCaches(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()

	require.NoError(t, h.mgr.Create(ctx, "a", core.ModeMultiDevice, nil))
	require.NoError(t, h.mgr.Create(ctx, "b", core.ModeLegacy, nil))
	chats := []core.Chat{{ID: "1@s.whatsapp.net", Name: "one"}}
	h.factory.client(t, 0).emit(core.Event{Kind: core.EventChatsSet, Chats: chats})
	h.factory.client(t, 1).emit(core.Event{Kind: core.EventChatsSet, Chats: chats})

	require.Eventually(t, func() bool {
		a, _ := h.mgr.Get("a")
		b, _ := h.mgr.Get("b")
		return a.Cache.Len() == 1 && b.Cache.Len() == 1
	}, time.Second, time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, h.mgr.Shutdown(shutdownCtx))

	data, err := h.store.Load(ctx, "a_store")
	require.NoError(t, err)
	assert.Contains(t, string(data), "1@s.whatsapp.net")
	assert.False(t, h.stored("b_store"))
}

func TestShutdownDisarmsPendingReconnections(t *testing.T) {
	h := newHarness(t, 3)
	h.seedCredentials(t, core.ModeMultiDevice, "p1")

	require.NoError(t, h.mgr.Create(context.Background(), "p1", core.ModeMultiDevice, nil))
	h.factory.client(t, 0).emit(closed(0))
	require.Eventually(t, func() bool { return h.mgr.ledger.Pending("p1") }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.mgr.Shutdown(ctx))

	h.sched.fire(t, 0)
	assert.Equal(t, 1, h.factory.count())
}

func TestEventPanicStaysInsideSession(t *testing.T) {
	h := newHarness(t, 1)
	h.notifier.panicFor = "bad"
	h.seedCredentials(t, core.ModeMultiDevice, "bad")
	h.seedCredentials(t, core.ModeMultiDevice, "good")
	ctx := context.Background()

	require.NoError(t, h.mgr.Create(ctx, "bad", core.ModeMultiDevice, nil))
	require.NoError(t, h.mgr.Create(ctx, "good", core.ModeMultiDevice, nil))
	bad := h.factory.client(t, 0)
	good := h.factory.client(t, 1)

	bad.emit(opened())
	good.emit(opened())
	require.Eventually(t, func() bool {
		return len(h.notifier.statusesFor("good")) == 1
	}, time.Second, time.Millisecond)

	bad.emit(core.Event{Kind: core.EventCredentialsChanged, Credentials: []byte(`{"after":"panic"}`)})
	require.Eventually(t, func() bool {
		data, err := h.store.Load(ctx, "md_bad")
		return err == nil && string(data) == `{"after":"panic"}`
	}, time.Second, time.Millisecond)
	assert.True(t, h.mgr.Exists("bad"))
}

func TestErrorEventReportsOfflineWithoutTransition(t *testing.T) {
	h := newHarness(t, 1)
	h.seedCredentials(t, core.ModeMultiDevice, "e1")

	require.NoError(t, h.mgr.Create(context.Background(), "e1", core.ModeMultiDevice, nil))
	c := h.factory.client(t, 0)
	c.emit(opened())
	h.waitState(t, "e1", StateConnected)
	c.emit(core.Event{Kind: core.EventError, Err: errors.New("stream errored")})

	require.Eventually(t, func() bool {
		return len(h.notifier.statusesFor("e1")) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []core.DeviceStatus{core.DeviceOnline, core.DeviceOffline}, h.notifier.statusesFor("e1"))
	s, ok := h.mgr.Get("e1")
	require.True(t, ok)
	assert.Equal(t, StateConnected, s.State())
}
