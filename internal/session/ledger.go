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
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d. It stands in for time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

func RealScheduler() Scheduler { return realScheduler{} }

type ledgerEntry struct {
	attempts int
	mode     core.Mode
	timer    Timer
	token    uint64
}

// RetryLedger tracks reconnection attempts and the pending reconnection
// timer of every session that has disconnected since it last opened.
type RetryLedger struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
	sched   Scheduler
	seq     uint64
}

func NewRetryLedger(sched Scheduler) *RetryLedger {
	if sched == nil {
		sched = realScheduler{}
	}
	return &RetryLedger{
		entries: make(map[string]*ledgerEntry),
		sched:   sched,
	}
}

func (l *RetryLedger) Attempts(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[id]; ok {
		return e.attempts
	}
	return 0
}

func (l *RetryLedger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[id]
	return ok
}

// Increment records one more attempt and returns the new count.
func (l *RetryLedger) Increment(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &ledgerEntry{}
		l.entries[id] = e
	}
	e.attempts++
	return e.attempts
}

// Schedule arms fn to run after d, replacing any pending timer for id.
// A timer that fires after Clear or CancelPending is a no-op.
func (l *RetryLedger) Schedule(id string, d time.Duration, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &ledgerEntry{}
		l.entries[id] = e
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	l.seq++
	token := l.seq
	e.token = token
	e.timer = l.sched.AfterFunc(d, func() {
		l.mu.Lock()
		cur, ok := l.entries[id]
		if !ok || cur.token != token {
			l.mu.Unlock()
			return
		}
		cur.timer = nil
		cur.token = 0
		l.mu.Unlock()
		fn()
	})
}

// SetMode records the mode the pending reconnection will use.
func (l *RetryLedger) SetMode(id string, mode core.Mode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &ledgerEntry{}
		l.entries[id] = e
	}
	e.mode = mode
}

func (l *RetryLedger) Mode(id string) (core.Mode, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return core.ModeMultiDevice, false
	}
	return e.mode, true
}

func (l *RetryLedger) Pending(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	return ok && e.timer != nil
}

// CancelPending disarms the pending timer for id and keeps its count.
func (l *RetryLedger) CancelPending(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok || e.timer == nil {
		return false
	}
	e.timer.Stop()
	e.timer = nil
	e.token = 0
	return true
}

// Clear removes the entry for id, disarming any pending timer.
func (l *RetryLedger) Clear(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[id]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(l.entries, id)
	}
}

// CancelAll disarms every pending timer. Counts are kept.
func (l *RetryLedger) CancelAll() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
			e.token = 0
			n++
		}
	}
	return n
}

func (l *RetryLedger) Snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.entries))
	for id, e := range l.entries {
		out[id] = e.attempts
	}
	return out
}
