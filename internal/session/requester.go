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
	"sync"
)

// Result is what a synchronous requester receives. Exactly one of
// PairingArtifact, Connected or Err is set.
type Result struct {
	PairingArtifact string
	Connected       bool
	Err             error
}

// Requester is the caller waiting on a session creation. It is answered
// at most once and survives reconnection attempts.
type Requester struct {
	mu        sync.Mutex
	answered  bool
	abandoned bool
	ch        chan Result
}

func NewRequester() *Requester {
	return &Requester{ch: make(chan Result, 1)}
}

// Waiting reports whether nobody has answered the requester yet and the
// caller has not given up. A nil requester is never waiting.
func (r *Requester) Waiting() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.answered && !r.abandoned
}

func (r *Requester) answer(res Result) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.answered || r.abandoned {
		return false
	}
	r.answered = true
	r.ch <- res
	return true
}

// Abandon marks the caller as gone. Later answers are dropped.
func (r *Requester) Abandon() {
	r.mu.Lock()
	r.abandoned = true
	r.mu.Unlock()
}

// Wait blocks until the requester is answered or ctx ends. On ctx expiry
// the requester is abandoned, unless an answer raced in first.
func (r *Requester) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-r.ch:
		return res, nil
	case <-ctx.Done():
	}
	r.Abandon()
	select {
	case res := <-r.ch:
		return res, nil
	default:
		return Result{}, ctx.Err()
	}
}
