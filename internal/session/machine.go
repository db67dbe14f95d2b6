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

import "github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"

type State int32

const (
	StateInitializing State = iota
	StateAwaitingPairing
	StateConnected
	StateDisconnected
	StateReconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// transitions lists the states reachable from each state. Reconnecting
// re-enters Initializing through a new client instance.
var transitions = map[State][]State{
	StateInitializing:    {StateAwaitingPairing, StateConnected, StateDisconnected, StateTerminated},
	StateAwaitingPairing: {StateConnected, StateDisconnected, StateTerminated},
	StateConnected:       {StateDisconnected},
	StateDisconnected:    {StateReconnecting, StateTerminated},
	StateReconnecting:    {StateInitializing},
	StateTerminated:      nil,
}

func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type InputKind int

const (
	InputPairingCode InputKind = iota
	InputOpened
	InputClosed
	InputConnectFailed
	InputCredentials
	InputMessage
	InputChats
	InputError
)

// Input is an engine event together with the facts the transition
// function needs about the session. Resumable marks an instance built
// for a reconnection or from stored credentials; its connect failures
// are treated as transient closes.
type Input struct {
	Kind             InputKind
	LoggedOut        bool
	Resumable        bool
	Attempts         int
	MaxRetries       int
	RequesterWaiting bool
	Message          *core.InboundMessage
}

type Action int

const (
	ActionDeliverPairing Action = iota
	ActionLogout
	ActionDelete
	ActionClearRetries
	ActionReportOnline
	ActionReportOffline
	ActionAnswerConnected
	ActionFailRequester
	ActionScheduleReconnect
	ActionPersistCredentials
	ActionForwardMessage
	ActionUpdateChats
)

func (a Action) String() string {
	return [...]string{
		"deliver_pairing", "logout", "delete", "clear_retries", "report_online",
		"report_offline", "answer_connected", "fail_requester", "schedule_reconnect",
		"persist_credentials", "forward_message", "update_chats",
	}[a]
}

// Decision is the outcome of one transition. Path holds every state
// entered, in order; the last one is the new state. Actions run in order
// after the state has been updated.
type Decision struct {
	Path    []State
	Actions []Action
}

func (d Decision) Next(cur State) State {
	if len(d.Path) == 0 {
		return cur
	}
	return d.Path[len(d.Path)-1]
}

// Transition is the pure connection state machine.
func Transition(cur State, in Input) Decision {
	if cur == StateTerminated || cur == StateReconnecting {
		return Decision{}
	}

	switch in.Kind {
	case InputPairingCode:
		if cur == StateConnected {
			return Decision{}
		}
		if in.RequesterWaiting {
			return Decision{
				Path:    enter(cur, StateAwaitingPairing),
				Actions: []Action{ActionDeliverPairing},
			}
		}
		path := enter(cur, StateAwaitingPairing)
		return Decision{
			Path:    append(path, StateTerminated),
			Actions: []Action{ActionLogout, ActionDelete},
		}

	case InputOpened:
		if cur == StateConnected {
			return Decision{}
		}
		actions := []Action{ActionClearRetries, ActionReportOnline}
		if in.RequesterWaiting {
			actions = append(actions, ActionAnswerConnected)
		}
		return Decision{Path: []State{StateConnected}, Actions: actions}

	case InputClosed:
		return closeDecision(in)

	case InputConnectFailed:
		if cur != StateInitializing {
			return Decision{}
		}
		if in.Resumable {
			return closeDecision(in)
		}
		actions := []Action{ActionReportOffline}
		if in.RequesterWaiting {
			actions = append(actions, ActionFailRequester)
		}
		return Decision{
			Path:    []State{StateTerminated},
			Actions: append(actions, ActionDelete),
		}

	case InputCredentials:
		return Decision{Actions: []Action{ActionPersistCredentials}}

	case InputMessage:
		if !ShouldForward(in.Message) {
			return Decision{}
		}
		return Decision{Actions: []Action{ActionForwardMessage}}

	case InputChats:
		return Decision{Actions: []Action{ActionUpdateChats}}

	case InputError:
		return Decision{Actions: []Action{ActionReportOffline}}
	}
	return Decision{}
}

func closeDecision(in Input) Decision {
	actions := []Action{ActionReportOffline}
	if in.LoggedOut || !ShouldRetry(in.Attempts, in.MaxRetries) {
		if in.RequesterWaiting {
			actions = append(actions, ActionFailRequester)
		}
		return Decision{
			Path:    []State{StateDisconnected, StateTerminated},
			Actions: append(actions, ActionDelete),
		}
	}
	return Decision{
		Path:    []State{StateDisconnected, StateReconnecting},
		Actions: append(actions, ActionScheduleReconnect),
	}
}

// ShouldRetry reports whether another reconnection fits the budget.
func ShouldRetry(attempts, maxRetries int) bool {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return attempts < maxRetries
}

// ShouldForward keeps live messages from other accounts in direct chats.
func ShouldForward(msg *core.InboundMessage) bool {
	if msg == nil || msg.FromMe {
		return false
	}
	if msg.Upsert != core.UpsertNotify {
		return false
	}
	return msg.RemoteAddress != "" && !core.IsGroup(msg.RemoteAddress)
}

func enter(cur, next State) []State {
	if cur == next {
		return nil
	}
	return []State{next}
}
