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

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already exists")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidMode      = errors.New("invalid session mode")
	ErrStateNotFound    = errors.New("state not found")
	ErrSendFailed       = errors.New("send failed")
	ErrCreateFailed     = errors.New("unable to create session")
	ErrPairingRender    = errors.New("unable to render pairing code")
	ErrStoreClosed      = errors.New("store closed")
	ErrUnknownPlugin    = errors.New("unknown plugin type")
)
