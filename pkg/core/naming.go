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
	"fmt"
	"regexp"
	"strings"
)

const (
	prefixMultiDevice = "md_"
	prefixLegacy      = "legacy_"
	cacheSuffix       = "_store"
	fileSuffix        = ".json"
)

const (
	SuffixDirect = "@s.whatsapp.net"
	SuffixGroup  = "@g.us"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateSessionID rejects ids that cannot be used as storage names. An
// id ending in the cache suffix would be read back as a cache name.
func ValidateSessionID(id string) error {
	if id == "" || strings.Contains(id, "..") || strings.HasSuffix(id, cacheSuffix) || !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}

// CredentialName is the storage name holding a session's credentials.
func CredentialName(mode Mode, id string) string {
	if mode == ModeLegacy {
		return prefixLegacy + id
	}
	return prefixMultiDevice + id
}

// CacheName is the storage name holding a session's chat cache.
func CacheName(id string) string {
	return id + cacheSuffix
}

// ParseStorageName recovers the session id and mode from a credential
// storage name. Cache names and unrelated names are rejected.
func ParseStorageName(name string) (string, Mode, bool) {
	name = strings.TrimSuffix(name, fileSuffix)
	if strings.HasSuffix(name, cacheSuffix) {
		return "", 0, false
	}

	var (
		id   string
		mode Mode
	)
	switch {
	case strings.HasPrefix(name, prefixMultiDevice):
		id, mode = strings.TrimPrefix(name, prefixMultiDevice), ModeMultiDevice
	case strings.HasPrefix(name, prefixLegacy):
		id, mode = strings.TrimPrefix(name, prefixLegacy), ModeLegacy
	default:
		return "", 0, false
	}
	if ValidateSessionID(id) != nil {
		return "", 0, false
	}
	return id, mode, true
}

// FormatPhone turns a phone number into a direct-chat address.
func FormatPhone(phone string) string {
	if strings.HasSuffix(phone, SuffixDirect) {
		return phone
	}
	return digitsOnly(phone) + SuffixDirect
}

// FormatGroup turns a group identifier into a group address.
func FormatGroup(group string) string {
	if strings.HasSuffix(group, SuffixGroup) {
		return group
	}
	var b strings.Builder
	for _, r := range group {
		if (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String() + SuffixGroup
}

func IsGroup(address string) bool {
	return strings.HasSuffix(address, SuffixGroup)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
