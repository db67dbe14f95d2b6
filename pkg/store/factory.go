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

package store

import (
	"fmt"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

type StoreType string

const (
	StoreTypeFile   StoreType = "file"
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

type Config struct {
	Type  StoreType   `yaml:"type" env:"STORE_TYPE"`
	Dir   string      `yaml:"dir" env:"SESSIONS_DIR"`
	Redis RedisConfig `yaml:"redis"`
}

func New(cfg Config) (core.StateStore, error) {
	switch cfg.Type {
	case StoreTypeFile, "":
		dir := cfg.Dir
		if dir == "" {
			dir = "sessions"
		}
		return NewFileStore(dir)
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeRedis:
		return NewRedisStore(cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown state store type: %s", cfg.Type)
	}
}
