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

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/internal/session"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/notifier"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/store"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Sessions SessionsConfig  `yaml:"sessions"`
	Store    store.Config    `yaml:"store"`
	Notifier notifier.Config `yaml:"notifier"`
	Engine   EngineConfig    `yaml:"engine"`
	Pairing  PairingConfig   `yaml:"pairing"`
	Log      LogConfig       `yaml:"log"`
	Sinks    []SinkConfig    `yaml:"sinks"`
	Routes   []RouteConfig   `yaml:"routes"`
}

type ServerConfig struct {
	Host          string        `yaml:"host" env:"WA_SERVER_HOST"`
	Port          int           `yaml:"port" env:"WA_SERVER_PORT"`
	CreateTimeout time.Duration `yaml:"create_timeout" env:"CREATE_TIMEOUT"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type SessionsConfig struct {
	MaxRetries      int           `yaml:"max_retries" env:"MAX_RETRIES"`
	BackoffBase     time.Duration `yaml:"backoff_base" env:"BACKOFF_BASE"`
	BackoffCap      time.Duration `yaml:"backoff_cap" env:"BACKOFF_CAP"`
	SendDelay       time.Duration `yaml:"send_delay" env:"SEND_DELAY"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

func (s SessionsConfig) RetryPolicy() session.RetryPolicy {
	return session.RetryPolicy{MaxRetries: s.MaxRetries, Base: s.BackoffBase, Cap: s.BackoffCap}
}

type EngineConfig struct {
	Type   string            `yaml:"type" env:"ENGINE_TYPE"`
	Config map[string]string `yaml:"config"`
}

type PairingConfig struct {
	Format string `yaml:"format" env:"PAIRING_FORMAT"`
	Size   int    `yaml:"size" env:"PAIRING_SIZE"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

type SinkConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config"`
}

type RouteConfig struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

func (rc RouteConfig) ToRoute() core.Route {
	return core.Route{Source: rc.Source, Target: rc.Target}
}

func (c *Config) RouteList() []core.Route {
	routes := make([]core.Route, 0, len(c.Routes))
	for _, rc := range c.Routes {
		routes = append(routes, rc.ToRoute())
	}
	return routes
}

// Default is the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8000,
			CreateTimeout: 60 * time.Second,
		},
		Sessions: SessionsConfig{
			MaxRetries:      1,
			BackoffBase:     session.DefaultBackoffBase,
			BackoffCap:      session.DefaultBackoffCap,
			SendDelay:       time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: store.Config{
			Type: store.StoreTypeFile,
			Dir:  "sessions",
		},
		Notifier: notifier.Config{Timeout: 10 * time.Second},
		Engine:   EngineConfig{Type: "mock"},
		Pairing:  PairingConfig{Format: "qr", Size: 256},
		Log:      LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Engine.Type == "" {
		errs = append(errs, errors.New("engine.type is required"))
	}

	sinks := make(map[string]bool, len(c.Sinks))
	for i, s := range c.Sinks {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("sinks[%d]: name is required", i))
		case sinks[s.Name]:
			errs = append(errs, fmt.Errorf("sinks[%d]: duplicate name %q", i, s.Name))
		}
		if s.Type == "" {
			errs = append(errs, fmt.Errorf("sinks[%d]: type is required", i))
		}
		sinks[s.Name] = true
	}
	for i, r := range c.Routes {
		if r.Source == "" {
			errs = append(errs, fmt.Errorf("routes[%d]: source is required", i))
		}
		if !sinks[r.Target] {
			errs = append(errs, fmt.Errorf("routes[%d]: unknown sink %q", i, r.Target))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
