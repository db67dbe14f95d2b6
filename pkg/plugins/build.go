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

package plugins

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/plugins/httppost"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/plugins/jms"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/plugins/kafka"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/plugins/mqtt5"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/plugins/rabbitmq"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/plugins/sse"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/plugins/ws"
)

// BuildSink constructs a sink of the given type from its config block.
func BuildSink(name, typ string, cfg map[string]string, logger *slog.Logger) (core.Sink, error) {
	logger = logger.With("component", "sink", "sink", name)
	var (
		sink core.Sink
		err  error
	)
	switch typ {
	case "kafka":
		sink, err = asSink(kafka.FromConfig(name, cfg, logger))
	case "rabbitmq":
		sink, err = asSink(rabbitmq.FromConfig(name, cfg, logger))
	case "mqtt5":
		sink, err = asSink(mqtt5.FromConfig(name, cfg, logger))
	case "jms":
		sink, err = asSink(jms.FromConfig(name, cfg, logger))
	case "http_post":
		sink, err = asSink(httppost.FromConfig(name, cfg, logger))
	case "websocket":
		sink = ws.New(name, bufferSize(cfg), logger)
	case "sse":
		sink = sse.New(name, bufferSize(cfg), logger)
	default:
		return nil, fmt.Errorf("%w: sink %q of type %q", core.ErrUnknownPlugin, name, typ)
	}
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// asSink keeps a failed constructor from yielding a non-nil interface
// around a nil pointer.
func asSink(s core.Sink, err error) (core.Sink, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

func bufferSize(cfg map[string]string) int {
	n, err := strconv.Atoi(cfg["buffer"])
	if err != nil {
		return 0
	}
	return n
}
