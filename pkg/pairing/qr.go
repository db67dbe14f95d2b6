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

// Package pairing renders engine pairing codes into artifacts a human
// can scan.
package pairing

import (
	"encoding/base64"
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

const DefaultSize = 256

var errEmptyCode = errors.New("empty pairing code")

// QRRenderer encodes pairing codes as PNG QR images in data URI form.
type QRRenderer struct {
	size int
}

func NewQRRenderer(size int) *QRRenderer {
	if size <= 0 {
		size = DefaultSize
	}
	return &QRRenderer{size: size}
}

func (r *QRRenderer) Render(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: %w", core.ErrPairingRender, errEmptyCode)
	}
	png, err := qrcode.Encode(code, qrcode.Medium, r.size)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrPairingRender, err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// RawRenderer hands the code back unchanged, for engines whose codes are
// already displayable.
type RawRenderer struct{}

func (RawRenderer) Render(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: %w", core.ErrPairingRender, errEmptyCode)
	}
	return code, nil
}

// New picks a renderer by format name: "qr" (default) or "raw".
func New(format string, size int) (core.PairingRenderer, error) {
	switch format {
	case "", "qr":
		return NewQRRenderer(size), nil
	case "raw":
		return RawRenderer{}, nil
	default:
		return nil, fmt.Errorf("%w: pairing format %q", core.ErrUnknownPlugin, format)
	}
}
