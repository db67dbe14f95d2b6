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

package routing

import (
	"sort"
	"sync"

	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

// Wildcard routes every lifecycle event type.
const Wildcard = "*"

// Table maps lifecycle event types to sink names.
type Table struct {
	routes sync.Map
}

func NewTable() *Table {
	return &Table{}
}

// Add binds route.Target to route.Source, keeping earlier targets.
func (t *Table) Add(route core.Route) {
	for {
		v, loaded := t.routes.LoadOrStore(route.Source, []string{route.Target})
		if !loaded {
			return
		}
		cur := v.([]string)
		for _, target := range cur {
			if target == route.Target {
				return
			}
		}
		next := append(append([]string(nil), cur...), route.Target)
		if t.routes.CompareAndSwap(route.Source, v, next) {
			return
		}
	}
}

func (t *Table) Remove(source string) {
	t.routes.Delete(source)
}

// Lookup returns the sinks for eventType, including wildcard routes, in
// name order without duplicates.
func (t *Table) Lookup(eventType string) ([]string, bool) {
	seen := make(map[string]struct{})
	for _, key := range []string{eventType, Wildcard} {
		if v, ok := t.routes.Load(key); ok {
			for _, target := range v.([]string) {
				seen[target] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(seen))
	for target := range seen {
		out = append(out, target)
	}
	sort.Strings(out)
	return out, true
}

func (t *Table) ReplaceAll(routes []core.Route) {
	t.routes.Range(func(key, _ any) bool {
		t.routes.Delete(key)
		return true
	})
	for _, r := range routes {
		t.Add(r)
	}
}

func (t *Table) Len() int {
	n := 0
	t.routes.Range(func(_, v any) bool {
		n += len(v.([]string))
		return true
	})
	return n
}
