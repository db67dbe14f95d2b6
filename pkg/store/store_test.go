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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wso2/api-platform/gateway/gateway-runtime/session-gateway/pkg/core"
)

func TestFileStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "md_s1", []byte(`{"v":1}`)))
	require.NoError(t, s.Save(ctx, "md_s1", []byte(`{"v":2}`)))

	data, err := s.Load(ctx, "md_s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))

	_, err = os.Stat(filepath.Join(s.Dir(), "md_s1.json"))
	assert.NoError(t, err)
}

func TestFileStoreLoadMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "md_nobody")
	assert.ErrorIs(t, err, core.ErrStateNotFound)
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "md_s1", []byte("x")))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "md_s1", "keys"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "md_s1", "keys", "k.json"), []byte("k"), 0o600))

	require.NoError(t, s.Delete(ctx, "md_s1"))
	require.NoError(t, s.Delete(ctx, "md_s1"))

	_, err = os.Stat(filepath.Join(dir, "md_s1"))
	assert.True(t, os.IsNotExist(err))
	_, err = s.Load(ctx, "md_s1")
	assert.ErrorIs(t, err, core.ErrStateNotFound)
}

func TestFileStoreList(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "md_a", []byte("a")))
	require.NoError(t, s.Save(ctx, "a_store", []byte("{}")))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "legacy_b"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "md_c.123.tmp"), []byte("t"), 0o600))

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_store", "md_a"}, names)
}

func TestFileStoreListOnlyReturnsLoadableNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "md_a", []byte("a")))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "md_old", "keys"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "md_old", "keys", "k.json"), []byte("k"), 0o600))

	names, err := s.List(ctx)
	require.NoError(t, err)
	for _, name := range names {
		_, err := s.Load(ctx, name)
		assert.NoError(t, err, "listed name %q cannot be loaded", name)
	}
	assert.NotContains(t, names, "md_old")

	_, err = os.Stat(filepath.Join(dir, "md_old", "keys", "k.json"))
	assert.NoError(t, err)
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "..", "../md_x", "a/b", `a\b`} {
		assert.Error(t, s.Save(context.Background(), name, []byte("x")), "name %q", name)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	buf := []byte("creds")
	require.NoError(t, s.Save(ctx, "md_s1", buf))
	buf[0] = 'X'

	data, err := s.Load(ctx, "md_s1")
	require.NoError(t, err)
	assert.Equal(t, "creds", string(data))

	require.NoError(t, s.Delete(ctx, "md_s1"))
	require.NoError(t, s.Delete(ctx, "md_s1"))
	_, err = s.Load(ctx, "md_s1")
	assert.ErrorIs(t, err, core.ErrStateNotFound)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Save(ctx, "md_s1", nil), core.ErrStoreClosed)
}

func TestNewStoreByType(t *testing.T) {
	fs, err := New(Config{Type: StoreTypeFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, fs)

	ms, err := New(Config{Type: StoreTypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, ms)

	_, err = New(Config{Type: "etcd"})
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(RedisConfig{Addr: addr, KeyPrefix: "session-gateway-test:" + t.Name() + ":"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(ctx, "md_r1", []byte("r")))
	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "md_r1")

	require.NoError(t, s.Delete(ctx, "md_r1"))
	_, err = s.Load(ctx, "md_r1")
	assert.ErrorIs(t, err, core.ErrStateNotFound)
}
