/*
Copyright 2026 The Flurry Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blizzkit/flurry/casc"
)

var testBuild = casc.ContentHash{0x46, 0xbb, 0xf4, 0x30}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c := New(t.TempDir(), testBuild)
	require.NoError(t, c.Init())
	return c
}

func TestInitLayout(t *testing.T) {
	root := t.TempDir()
	c := New(root, testBuild)
	require.NoError(t, c.Init())

	assert.Equal(t, filepath.Join(root, testBuild.Hex()), c.Dir())
	for _, d := range []string{c.Dir(), filepath.Join(c.Dir(), "indexes"), filepath.Join(c.Dir(), "data")} {
		fi, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	}

	// Init on an existing directory is a no-op
	require.NoError(t, c.Init())
}

func TestRoundTrip(t *testing.T) {
	c := newTestCache(t)

	payload := []byte("blte framed bytes")
	require.NoError(t, c.Store("", NameEncoding, payload))

	assert.True(t, c.Has("", NameEncoding))
	got, ok := c.Get("", NameEncoding)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestCategories(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Store(CategoryIndexes, "abcd.index", []byte("index")))
	require.NoError(t, c.Store(CategoryData, "abcd", []byte("data")))

	got, ok := c.Get(CategoryIndexes, "abcd.index")
	require.True(t, ok)
	assert.Equal(t, []byte("index"), got)

	// entries are namespaced per category
	_, ok = c.Get(CategoryData, "abcd.index")
	assert.False(t, ok)
}

func TestGetMissIsNotAnError(t *testing.T) {
	c := newTestCache(t)

	got, ok := c.Get(CategoryData, "never-stored")
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.False(t, c.Has(CategoryData, "never-stored"))
}

func TestStoreOverwrite(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Store(CategoryData, "k", []byte("one")))
	require.NoError(t, c.Store(CategoryData, "k", []byte("two")))

	got, ok := c.Get(CategoryData, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("two"), got)
}

func TestStoreLeavesNoTempFiles(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Store(CategoryData, "k", []byte("payload")))

	entries, err := os.ReadDir(filepath.Join(c.Dir(), CategoryData))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "k", entries[0].Name())
}

func TestStoreFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("read-only directory semantics differ on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("running as root; read-only directories are not enforced")
	}

	c := newTestCache(t)
	require.NoError(t, os.Chmod(filepath.Join(c.Dir(), CategoryData), 0o555))
	defer os.Chmod(filepath.Join(c.Dir(), CategoryData), 0o755)

	err := c.Store(CategoryData, "k", []byte("payload"))
	assert.Error(t, err)
	_, ok := c.Get(CategoryData, "k")
	assert.False(t, ok)
}
