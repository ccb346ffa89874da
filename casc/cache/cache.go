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

// Package cache is the per-build on-disk store interposed between the CDN
// and the resolution pipeline. Files are content-addressed, so a cache hit
// needs no further verification, and nothing is ever evicted within a build.
//
// The layout mirrors the pipeline's own artifacts:
//
//	{root}/{build_config_hash}/
//	    encoding                     BLTE-framed encoding table
//	    root                         BLTE-framed root table
//	    indexes/{archive_hash}.index raw archive index
//	    data/{encoding_key}          raw BLTE-framed file payload
package cache

import (
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/blizzkit/flurry/casc"
)

// Well-known singleton entries at the top level of a build directory.
const (
	NameEncoding = "encoding"
	NameRoot     = "root"
)

// Categories subdivide a build directory. The empty category addresses the
// top level.
const (
	CategoryIndexes = "indexes"
	CategoryData    = "data"
)

// A Cache is the on-disk store for one build. It is single-writer: two
// instances may share a directory for reads, but concurrent writers are only
// safe per-file (the atomic rename protects file identity, not cross-file
// consistency).
type Cache struct {
	dir string
}

// New returns the cache for the given build under userDataRoot. The
// directory is not touched until Init.
func New(userDataRoot string, buildConfig casc.ContentHash) *Cache {
	return &Cache{dir: filepath.Join(userDataRoot, buildConfig.Hex())}
}

// Dir returns the cache's build directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Init ensures the build directory and its category subdirectories exist.
func (c *Cache) Init() error {
	for _, d := range []string{c.dir, filepath.Join(c.dir, CategoryIndexes), filepath.Join(c.dir, CategoryData)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return errors.Wrap(err, "cache: creating build directory")
		}
	}
	return nil
}

func (c *Cache) path(category, name string) string {
	if category == "" {
		return filepath.Join(c.dir, name)
	}
	return filepath.Join(c.dir, category, name)
}

// Has reports whether an entry exists without reading it.
func (c *Cache) Has(category, name string) bool {
	_, err := os.Stat(c.path(category, name))
	return err == nil
}

// Get returns the contents of an entry. Absence is not an error: a miss
// returns (nil, false).
func (c *Cache) Get(category, name string) ([]byte, bool) {
	b, err := os.ReadFile(c.path(category, name))
	if err != nil {
		if !os.IsNotExist(err) {
			glog.Warningf("cache: reading %s: %v", c.path(category, name), err)
		}
		return nil, false
	}
	return b, true
}

// Store writes an entry atomically: the bytes land in a temporary file that
// is renamed into place, so a reader never observes a partial write.
//
// Callers treat Store as fire-and-forget; a returned error is logged by the
// caller and never fails the fetch that produced the bytes.
func (c *Cache) Store(category, name string, b []byte) error {
	dst := c.path(category, name)

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+name+"-*")
	if err != nil {
		return errors.Wrap(err, "cache: creating temp file")
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "cache: writing temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "cache: closing temp file")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "cache: renaming into place")
	}
	return nil
}
