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

// Package archive parses CASC archive indexes and aggregates them into a
// single encoding-key to archive-location map.
//
// An index file is a stream of 4096-byte blocks of 24-byte entries (16-byte
// encoding key, 32-bit big-endian size, 32-bit big-endian offset). The last
// 12 bytes of the file hold the total entry count as a little-endian uint32.
package archive

import (
	"context"
	"crypto/md5"
	"encoding/binary"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/blizzkit/flurry/casc"
)

const (
	// concurrentIndexFetches bounds the number of index downloads in
	// flight. CDN configs list archives in the hundreds; per-host
	// connection limits make an unbounded fan-out counterproductive.
	concurrentIndexFetches = 50

	entrySize  = md5.Size + 4 + 4
	footerSize = 12
)

// An Entry is the location of one encoding key within the archive set.
type Entry struct {
	Archive casc.ArchiveKey
	Size    uint32
	Offset  uint32
}

// A Mapper maps encoding keys to their location within the archive set.
// It is populated once by NewMapper and read-only afterwards.
type Mapper struct {
	m map[casc.EncodingKey]Entry
}

// Map returns the archive location of the given encoding key.
//
// If the key does not exist in any known archive, ok is false.
func (m *Mapper) Map(k casc.EncodingKey) (entry Entry, ok bool) {
	entry, ok = m.m[k]
	return entry, ok
}

// Len returns the number of indexed encoding keys.
func (m *Mapper) Len() int {
	return len(m.m)
}

// A Fetcher retrieves the raw bytes of one archive's index file, through
// whatever cache the caller interposes.
type Fetcher interface {
	ArchiveIndex(ctx context.Context, archive casc.ArchiveKey) ([]byte, error)
}

// ParseIndex parses a raw archive index into entries pointing at archive.
func ParseIndex(data []byte, archive casc.ArchiveKey) (map[casc.EncodingKey]Entry, error) {
	if len(data) < footerSize {
		return nil, errors.Errorf("archive: index is %d bytes; too short for a footer", len(data))
	}
	count := int(binary.LittleEndian.Uint32(data[len(data)-footerSize:]))
	if int64(count)*entrySize > int64(len(data)) {
		return nil, errors.Errorf("archive: footer says %d entries; only room for %d", count, len(data)/entrySize)
	}

	m := make(map[casc.EncodingKey]Entry, count)
	rest := data
	for n := 0; n < count; n++ {
		if len(rest) < entrySize {
			return nil, errors.Errorf("archive: entry %d overruns the index", n)
		}

		var key casc.EncodingKey
		copy(key[:], rest[:md5.Size])
		rest = rest[md5.Size:]
		if key.IsZero() {
			// a zeroed key pads out an under-filled block; the real key
			// follows immediately
			if len(rest) < entrySize {
				return nil, errors.Errorf("archive: entry %d overruns the index", n)
			}
			copy(key[:], rest[:md5.Size])
			rest = rest[md5.Size:]
		}

		m[key] = Entry{
			Archive: archive,
			Size:    binary.BigEndian.Uint32(rest[0:4]),
			Offset:  binary.BigEndian.Uint32(rest[4:8]),
		}
		rest = rest[8:]
	}
	return m, nil
}

// NewMapper fetches and parses the index of every archive and merges the
// results. Fetches run concurrently, at most concurrentIndexFetches at a
// time; any single failure aborts the load.
func NewMapper(ctx context.Context, f Fetcher, archives []casc.ArchiveKey) (*Mapper, error) {
	workerCount := concurrentIndexFetches
	if workerCount > len(archives) {
		workerCount = len(archives)
	}

	workChan := make(chan casc.ArchiveKey)
	resultChan := make(chan map[casc.EncodingKey]Entry)
	g, ctx := errgroup.WithContext(ctx)

	// Enqueue work into workChan.
	g.Go(func() error {
		defer close(workChan)
		for _, archive := range archives {
			select {
			case workChan <- archive:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	// Fetch and parse the archive indexes.
	for n := 0; n < workerCount; n++ {
		g.Go(func() error {
			for archive := range workChan {
				if err := ctx.Err(); err != nil {
					return err
				}
				data, err := f.ArchiveIndex(ctx, archive)
				if err != nil {
					return errors.Wrapf(err, "fetching index %s", archive.Hex())
				}
				m, err := ParseIndex(data, archive)
				if err != nil {
					return errors.Wrapf(err, "parsing index %s", archive.Hex())
				}

				select {
				case resultChan <- m:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	// Signal main goroutine when all workers have finished.
	go func() {
		g.Wait()
		close(resultChan)
	}()

	// Merge results in completion order. Archives hold disjoint key ranges
	// in practice; the rare duplicate is resolved last-writer.
	m := make(map[casc.EncodingKey]Entry)
	for miniMap := range resultChan {
		for k, v := range miniMap {
			m[k] = v
		}
	}

	// Check if there was an error.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	glog.Infof("archive: indexed %d entries across %d archives", len(m), len(archives))
	return &Mapper{m}, nil
}
