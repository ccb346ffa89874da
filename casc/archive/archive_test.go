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

package archive

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"reflect"
	"testing"

	"github.com/blizzkit/flurry/casc"
)

type rawEntry struct {
	key    casc.EncodingKey
	size   uint32
	offset uint32
}

// buildIndex assembles an archive index: the entries in order, zero padding
// wherever pad is set (keyed by the index of the entry it precedes), and the
// entry-count footer.
func buildIndex(entries []rawEntry, padBefore map[int]bool) []byte {
	var w bytes.Buffer
	for n, e := range entries {
		if padBefore[n] {
			w.Write(make([]byte, 16))
		}
		w.Write(e.key[:])
		binary.Write(&w, binary.BigEndian, e.size)
		binary.Write(&w, binary.BigEndian, e.offset)
	}
	footer := make([]byte, 12)
	binary.LittleEndian.PutUint32(footer, uint32(len(entries)))
	w.Write(footer)
	return w.Bytes()
}

func ek(b byte) casc.EncodingKey {
	return casc.EncodingKey{b}
}

func ak(b byte) casc.ArchiveKey {
	return casc.ArchiveKey{b}
}

func TestParseIndex(t *testing.T) {
	entries := []rawEntry{
		{ek(0x01), 100, 0},
		{ek(0x02), 200, 100},
		{ek(0x03), 300, 300},
	}
	data := buildIndex(entries, nil)

	got, err := ParseIndex(data, ak(0xaa))
	if err != nil {
		t.Fatalf("ParseIndex: %v", err)
	}

	want := map[casc.EncodingKey]Entry{
		ek(0x01): {ak(0xaa), 100, 0},
		ek(0x02): {ak(0xaa), 200, 100},
		ek(0x03): {ak(0xaa), 300, 300},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseIndex = %#v; want %#v", got, want)
	}
}

func TestParseIndexPadding(t *testing.T) {
	// a zeroed key where a block is under-filled must be consumed as
	// padding, with the following 16 bytes read as the real key
	entries := []rawEntry{
		{ek(0x01), 100, 0},
		{ek(0x02), 200, 100},
	}
	data := buildIndex(entries, map[int]bool{1: true})

	got, err := ParseIndex(data, ak(0xaa))
	if err != nil {
		t.Fatalf("ParseIndex: %v", err)
	}

	if len(got) != len(entries) {
		t.Errorf("ParseIndex yielded %d entries; want %d", len(got), len(entries))
	}
	e, ok := got[ek(0x02)]
	if !ok {
		t.Fatalf("entry after padding missing")
	}
	if e.Size != 200 || e.Offset != 100 {
		t.Errorf("entry after padding = %+v; want size=200 offset=100", e)
	}
}

func TestParseIndexErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		data []byte
	}{
		{"too short for footer", []byte{0x01, 0x02}},
		{"count overruns size", func() []byte {
			footer := make([]byte, 12)
			binary.LittleEndian.PutUint32(footer, 1000)
			return footer
		}()},
		{"padding overruns entries", func() []byte {
			// footer says one entry, but the data holds only a zeroed
			// padding key with nothing after it
			var w bytes.Buffer
			w.Write(make([]byte, 24))
			footer := make([]byte, 12)
			binary.LittleEndian.PutUint32(footer, 1)
			w.Write(footer)
			return w.Bytes()
		}()},
	} {
		if _, err := ParseIndex(test.data, ak(0xaa)); err == nil {
			t.Errorf("%s: ParseIndex: %v; want error", test.name, err)
		}
	}
}

type fakeFetcher struct {
	indexes map[casc.ArchiveKey][]byte
}

func (f *fakeFetcher) ArchiveIndex(ctx context.Context, archive casc.ArchiveKey) ([]byte, error) {
	data, ok := f.indexes[archive]
	if !ok {
		return nil, fmt.Errorf("index for %s not stored", archive.Hex())
	}
	return data, nil
}

func TestNewMapper(t *testing.T) {
	f := &fakeFetcher{indexes: map[casc.ArchiveKey][]byte{
		ak(0xaa): buildIndex([]rawEntry{{ek(0x01), 100, 0}, {ek(0x02), 200, 100}}, nil),
		ak(0xbb): buildIndex([]rawEntry{{ek(0x03), 300, 0}}, nil),
	}}

	m, err := NewMapper(context.Background(), f, []casc.ArchiveKey{ak(0xaa), ak(0xbb)})
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}

	if m.Len() != 3 {
		t.Errorf("Len = %d; want 3", m.Len())
	}

	e, ok := m.Map(ek(0x03))
	if !ok {
		t.Fatalf("Map(ek 0x03): missing")
	}
	want := Entry{ak(0xbb), 300, 0}
	if e != want {
		t.Errorf("Map(ek 0x03) = %+v; want %+v", e, want)
	}

	if _, ok := m.Map(ek(0x7f)); ok {
		t.Errorf("Map(unknown): ok; want missing")
	}
}

func TestNewMapperFetchErrorIsFatal(t *testing.T) {
	f := &fakeFetcher{indexes: map[casc.ArchiveKey][]byte{
		ak(0xaa): buildIndex([]rawEntry{{ek(0x01), 100, 0}}, nil),
	}}

	_, err := NewMapper(context.Background(), f, []casc.ArchiveKey{ak(0xaa), ak(0xbb)})
	if err == nil {
		t.Errorf("NewMapper: %v; want error", err)
	}
}

func TestNewMapperManyArchives(t *testing.T) {
	// more archives than worker slots; the pool must drain all of them
	f := &fakeFetcher{indexes: map[casc.ArchiveKey][]byte{}}
	var archives []casc.ArchiveKey
	for n := 0; n < 150; n++ {
		a := casc.ArchiveKey{0x10, byte(n)}
		archives = append(archives, a)
		f.indexes[a] = buildIndex([]rawEntry{{casc.EncodingKey{0x20, byte(n)}, uint32(n + 1), 0}}, nil)
	}

	m, err := NewMapper(context.Background(), f, archives)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	if m.Len() != 150 {
		t.Errorf("Len = %d; want 150", m.Len())
	}
}

func TestNewMapperCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeFetcher{indexes: map[casc.ArchiveKey][]byte{
		ak(0xaa): buildIndex([]rawEntry{{ek(0x01), 100, 0}}, nil),
	}}

	if _, err := NewMapper(ctx, f, []casc.ArchiveKey{ak(0xaa)}); err == nil {
		t.Errorf("NewMapper: %v; want context error", err)
	}
}
