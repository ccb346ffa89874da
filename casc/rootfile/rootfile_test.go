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

package rootfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blizzkit/flurry/casc"
)

type block struct {
	content ContentFlag
	locale  LocaleFlag
	ids     []casc.FileDataID
	hashes  []casc.ContentHash
}

func u32(w *bytes.Buffer, v uint32) {
	binary.Write(w, binary.LittleEndian, v)
}

func writeIDs(w *bytes.Buffer, ids []casc.FileDataID) {
	var prev uint32
	first := true
	for _, id := range ids {
		if first {
			u32(w, uint32(id))
			first = false
		} else {
			u32(w, uint32(id)-prev-1)
		}
		prev = uint32(id)
	}
}

// buildManifest assembles a pre-10.1.7 MFST root (version 1 block layout).
func buildManifest(total, named uint32, blocks []block) []byte {
	var w bytes.Buffer
	w.WriteString("TSFM")
	u32(&w, total)
	u32(&w, named)
	nameless := total != named
	for _, b := range blocks {
		u32(&w, uint32(len(b.ids)))
		u32(&w, uint32(b.content))
		u32(&w, uint32(b.locale))
		writeIDs(&w, b.ids)
		for _, h := range b.hashes {
			w.Write(h[:])
		}
		if !(nameless && b.content&ContentNoNameHash != 0) {
			w.Write(make([]byte, 8*len(b.ids)))
		}
	}
	return w.Bytes()
}

// buildClassic assembles a headerless classic root.
func buildClassic(blocks []block) []byte {
	var w bytes.Buffer
	for _, b := range blocks {
		u32(&w, uint32(len(b.ids)))
		u32(&w, uint32(b.content))
		u32(&w, uint32(b.locale))
		writeIDs(&w, b.ids)
		for _, h := range b.hashes {
			w.Write(h[:])
			w.Write(make([]byte, 8)) // name hash
		}
	}
	return w.Bytes()
}

func ch(b byte) casc.ContentHash {
	return casc.ContentHash{b}
}

func TestParseManifest(t *testing.T) {
	data := buildManifest(3, 3, []block{
		{0, LocaleEnUS | LocaleEnGB, []casc.FileDataID{10, 12, 100}, []casc.ContentHash{ch(1), ch(2), ch(3)}},
		{0, LocaleFrFR, []casc.FileDataID{10, 200}, []casc.ContentHash{ch(4), ch(5)}},
	})

	got, err := Parse(bytes.NewReader(data), LocaleEnUS)
	require.NoError(t, err)

	want := map[casc.FileDataID]casc.ContentHash{
		10:  ch(1),
		12:  ch(2),
		100: ch(3),
	}
	assert.Equal(t, want, got)
}

func TestParseDuplicateLastWriterWins(t *testing.T) {
	data := buildManifest(2, 2, []block{
		{0, LocaleEnUS, []casc.FileDataID{10}, []casc.ContentHash{ch(1)}},
		{0, LocaleEnUS, []casc.FileDataID{10}, []casc.ContentHash{ch(2)}},
	})

	got, err := Parse(bytes.NewReader(data), LocaleEnUS)
	require.NoError(t, err)
	assert.Equal(t, ch(2), got[10])
}

func TestParseLowViolenceNeverDisplaces(t *testing.T) {
	// low-violence after normal: normal survives
	data := buildManifest(2, 2, []block{
		{0, LocaleEnUS, []casc.FileDataID{10}, []casc.ContentHash{ch(1)}},
		{ContentLowViolence, LocaleEnUS, []casc.FileDataID{10}, []casc.ContentHash{ch(2)}},
	})
	got, err := Parse(bytes.NewReader(data), LocaleEnUS)
	require.NoError(t, err)
	assert.Equal(t, ch(1), got[10])

	// normal after low-violence: normal displaces it
	data = buildManifest(2, 2, []block{
		{ContentLowViolence, LocaleEnUS, []casc.FileDataID{10}, []casc.ContentHash{ch(2)}},
		{0, LocaleEnUS, []casc.FileDataID{10}, []casc.ContentHash{ch(1)}},
	})
	got, err = Parse(bytes.NewReader(data), LocaleEnUS)
	require.NoError(t, err)
	assert.Equal(t, ch(1), got[10])
}

func TestParseNamelessBlocks(t *testing.T) {
	// total != named, so NoNameHash blocks carry no name hash table; the
	// block after one must still parse correctly
	data := buildManifest(3, 1, []block{
		{ContentNoNameHash, LocaleEnUS, []casc.FileDataID{10, 11}, []casc.ContentHash{ch(1), ch(2)}},
		{0, LocaleEnUS, []casc.FileDataID{20}, []casc.ContentHash{ch(3)}},
	})

	got, err := Parse(bytes.NewReader(data), LocaleEnUS)
	require.NoError(t, err)

	want := map[casc.FileDataID]casc.ContentHash{
		10: ch(1),
		11: ch(2),
		20: ch(3),
	}
	assert.Equal(t, want, got)
}

func TestParseClassic(t *testing.T) {
	data := buildClassic([]block{
		{0, LocaleEnUS | LocaleDeDE, []casc.FileDataID{5, 6, 50}, []casc.ContentHash{ch(7), ch(8), ch(9)}},
		{0, LocaleZhCN, []casc.FileDataID{5}, []casc.ContentHash{ch(10)}},
	})

	got, err := Parse(bytes.NewReader(data), LocaleDeDE)
	require.NoError(t, err)

	want := map[casc.FileDataID]casc.ContentHash{
		5:  ch(7),
		6:  ch(8),
		50: ch(9),
	}
	assert.Equal(t, want, got)
}

func TestParseLocaleAll(t *testing.T) {
	data := buildManifest(2, 2, []block{
		{0, LocaleEnUS, []casc.FileDataID{10}, []casc.ContentHash{ch(1)}},
		{0, LocaleKoKR, []casc.FileDataID{11}, []casc.ContentHash{ch(2)}},
	})

	got, err := Parse(bytes.NewReader(data), LocaleAll)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestParseTruncated(t *testing.T) {
	data := buildManifest(1, 1, []block{
		{0, LocaleEnUS, []casc.FileDataID{10}, []casc.ContentHash{ch(1)}},
	})

	for _, n := range []int{2, 6, 14, 18, len(data) - 4} {
		_, err := Parse(bytes.NewReader(data[:n]), LocaleEnUS)
		assert.Error(t, err, "truncated to %d bytes", n)
	}
}

func TestParseUnknownVersion(t *testing.T) {
	var w bytes.Buffer
	w.WriteString("TSFM")
	u32(&w, 0x18) // header size
	u32(&w, 9)    // unknown version
	u32(&w, 0)
	u32(&w, 0)
	u32(&w, 0)

	_, err := Parse(bytes.NewReader(w.Bytes()), LocaleEnUS)
	assert.Error(t, err)
}
