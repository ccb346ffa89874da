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

// Package encoding parses the CASC encoding table, which maps content hashes
// to the encoding keys they are fetched by.
//
// The table is page-based: a header, a spec-string block, a page index whose
// entries carry the first content hash and md5 of each page, then the pages
// themselves. Entries within a page list one content hash followed by one or
// more encoding keys; only the first key is retained, matching how the rest
// of the pipeline addresses files.
package encoding

import (
	"bufio"
	"crypto/md5"
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/blizzkit/flurry/casc"
)

// Error constants
var (
	ErrBadMagic           = errors.New("encoding: bad magic")
	ErrBadHashSize        = errors.New("encoding: bad hash size in header")
	ErrUnknownContentHash = errors.New("encoding: unknown content hash")
)

type mapEntry struct {
	contentHash casc.ContentHash
	encodingKey casc.EncodingKey
}

// A Mapper converts content hashes into their corresponding encoding keys.
//
// Entries are kept in a slice sorted by content hash (the on-disk page order)
// and resolved by binary search; with multi-million-entry tables this is
// substantially smaller than a map.
type Mapper struct {
	keys []mapEntry
}

type header struct {
	ckeyPageSize  int
	ekeyPageSize  int
	ckeyPageCount int
	ekeyPageCount int
	specBlockSize int
}

// NewMapper creates a new Mapper from a decoded (not BLTE-framed) encoding
// table stream.
func NewMapper(r io.Reader) (*Mapper, error) {
	m := &Mapper{}
	if err := m.init(bufio.NewReaderSize(r, 1<<16)); err != nil {
		return nil, err
	}
	return m, nil
}

// ToEncodingKey converts a content hash into the encoding key it is fetched
// by. A content hash absent from the table returns ErrUnknownContentHash.
func (m *Mapper) ToEncodingKey(contentHash casc.ContentHash) (casc.EncodingKey, error) {
	i := sort.Search(len(m.keys), func(n int) bool {
		return !m.keys[n].contentHash.Less(contentHash)
	})
	if i >= len(m.keys) || !m.keys[i].contentHash.Equal(contentHash) {
		return casc.EncodingKey{}, ErrUnknownContentHash
	}
	return m.keys[i].encodingKey, nil
}

// Len returns the number of content hashes in the table.
func (m *Mapper) Len() int {
	return len(m.keys)
}

func readHeader(r io.Reader) (*header, error) {
	buf := make([]byte, 22)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	if buf[0] != 'E' || buf[1] != 'N' {
		return nil, ErrBadMagic
	}

	// buf[2] is the version byte; every deployed build uses 1 and the layout
	// has not changed, so it is not checked.
	if buf[3] != md5.Size || buf[4] != md5.Size {
		return nil, ErrBadHashSize
	}

	h := &header{
		ckeyPageSize:  int(binary.BigEndian.Uint16(buf[0x5:0x7])) * 1024,
		ekeyPageSize:  int(binary.BigEndian.Uint16(buf[0x7:0x9])) * 1024,
		ckeyPageCount: int(binary.BigEndian.Uint32(buf[0x9:0x0d])),
		ekeyPageCount: int(binary.BigEndian.Uint32(buf[0x0d:0x11])),
		specBlockSize: int(binary.BigEndian.Uint32(buf[0x12:0x16])),
	}
	if h.ckeyPageSize <= 0 {
		return nil, errors.New("encoding: zero content key page size")
	}
	return h, nil
}

func (m *Mapper) init(r io.Reader) error {
	h, err := readHeader(r)
	if err != nil {
		return errors.Wrap(err, "encoding: reading header")
	}

	// Skip over the encoding spec string block; we don't need it
	if _, err := io.CopyN(io.Discard, r, int64(h.specBlockSize)); err != nil {
		return errors.Wrap(err, "encoding: skipping spec block")
	}

	// Read the page index: first content hash and md5 of every page
	pageDigests := make([][md5.Size]byte, h.ckeyPageCount)
	buf := make([]byte, 32)
	for n := 0; n < h.ckeyPageCount; n++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return errors.Wrapf(err, "encoding: reading page index entry %d", n)
		}
		copy(pageDigests[n][:], buf[0x10:0x20])
	}

	var slc []mapEntry

	// Read the pages
	page := make([]byte, h.ckeyPageSize)
	for n := 0; n < h.ckeyPageCount; n++ {
		if _, err := io.ReadFull(r, page); err != nil {
			return errors.Wrapf(err, "encoding: reading page %d", n)
		}
		if sum := md5.Sum(page); sum != pageDigests[n] {
			return errors.Errorf("encoding: page %d digest mismatch: want %x, got %x", n, pageDigests[n], sum)
		}

		rest := page
		for {
			// entry: key count (u8), file size (u40 BE), content hash,
			// then count encoding keys. A zero key count ends the page.
			if len(rest) < 1 || rest[0] == 0 {
				break
			}
			keyCount := int(rest[0])
			need := 1 + 5 + md5.Size + keyCount*md5.Size
			if len(rest) < need {
				return errors.Errorf("encoding: page %d entry overruns page boundary", n)
			}

			var e mapEntry
			copy(e.contentHash[:], rest[6:6+md5.Size])
			copy(e.encodingKey[:], rest[6+md5.Size:6+2*md5.Size])
			slc = append(slc, e)

			rest = rest[need:]
		}
	}

	m.keys = make([]mapEntry, len(slc))
	copy(m.keys, slc)

	// Skip the encoding key spec pages; this pipeline never resolves in
	// that direction
	skip := int64(h.ekeyPageCount) * int64(32+h.ekeyPageSize)
	if _, err := io.CopyN(io.Discard, r, skip); err != nil && err != io.EOF {
		return errors.Wrap(err, "encoding: skipping encoding key pages")
	}

	return nil
}
