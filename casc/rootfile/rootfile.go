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

// Package rootfile parses the CASC root table, which names every logical
// game asset: it maps file data IDs to content hashes, qualified by locale
// and content flags.
//
// Three layouts exist in the wild: the classic headerless layout, the MFST
// layout (8.2, version 1) and the interleaved MFST layout (10.1.7,
// version 2). All three arrange entries in blocks sharing one
// (contentFlags, localeFlags) pair, with file data IDs delta-encoded within
// the block.
package rootfile

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/blizzkit/flurry/casc"
)

// A LocaleFlag selects the translations a root entry applies to.
type LocaleFlag uint32

const (
	LocaleEnUS LocaleFlag = 0x2
	LocaleKoKR LocaleFlag = 0x4
	LocaleFrFR LocaleFlag = 0x10
	LocaleDeDE LocaleFlag = 0x20
	LocaleZhCN LocaleFlag = 0x40
	LocaleEsES LocaleFlag = 0x80
	LocaleZhTW LocaleFlag = 0x100
	LocaleEnGB LocaleFlag = 0x200
	LocaleEsMX LocaleFlag = 0x1000
	LocaleRuRU LocaleFlag = 0x2000
	LocalePtBR LocaleFlag = 0x4000
	LocaleItIT LocaleFlag = 0x8000
	LocalePtPT LocaleFlag = 0x10000

	// LocaleAll matches every block regardless of locale.
	LocaleAll LocaleFlag = 0xffffffff
)

// A ContentFlag qualifies how and when an entry's content is used.
type ContentFlag uint32

const (
	ContentInstall       ContentFlag = 0x4
	ContentLoadOnWindows ContentFlag = 0x8
	ContentLoadOnMacOS   ContentFlag = 0x10
	ContentLowViolence   ContentFlag = 0x80
	ContentEncrypted     ContentFlag = 0x8000000
	ContentNoNameHash    ContentFlag = 0x10000000
)

const mfstMagic = 0x4d465354 // "TSFM" on disk

// Parse reads a decoded (not BLTE-framed) root table and returns the file
// data ID to content hash mapping for entries matching locale.
//
// Low-violence variants never displace a matching normal entry; among
// equally qualified duplicates the last block wins.
func Parse(ir io.Reader, locale LocaleFlag) (map[casc.FileDataID]casc.ContentHash, error) {
	r := bufio.NewReaderSize(ir, 1<<16)

	first, err := readUint32(r)
	if err != nil {
		return nil, errors.Wrap(err, "rootfile: reading magic")
	}

	p := &parser{
		r:       r,
		locale:  locale,
		entries: make(map[casc.FileDataID]casc.ContentHash),
		lv:      make(map[casc.FileDataID]bool),
	}

	if first != mfstMagic {
		// classic layout: no header at all, and the four bytes just read
		// are the first block's record count
		if err := p.parseClassic(first); err != nil {
			return nil, err
		}
		return p.entries, nil
	}
	if err := p.parseManifest(); err != nil {
		return nil, err
	}
	return p.entries, nil
}

type parser struct {
	r      *bufio.Reader
	locale LocaleFlag

	entries map[casc.FileDataID]casc.ContentHash
	// lv marks entries that came from a low-violence block, so a normal
	// block seen later can displace them but not vice versa
	lv map[casc.FileDataID]bool
}

func (p *parser) insert(id casc.FileDataID, h casc.ContentHash, content ContentFlag) {
	lowViolence := content&ContentLowViolence != 0
	if _, seen := p.entries[id]; seen && lowViolence && !p.lv[id] {
		return
	}
	p.entries[id] = h
	p.lv[id] = lowViolence
}

func (p *parser) parseManifest() error {
	headerSize, err := readUint32(p.r)
	if err != nil {
		return errors.Wrap(err, "rootfile: reading header")
	}
	version, err := readUint32(p.r)
	if err != nil {
		return errors.Wrap(err, "rootfile: reading header")
	}

	var totalFiles, namedFiles uint32
	if headerSize != 0x18 {
		// pre-10.1.7 header: the two values just read are the file counts
		// and the header is the 12 bytes already consumed
		totalFiles, namedFiles = headerSize, version
		version = 1
	} else {
		if version != 1 && version != 2 {
			return errors.Errorf("rootfile: unknown manifest version %d", version)
		}
		if totalFiles, err = readUint32(p.r); err != nil {
			return errors.Wrap(err, "rootfile: reading header")
		}
		if namedFiles, err = readUint32(p.r); err != nil {
			return errors.Wrap(err, "rootfile: reading header")
		}
		// 20 bytes consumed so far; the rest of the header is padding
		if err := skip(p.r, int(headerSize)-20); err != nil {
			return errors.Wrap(err, "rootfile: reading header")
		}
	}
	allowNameless := totalFiles != namedFiles

	for {
		numRecords, err := readUint32(p.r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "rootfile: reading block header")
		}

		var content ContentFlag
		var blockLocale LocaleFlag
		if version == 1 {
			c, err := readUint32(p.r)
			if err != nil {
				return errors.Wrap(err, "rootfile: reading block flags")
			}
			l, err := readUint32(p.r)
			if err != nil {
				return errors.Wrap(err, "rootfile: reading block flags")
			}
			content, blockLocale = ContentFlag(c), LocaleFlag(l)
		} else {
			// version 2 splits the content flags across three fields
			l, err := readUint32(p.r)
			if err != nil {
				return errors.Wrap(err, "rootfile: reading block flags")
			}
			c1, err := readUint32(p.r)
			if err != nil {
				return errors.Wrap(err, "rootfile: reading block flags")
			}
			c2, err := readUint32(p.r)
			if err != nil {
				return errors.Wrap(err, "rootfile: reading block flags")
			}
			c3, err := p.r.ReadByte()
			if err != nil {
				return errors.Wrap(err, "rootfile: reading block flags")
			}
			blockLocale = LocaleFlag(l)
			content = ContentFlag(c1 | c2 | uint32(c3)<<17)
		}

		ids, err := p.readFileDataIDs(int(numRecords))
		if err != nil {
			return err
		}

		wanted := blockLocale&p.locale != 0
		for _, id := range ids {
			var h casc.ContentHash
			if err := readHash(p.r, &h); err != nil {
				return errors.Wrap(err, "rootfile: reading content hash")
			}
			if wanted {
				p.insert(id, h, content)
			}
		}

		if !(allowNameless && content&ContentNoNameHash != 0) {
			if err := skip(p.r, 8*int(numRecords)); err != nil {
				return errors.Wrap(err, "rootfile: skipping name hashes")
			}
		}
	}
}

func (p *parser) parseClassic(firstCount uint32) error {
	numRecords := firstCount
	for {
		content, err := readUint32(p.r)
		if err != nil {
			return errors.Wrap(err, "rootfile: reading block flags")
		}
		blockLocale, err := readUint32(p.r)
		if err != nil {
			return errors.Wrap(err, "rootfile: reading block flags")
		}

		ids, err := p.readFileDataIDs(int(numRecords))
		if err != nil {
			return err
		}

		wanted := LocaleFlag(blockLocale)&p.locale != 0
		for _, id := range ids {
			var h casc.ContentHash
			if err := readHash(p.r, &h); err != nil {
				return errors.Wrap(err, "rootfile: reading content hash")
			}
			// trailing 8 bytes are the name hash
			if err := skip(p.r, 8); err != nil {
				return errors.Wrap(err, "rootfile: skipping name hash")
			}
			if wanted {
				p.insert(id, h, ContentFlag(content))
			}
		}

		numRecords, err = readUint32(p.r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "rootfile: reading block header")
		}
	}
}

// readFileDataIDs decodes the delta-encoded ID list of one block.
func (p *parser) readFileDataIDs(n int) ([]casc.FileDataID, error) {
	ids := make([]casc.FileDataID, n)
	var next uint32
	for i := 0; i < n; i++ {
		delta, err := readUint32(p.r)
		if err != nil {
			return nil, errors.Wrap(err, "rootfile: reading file data ids")
		}
		next += delta
		ids[i] = casc.FileDataID(next)
		next++
	}
	return ids, nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, errors.New("rootfile: truncated field")
		}
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readHash(r io.Reader, h *casc.ContentHash) error {
	_, err := io.ReadFull(r, h[:])
	return err
}

func skip(r *bufio.Reader, n int) error {
	_, err := r.Discard(n)
	return err
}
