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

package casc

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// CASC uses three separate 16-byte hash namespaces. They are deliberately
// distinct types: mixing up a content hash with an encoding key is the
// easiest mistake to make in this protocol, and the compiler should catch it.

// A ContentHash is the md5 of a file's uncompressed contents.
type ContentHash [md5.Size]byte

// An EncodingKey is the md5 of a file's BLTE-framed on-wire representation.
type EncodingKey [md5.Size]byte

// An ArchiveKey names an archive blob, which concatenates many
// EncodingKey-addressed chunks.
type ArchiveKey [md5.Size]byte

// A Key is any of the three CDN hash namespaces.
type Key interface {
	Hex() string
}

func parseKey(s string) ([md5.Size]byte, error) {
	var k [md5.Size]byte
	if hex.DecodedLen(len(s)) != md5.Size {
		return k, fmt.Errorf("casc: key %q is not %d hex characters", s, hex.EncodedLen(md5.Size))
	}
	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return k, fmt.Errorf("casc: key %q: %v", s, err)
	}
	return k, nil
}

// ParseContentHash parses a 32-character lowercase hex content hash.
func ParseContentHash(s string) (ContentHash, error) {
	k, err := parseKey(s)
	return ContentHash(k), err
}

// ParseEncodingKey parses a 32-character lowercase hex encoding key.
func ParseEncodingKey(s string) (EncodingKey, error) {
	k, err := parseKey(s)
	return EncodingKey(k), err
}

// ParseArchiveKey parses a 32-character lowercase hex archive key.
func ParseArchiveKey(s string) (ArchiveKey, error) {
	k, err := parseKey(s)
	return ArchiveKey(k), err
}

// Hex returns the lowercase hex rendering used in URLs and cache paths.
func (h ContentHash) Hex() string { return hex.EncodeToString(h[:]) }
func (h EncodingKey) Hex() string { return hex.EncodeToString(h[:]) }
func (h ArchiveKey) Hex() string  { return hex.EncodeToString(h[:]) }

// Equal reports whether two hashes are identical.
func (h ContentHash) Equal(o ContentHash) bool { return h == o }
func (h EncodingKey) Equal(o EncodingKey) bool { return h == o }
func (h ArchiveKey) Equal(o ArchiveKey) bool   { return h == o }

// Less imposes the byte-lexicographic order the encoding table is sorted by.
func (h ContentHash) Less(o ContentHash) bool { return bytes.Compare(h[:], o[:]) < 0 }

// IsZero reports whether the hash is all zero bytes. A zero encoding key in
// an archive index is a padding marker, never a real file.
func (h ContentHash) IsZero() bool { return h == ContentHash{} }
func (h EncodingKey) IsZero() bool { return h == EncodingKey{} }
func (h ArchiveKey) IsZero() bool  { return h == ArchiveKey{} }

// CDNPath renders a key as the CDN's two-level prefix tree path,
// e.g. 49299eae4e3a195953764bb4adb3c91f -> 49/29/49299eae4e3a195953764bb4adb3c91f.
func CDNPath(k Key) string {
	h := k.Hex()
	return h[0:2] + "/" + h[2:4] + "/" + h
}

// A FileDataID is the integer name of a logical game asset. IDs are sparse
// and stable across builds.
type FileDataID uint32

// A ServerInfo describes one regional CDN entry from the patch server's
// `cdns` table.
type ServerInfo struct {
	Name       Region
	Path       string
	Hosts      []string
	ConfigPath string
}

// A VersionInfo describes one row of the patch server's `versions` table.
// Product is not part of the table; the client stamps it on after decoding.
type VersionInfo struct {
	Region        Region
	BuildConfig   ContentHash
	CDNConfig     ContentHash
	BuildID       int `configtable:"BuildId"`
	VersionsName  string
	ProductConfig ContentHash

	Product Product `configtable:"-"`
}

// A KeyPair is a content hash together with the encoding key of the same
// file's on-wire form, as found in two-valued build config fields.
type KeyPair struct {
	ContentHash ContentHash
	EncodingKey EncodingKey
}

// A SizePair mirrors a KeyPair's sizes: uncompressed then compressed.
type SizePair struct {
	UncompressedSize uint64
	CompressedSize   uint64
}

// A BuildConfig is the parsed build configuration blob.
type BuildConfig struct {
	Root ContentHash

	Install     ContentHash
	InstallSize uint64

	Download     ContentHash
	DownloadSize uint64

	// Encoding carries exactly two values: the content hash of the decoded
	// table and the encoding key it is fetched by. Any other shape is
	// rejected at decode time.
	Encoding     KeyPair
	EncodingSize SizePair

	Size     KeyPair
	SizeSize SizePair

	Patch       ContentHash
	PatchSize   uint64
	PatchConfig ContentHash
}

// A CDNConfig is the parsed CDN configuration blob. Only Archives drives the
// index loader; the remaining fields are retained for completeness.
type CDNConfig struct {
	Archives          []ArchiveKey
	ArchivesIndexSize []uint64
	ArchiveGroup      ArchiveKey

	PatchArchives     []ArchiveKey
	PatchArchiveGroup ArchiveKey

	FileIndex     EncodingKey
	FileIndexSize uint64
}
