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

// Package blte decodes Block Table Encoded streams, the framing every CASC
// data blob is wrapped in. A frame is a "BLTE" magic, a header length, an
// optional chunk table with per-chunk md5 checksums, then the chunk payloads,
// each prefixed by a one-byte encoding mode.
package blte

import (
	"bytes"
	"compress/zlib"
	"crypto/md5"
	"encoding/binary"
	gohash "hash"
	"io"

	"github.com/pkg/errors"
)

var (
	// ErrBadMagic means the stream does not start with "BLTE".
	ErrBadMagic = errors.New("blte: bad magic")
)

var magic = []byte("BLTE")

// chunk modes; anything else is a format revision we don't speak.
const (
	modeRaw  = 'N'
	modeZlib = 'Z'
)

type chunk struct {
	compressedSize   uint32
	decompressedSize uint32
	checksum         [md5.Size]byte
}

// A Reader decodes a BLTE frame from the underlying stream. It implements
// io.Reader over the decompressed payload.
type Reader struct {
	r io.Reader

	headerDone bool

	// chunks is nil for single-chunk frames without a chunk table; such
	// frames carry no checksums.
	chunks  []chunk
	current int

	pending []byte
}

// NewReader returns a Reader decoding the BLTE frame in r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) Read(b []byte) (int, error) {
	if !r.headerDone {
		if err := r.readHeader(); err != nil {
			return 0, err
		}
		r.headerDone = true
		if err := r.nextChunk(); err != nil {
			return 0, err
		}
	}

	for len(r.pending) == 0 {
		r.current++
		if err := r.nextChunk(); err != nil {
			return 0, err
		}
	}

	n := copy(b, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *Reader) readHeader() error {
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(r.r, hdr); err != nil {
		return errors.Wrap(err, "blte: reading frame header")
	}
	if !bytes.Equal(hdr[0:4], magic) {
		return ErrBadMagic
	}

	headerSize := binary.BigEndian.Uint32(hdr[4:8])
	if headerSize == 0 {
		// headerless frame: the remainder is a single anonymous chunk
		return nil
	}

	info := make([]byte, 4)
	if _, err := io.ReadFull(r.r, info); err != nil {
		return errors.Wrap(err, "blte: reading chunk info")
	}
	// info[0] is a flags byte; the chunk count is a big-endian uint24.
	count := uint32(info[1])<<16 | uint32(info[2])<<8 | uint32(info[3])

	want := 8 + 4 + count*24
	if headerSize != want {
		return errors.Errorf("blte: header is %d bytes; %d chunks need %d", headerSize, count, want)
	}

	r.chunks = make([]chunk, count)
	entry := make([]byte, 24)
	for n := range r.chunks {
		if _, err := io.ReadFull(r.r, entry); err != nil {
			return errors.Wrapf(err, "blte: reading chunk table entry %d", n)
		}
		r.chunks[n].compressedSize = binary.BigEndian.Uint32(entry[0:4])
		r.chunks[n].decompressedSize = binary.BigEndian.Uint32(entry[4:8])
		copy(r.chunks[n].checksum[:], entry[8:24])
	}
	return nil
}

// nextChunk decompresses the chunk at r.current into r.pending.
func (r *Reader) nextChunk() error {
	src := r.r
	var sum gohash.Hash
	if r.chunks != nil {
		if r.current >= len(r.chunks) {
			return io.EOF
		}
		sum = md5.New()
		src = io.TeeReader(&io.LimitedReader{
			R: r.r,
			N: int64(r.chunks[r.current].compressedSize),
		}, sum)
	}

	mode := make([]byte, 1)
	if _, err := io.ReadFull(src, mode); err != nil {
		return err
	}

	var payload io.Reader
	switch mode[0] {
	case modeRaw:
		payload = src
	case modeZlib:
		zr, err := zlib.NewReader(byteReader{src})
		if err != nil {
			return errors.Wrapf(err, "blte: chunk %d", r.current)
		}
		payload = zr
	default:
		return errors.Errorf("blte: unsupported chunk mode %q in chunk %d", mode[0], r.current)
	}

	data, err := io.ReadAll(payload)
	if err != nil {
		return errors.Wrapf(err, "blte: decompressing chunk %d", r.current)
	}
	r.pending = data

	if r.chunks != nil {
		// drain any compressed bytes zlib did not consume so the checksum
		// covers the whole chunk and the next chunk starts aligned
		if _, err := io.Copy(io.Discard, src); err != nil {
			return err
		}
		want := r.chunks[r.current].checksum
		if got := sum.Sum(nil); !bytes.Equal(got, want[:]) {
			return errors.Errorf("blte: checksum mismatch in chunk %d: calculated %x, header said %x", r.current, got, want)
		}
		if dsz := r.chunks[r.current].decompressedSize; dsz != 0 && int(dsz) != len(data) {
			return errors.Errorf("blte: chunk %d decompressed to %d bytes; header said %d", r.current, len(data), dsz)
		}
	}
	return nil
}

// byteReader adds a ReadByte method so compress/zlib does not wrap the
// source in its own bufio.Reader and overread past the chunk boundary.
type byteReader struct {
	r io.Reader
}

func (b byteReader) Read(p []byte) (int, error) { return b.r.Read(p) }

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	for {
		n, err := b.r.Read(buf[:])
		if n == 1 {
			return buf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

