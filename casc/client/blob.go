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

package client

import (
	"bytes"
	"io"

	"github.com/blizzkit/flurry/blte"
	"github.com/blizzkit/flurry/casc"
)

// A Blob is a BLTE-framed payload tagged with the encoding key it was
// resolved and cached by. Open does not check the payload against the key;
// the BLTE reader verifies each chunk against the md5 in the frame's own
// chunk table.
type Blob struct {
	Key  casc.EncodingKey
	Data []byte
}

// Size returns the framed (on-wire) size in bytes.
func (b *Blob) Size() int {
	return len(b.Data)
}

// Open returns a reader over the decoded payload.
func (b *Blob) Open() io.Reader {
	return blte.NewReader(bytes.NewReader(b.Data))
}
