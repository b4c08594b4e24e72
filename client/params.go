/*
 * Copyright 2026 The fbsql Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package client

import (
	"github.com/fbsql/fbsql/wire"
)

// ParamBuffer builds a parameter block (DPB, TPB, BPB, SPB): an optional
// version byte followed by tag/length/value clumplets. Scalars are
// little-endian, per the block convention, regardless of the stream's
// byte order.
type ParamBuffer struct {
	buf []byte
}

// NewParamBuffer starts a block with the given version byte.
func NewParamBuffer(version byte) *ParamBuffer {
	return &ParamBuffer{buf: []byte{version}}
}

// NewBareParamBuffer starts a block without a version byte (TPB-style
// blocks carry the version as an ordinary leading tag).
func NewBareParamBuffer() *ParamBuffer {
	return &ParamBuffer{}
}

// AddTag appends a bare tag with no value.
func (p *ParamBuffer) AddTag(tag byte) *ParamBuffer {
	p.buf = append(p.buf, tag)
	return p
}

// AddBytes appends a tagged value. Values longer than 255 bytes are
// truncated by the format itself; callers chunk where the protocol
// defines chunking.
func (p *ParamBuffer) AddBytes(tag byte, v []byte) *ParamBuffer {
	p.buf = append(p.buf, tag, byte(len(v)))
	p.buf = append(p.buf, v...)
	return p
}

// AddString appends a tagged string in the given charset.
func (p *ParamBuffer) AddString(tag byte, s string, enc *wire.Encoding) (err error) {
	b, err := enc.EncodeString(s)
	if err != nil {
		return
	}
	p.AddBytes(tag, b)
	return
}

// AddByte appends a tagged single-byte value.
func (p *ParamBuffer) AddByte(tag, v byte) *ParamBuffer {
	return p.AddBytes(tag, []byte{v})
}

// AddInt32 appends a tagged 4-byte little-endian value.
func (p *ParamBuffer) AddInt32(tag byte, v int32) *ParamBuffer {
	return p.AddBytes(tag, wire.EncodeVaxInteger(int64(v), 4))
}

// Bytes returns the encoded block.
func (p *ParamBuffer) Bytes() []byte {
	return p.buf
}

// Len returns the encoded length.
func (p *ParamBuffer) Len() int {
	return len(p.buf)
}
