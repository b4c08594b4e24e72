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

package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Vax scalars are little-endian integers of 2, 4 or 8 bytes embedded in
// parameter blocks and info-item streams. A value too large for the
// requested width encodes as 0 rather than failing; servers apply the same
// leniency, so a client must not be stricter than the wire.

// VaxInteger decodes a little-endian integer of up to 8 bytes. Longer
// buffers decode to 0.
func VaxInteger(b []byte) (v int64) {
	if len(b) > 8 {
		return 0
	}
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | int64(b[i])
	}
	return
}

func vaxFits(v int64, width int) bool {
	switch width {
	case 2:
		return v >= -1<<15 && v < 1<<15
	case 4:
		return v >= -1<<31 && v < 1<<31
	case 8:
		return true
	}
	return false
}

// EncodeVaxInteger encodes v as a little-endian integer of the given width
// (2, 4 or 8). Values that do not fit the width encode as 0.
func EncodeVaxInteger(v int64, width int) (b []byte) {
	b = make([]byte, width)
	if !vaxFits(v, width) {
		return
	}
	switch width {
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, uint64(v))
	}
	return
}

// EncodeVaxIntegerWithLength encodes v prefixed by its 2-byte little-endian
// width, the layout of clumplet values in info-item streams.
func EncodeVaxIntegerWithLength(v int64, width int) (b []byte) {
	b = make([]byte, 2+width)
	binary.LittleEndian.PutUint16(b, uint16(width))
	copy(b[2:], EncodeVaxInteger(v, width))
	return
}

// DecodeVaxIntegerWithLength decodes a length-prefixed vax integer and
// reports the number of bytes consumed.
func DecodeVaxIntegerWithLength(b []byte) (v int64, n int, err error) {
	if len(b) < 2 {
		err = errors.WithStack(ErrEndOfStream)
		return
	}
	width := int(binary.LittleEndian.Uint16(b))
	if len(b) < 2+width {
		err = errors.WithStack(ErrEndOfStream)
		return
	}
	v = VaxInteger(b[2 : 2+width])
	n = 2 + width
	return
}
