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

// Package wire implements the XDR-style binary codec of the Firebird wire
// protocol: big-endian stream words with 4-byte alignment, plus the
// little-endian "vax" scalar encoding used inside parameter blocks and
// info-item streams.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ErrEndOfStream indicates a decode ran past the end of the stream.
var ErrEndOfStream = errors.New("unexpected end of stream")

var zeroPad [4]byte

// Pad4 returns the number of padding bytes needed to align n to a 4-byte
// boundary.
func Pad4(n int) int {
	return (4 - n&3) & 3
}

// Encoder writes XDR primitives to an underlying stream.
type Encoder struct {
	w       io.Writer
	scratch [8]byte
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteInt32 writes a big-endian 32 bit word.
func (e *Encoder) WriteInt32(v int32) (err error) {
	binary.BigEndian.PutUint32(e.scratch[:4], uint32(v))
	_, err = e.w.Write(e.scratch[:4])
	return
}

// WriteInt64 writes a big-endian 64 bit word.
func (e *Encoder) WriteInt64(v int64) (err error) {
	binary.BigEndian.PutUint64(e.scratch[:8], uint64(v))
	_, err = e.w.Write(e.scratch[:8])
	return
}

// WriteBuffer writes an opaque buffer: 4 byte length, the bytes, then zero
// padding to the next 4-byte boundary.
func (e *Encoder) WriteBuffer(b []byte) (err error) {
	if err = e.WriteInt32(int32(len(b))); err != nil {
		return
	}
	// Skip the payload write entirely when empty: a zero-length Write
	// blocks on io.Pipe-backed connections until a reader arrives.
	if len(b) > 0 {
		if _, err = e.w.Write(b); err != nil {
			return
		}
	}
	return e.writePad(len(b), 0)
}

// WritePaddedRaw writes b followed by padding bytes of the given value, with
// no length prefix. Used by the row codec where the pad byte is
// type-specific.
func (e *Encoder) WritePaddedRaw(b []byte, padByte byte) (err error) {
	if len(b) > 0 {
		if _, err = e.w.Write(b); err != nil {
			return
		}
	}
	return e.writePad(len(b), padByte)
}

// WriteString writes s through enc as an opaque buffer.
func (e *Encoder) WriteString(s string, enc *Encoding) (err error) {
	b, err := enc.EncodeString(s)
	if err != nil {
		return
	}
	return e.WriteBuffer(b)
}

// WriteRaw writes b verbatim.
func (e *Encoder) WriteRaw(b []byte) (err error) {
	_, err = e.w.Write(b)
	return
}

func (e *Encoder) writePad(n int, padByte byte) (err error) {
	p := Pad4(n)
	if p == 0 {
		return
	}
	pad := zeroPad[:p]
	if padByte != 0 {
		pad = e.scratch[:p]
		for i := range pad {
			pad[i] = padByte
		}
	}
	_, err = e.w.Write(pad)
	return
}

// Decoder reads XDR primitives from an underlying stream.
type Decoder struct {
	r       io.Reader
	scratch [8]byte
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func mapEOF(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(ErrEndOfStream, err.Error())
	}
	return err
}

// ReadInt32 reads a big-endian 32 bit word.
func (d *Decoder) ReadInt32() (v int32, err error) {
	if _, err = io.ReadFull(d.r, d.scratch[:4]); err != nil {
		err = mapEOF(err)
		return
	}
	v = int32(binary.BigEndian.Uint32(d.scratch[:4]))
	return
}

// ReadInt64 reads a big-endian 64 bit word.
func (d *Decoder) ReadInt64() (v int64, err error) {
	if _, err = io.ReadFull(d.r, d.scratch[:8]); err != nil {
		err = mapEOF(err)
		return
	}
	v = int64(binary.BigEndian.Uint64(d.scratch[:8]))
	return
}

// ReadBuffer reads an opaque buffer and skips its alignment padding.
func (d *Decoder) ReadBuffer() (b []byte, err error) {
	n, err := d.ReadInt32()
	if err != nil {
		return
	}
	if n < 0 {
		err = errors.Errorf("negative buffer length %d", n)
		return
	}
	b = make([]byte, int(n))
	if _, err = io.ReadFull(d.r, b); err != nil {
		b = nil
		err = mapEOF(err)
		return
	}
	err = d.Skip(Pad4(int(n)))
	return
}

// ReadString reads an opaque buffer and decodes it through enc.
func (d *Decoder) ReadString(enc *Encoding) (s string, err error) {
	b, err := d.ReadBuffer()
	if err != nil {
		return
	}
	return enc.DecodeString(b)
}

// ReadRaw reads exactly len(b) bytes into b.
func (d *Decoder) ReadRaw(b []byte) (err error) {
	_, err = io.ReadFull(d.r, b)
	return mapEOF(err)
}

// Skip discards n bytes.
func (d *Decoder) Skip(n int) (err error) {
	if n <= 0 {
		return
	}
	_, err = io.CopyN(io.Discard, d.r, int64(n))
	return mapEOF(err)
}
