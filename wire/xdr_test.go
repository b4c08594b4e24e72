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
	"bytes"
	"math"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestXdrRoundTrip(t *testing.T) {
	Convey("int32 words survive a round trip", t, func() {
		var buf bytes.Buffer
		enc := NewEncoder(&buf)
		values := []int32{0, 1, -1, 127, -128, math.MaxInt32, math.MinInt32}
		for _, v := range values {
			So(enc.WriteInt32(v), ShouldBeNil)
		}
		dec := NewDecoder(&buf)
		for _, v := range values {
			got, err := dec.ReadInt32()
			So(err, ShouldBeNil)
			So(got, ShouldEqual, v)
		}
	})

	Convey("int64 words survive a round trip", t, func() {
		var buf bytes.Buffer
		enc := NewEncoder(&buf)
		values := []int64{0, -1, math.MaxInt64, math.MinInt64}
		for _, v := range values {
			So(enc.WriteInt64(v), ShouldBeNil)
		}
		dec := NewDecoder(&buf)
		for _, v := range values {
			got, err := dec.ReadInt64()
			So(err, ShouldBeNil)
			So(got, ShouldEqual, v)
		}
	})

	Convey("buffers of every small length round trip with pad skipping", t, func() {
		for n := 0; n <= 17; n++ {
			var buf bytes.Buffer
			enc := NewEncoder(&buf)
			b := make([]byte, n)
			for i := range b {
				b[i] = byte(i + 1)
			}
			So(enc.WriteBuffer(b), ShouldBeNil)
			// On-wire size is always 4-byte aligned.
			So(buf.Len(), ShouldEqual, 4+n+Pad4(n))
			// A trailing marker proves padding is skipped on decode.
			So(enc.WriteInt32(0x55AA55AA), ShouldBeNil)

			dec := NewDecoder(&buf)
			got, err := dec.ReadBuffer()
			So(err, ShouldBeNil)
			So(bytes.Equal(got, b), ShouldBeTrue)
			marker, err := dec.ReadInt32()
			So(err, ShouldBeNil)
			So(marker, ShouldEqual, int32(0x55AA55AA))
		}
	})

	Convey("strings round trip through the connection encoding", t, func() {
		var buf bytes.Buffer
		enc := NewEncoder(&buf)
		So(enc.WriteString("select 1 from RDB$DATABASE", UTF8), ShouldBeNil)
		dec := NewDecoder(&buf)
		s, err := dec.ReadString(UTF8)
		So(err, ShouldBeNil)
		So(s, ShouldEqual, "select 1 from RDB$DATABASE")
	})
}

func TestXdrEndOfStream(t *testing.T) {
	Convey("decoding past end of stream is an error, not a zero", t, func() {
		dec := NewDecoder(bytes.NewReader([]byte{0x00, 0x01}))
		_, err := dec.ReadInt32()
		So(errors.Cause(err), ShouldEqual, ErrEndOfStream)

		dec = NewDecoder(bytes.NewReader(nil))
		_, err = dec.ReadInt64()
		So(errors.Cause(err), ShouldEqual, ErrEndOfStream)

		// Length prefix present but payload missing.
		var buf bytes.Buffer
		So(NewEncoder(&buf).WriteInt32(16), ShouldBeNil)
		dec = NewDecoder(&buf)
		_, err = dec.ReadBuffer()
		So(errors.Cause(err), ShouldEqual, ErrEndOfStream)
	})
}

func TestVaxInteger(t *testing.T) {
	Convey("vax integers round trip at every width", t, func() {
		for _, width := range []int{2, 4, 8} {
			for _, v := range []int64{0, 1, -1, 42, -12345} {
				b := EncodeVaxInteger(v, width)
				So(len(b), ShouldEqual, width)
				// Negative values decode as the unsigned little-endian
				// pattern of the chosen width.
				if v >= 0 {
					So(VaxInteger(b), ShouldEqual, v)
				}
			}
		}
	})

	Convey("values too large for the width encode as zero", t, func() {
		So(VaxInteger(EncodeVaxInteger(1<<20, 2)), ShouldEqual, 0)
		So(VaxInteger(EncodeVaxInteger(1<<40, 4)), ShouldEqual, 0)
		So(VaxInteger(EncodeVaxInteger(1<<40, 8)), ShouldEqual, 1<<40)
	})

	Convey("oversized buffers decode to zero", t, func() {
		So(VaxInteger(make([]byte, 9)), ShouldEqual, 0)
	})

	Convey("length-prefixed form round trips", t, func() {
		b := EncodeVaxIntegerWithLength(1234, 4)
		v, n, err := DecodeVaxIntegerWithLength(b)
		So(err, ShouldBeNil)
		So(v, ShouldEqual, 1234)
		So(n, ShouldEqual, 6)

		_, _, err = DecodeVaxIntegerWithLength(b[:3])
		So(errors.Cause(err), ShouldEqual, ErrEndOfStream)
	})
}

func TestEncoding(t *testing.T) {
	Convey("charset lookup and conversion", t, func() {
		enc, err := LookupEncoding("WIN1252")
		So(err, ShouldBeNil)
		b, err := enc.EncodeString("café")
		So(err, ShouldBeNil)
		So(b, ShouldResemble, []byte{'c', 'a', 'f', 0xe9})
		s, err := enc.DecodeString(b)
		So(err, ShouldBeNil)
		So(s, ShouldEqual, "café")

		_, err = LookupEncoding("EBCDIC37")
		So(err, ShouldNotBeNil)
	})
}
