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
	"bytes"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/fbsql/fbsql/protocol"
	"github.com/fbsql/fbsql/wire"
)

func TestRowDescriptorBLR(t *testing.T) {
	Convey("the message description pairs every slot with a null short", t, func() {
		rd := RowDescriptor{
			{SQLType: protocol.SQLTypeLong, Length: 4},
			{SQLType: protocol.SQLTypeVarying, Length: 300},
		}
		want := []byte{
			protocol.BlrVersion5, protocol.BlrBegin,
			protocol.BlrMessage, 0, 4, 0,
			protocol.BlrLong, 0, protocol.BlrShort, 0,
			protocol.BlrVarying, 44, 1, protocol.BlrShort, 0,
			protocol.BlrEnd, protocol.BlrEoc,
		}
		So(bytes.Equal(rd.BLR(), want), ShouldBeTrue)
	})
}

func TestRowCodec(t *testing.T) {
	enc, err := wire.LookupEncoding("UTF8")
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}

	Convey("a mixed row survives the message format", t, func() {
		rd := RowDescriptor{
			{SQLType: protocol.SQLTypeLong, Length: 4, Nullable: true},
			{SQLType: protocol.SQLTypeVarying, Length: 20},
			{SQLType: protocol.SQLTypeText, Length: 6},
			{SQLType: protocol.SQLTypeInt64, Length: 8},
		}

		text, err := StringFieldValue("ok", enc)
		So(err, ShouldBeNil)
		varying, err := StringFieldValue("hello", enc)
		So(err, ShouldBeNil)
		in := RowValue{
			NullFieldValue(),
			varying,
			text,
			Int64FieldValue(-5),
		}

		var buf bytes.Buffer
		So(rd.EncodeRow(wire.NewEncoder(&buf), in), ShouldBeNil)
		// Each slot is 4-byte aligned and followed by its indicator:
		// 4+4 for the long, 4+5+3+4 for the varying, 6+2+4 for the char,
		// 8+4 for the int64.
		So(buf.Len(), ShouldEqual, 8+16+12+12)

		out, err := rd.DecodeRow(wire.NewDecoder(&buf))
		So(err, ShouldBeNil)
		So(out, ShouldHaveLength, 4)

		So(out[0].Null, ShouldBeTrue)
		So(out[1].Null, ShouldBeFalse)

		s, err := out[1].String(enc)
		So(err, ShouldBeNil)
		So(s, ShouldEqual, "hello")

		// CHAR slots travel space-padded to the declared length.
		So(out[2].Data, ShouldResemble, []byte("ok    "))
		s, err = out[2].String(enc)
		So(err, ShouldBeNil)
		So(s, ShouldEqual, "ok")

		So(out[3].Int64(), ShouldEqual, -5)
	})

	Convey("a row not matching the descriptor is rejected", t, func() {
		rd := RowDescriptor{{SQLType: protocol.SQLTypeLong, Length: 4}}
		var buf bytes.Buffer
		err := rd.EncodeRow(wire.NewEncoder(&buf), RowValue{})
		So(errors.Cause(err), ShouldEqual, ErrParameterMismatch)
		So(buf.Len(), ShouldEqual, 0)
	})

	Convey("text values translate through a single-byte charset", t, func() {
		latin1, err := wire.LookupEncoding("ISO8859_1")
		So(err, ShouldBeNil)

		v, err := StringFieldValue("café", latin1)
		So(err, ShouldBeNil)
		So(v.Data, ShouldResemble, []byte{'c', 'a', 'f', 0xE9})

		s, err := v.String(latin1)
		So(err, ShouldBeNil)
		So(s, ShouldEqual, "café")
	})

	Convey("short and boolean slots widen on decode of Int64", t, func() {
		v := FieldValue{Data: []byte{0xFF, 0xFE}}
		So(v.Int64(), ShouldEqual, -2)
		b := FieldValue{Data: []byte{1}}
		So(b.Int64(), ShouldEqual, 1)
	})
}
