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
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/fbsql/fbsql/protocol"
	"github.com/fbsql/fbsql/wire"
)

func TestParamBuffer(t *testing.T) {
	Convey("a versioned block leads with its version byte", t, func() {
		pb := NewParamBuffer(protocol.DpbVersion1).
			AddByte(protocol.DpbUTF8Filename, 1).
			AddInt32(protocol.DpbPageSize, 8192)
		So(pb.Bytes(), ShouldResemble, []byte{
			protocol.DpbVersion1,
			protocol.DpbUTF8Filename, 1, 1,
			protocol.DpbPageSize, 4, 0x00, 0x20, 0x00, 0x00,
		})
		So(pb.Len(), ShouldEqual, 10)
	})

	Convey("strings encode through the connection charset", t, func() {
		enc, err := wire.LookupEncoding("UTF8")
		So(err, ShouldBeNil)
		pb := NewBareParamBuffer()
		So(pb.AddString(protocol.DpbUserName, "sysdba", enc), ShouldBeNil)
		So(pb.Bytes(), ShouldResemble, append(
			[]byte{protocol.DpbUserName, 6}, []byte("sysdba")...))
	})

	Convey("strings translate through a single-byte charset", t, func() {
		latin1, err := wire.LookupEncoding("ISO8859_1")
		So(err, ShouldBeNil)
		pb := NewBareParamBuffer()
		So(pb.AddString(protocol.DpbPassword, "café", latin1), ShouldBeNil)
		So(pb.Bytes(), ShouldResemble, []byte{
			protocol.DpbPassword, 4, 'c', 'a', 'f', 0xE9,
		})
	})

	Convey("the default tpb asks for read committed with record versions", t, func() {
		So(DefaultTpb(), ShouldResemble, []byte{
			protocol.TpbVersion3,
			protocol.TpbWrite,
			protocol.TpbWait,
			protocol.TpbReadCommitted,
			protocol.TpbRecVersion,
		})
	})
}
