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

package protocol

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/fbsql/fbsql/wire"
)

func TestStatusVector(t *testing.T) {
	Convey("a clean vector decodes to no error", t, func() {
		var buf bytes.Buffer
		enc := wire.NewEncoder(&buf)
		So(enc.WriteInt32(ArgGds), ShouldBeNil)
		So(enc.WriteInt32(0), ShouldBeNil)
		So(enc.WriteInt32(ArgEnd), ShouldBeNil)

		failure, warning, err := DecodeStatusVector(wire.NewDecoder(&buf), wire.UTF8)
		So(err, ShouldBeNil)
		So(failure, ShouldBeNil)
		So(warning, ShouldBeNil)
	})

	Convey("errors carry the code chain, args and SQLSTATE", t, func() {
		var buf bytes.Buffer
		enc := wire.NewEncoder(&buf)
		So(enc.WriteInt32(ArgGds), ShouldBeNil)
		So(enc.WriteInt32(CodeDsqlSqldaErr), ShouldBeNil)
		So(enc.WriteInt32(ArgString), ShouldBeNil)
		So(enc.WriteString("Dynamic SQL Error", wire.UTF8), ShouldBeNil)
		So(enc.WriteInt32(ArgNumber), ShouldBeNil)
		So(enc.WriteInt32(-104), ShouldBeNil)
		So(enc.WriteInt32(ArgSQLState), ShouldBeNil)
		So(enc.WriteString("42000", wire.UTF8), ShouldBeNil)
		So(enc.WriteInt32(ArgEnd), ShouldBeNil)

		failure, warning, err := DecodeStatusVector(wire.NewDecoder(&buf), wire.UTF8)
		So(err, ShouldBeNil)
		So(warning, ShouldBeNil)
		So(failure, ShouldNotBeNil)
		So(failure.Code(), ShouldEqual, CodeDsqlSqldaErr)
		So(failure.SQLState, ShouldEqual, "42000")
		So(failure.Args, ShouldResemble, []string{"Dynamic SQL Error", "-104"})
		So(failure.IsWarning(), ShouldBeFalse)
		So(failure.Error(), ShouldContainSubstring, "42000")
	})

	Convey("warnings split off from the failure chain", t, func() {
		var buf bytes.Buffer
		enc := wire.NewEncoder(&buf)
		So(enc.WriteInt32(ArgWarning), ShouldBeNil)
		So(enc.WriteInt32(335544807), ShouldBeNil)
		So(enc.WriteInt32(ArgString), ShouldBeNil)
		So(enc.WriteString("sql warning", wire.UTF8), ShouldBeNil)
		So(enc.WriteInt32(ArgEnd), ShouldBeNil)

		failure, warning, err := DecodeStatusVector(wire.NewDecoder(&buf), wire.UTF8)
		So(err, ShouldBeNil)
		So(failure, ShouldBeNil)
		So(warning, ShouldNotBeNil)
		So(warning.IsWarning(), ShouldBeTrue)
		So(warning.Code(), ShouldEqual, 335544807)
	})

	Convey("cancellation is recognizable in the chain", t, func() {
		e := &Error{Codes: []int32{CodeCancelled}}
		So(e.IsCancelled(), ShouldBeTrue)
	})
}

func TestGenericResponse(t *testing.T) {
	Convey("op_response bodies decode handle, blob id, data and status", t, func() {
		var buf bytes.Buffer
		enc := wire.NewEncoder(&buf)
		So(enc.WriteInt32(7), ShouldBeNil)
		So(enc.WriteInt64(0x1122334455667788), ShouldBeNil)
		So(enc.WriteBuffer([]byte{InfoEnd}), ShouldBeNil)
		So(enc.WriteInt32(ArgGds), ShouldBeNil)
		So(enc.WriteInt32(0), ShouldBeNil)
		So(enc.WriteInt32(ArgEnd), ShouldBeNil)

		resp, err := ReadGenericResponse(wire.NewDecoder(&buf), wire.UTF8)
		So(err, ShouldBeNil)
		So(resp.ObjectHandle, ShouldEqual, 7)
		So(resp.BlobID, ShouldEqual, int64(0x1122334455667788))
		So(resp.Data, ShouldResemble, []byte{InfoEnd})
	})

	Convey("op_dummy packets are skipped before the real operation", t, func() {
		var buf bytes.Buffer
		enc := wire.NewEncoder(&buf)
		So(enc.WriteInt32(OpDummy), ShouldBeNil)
		So(enc.WriteInt32(OpDummy), ShouldBeNil)
		So(enc.WriteInt32(OpResponse), ShouldBeNil)

		op, err := ReadOperation(wire.NewDecoder(&buf))
		So(err, ShouldBeNil)
		So(op, ShouldEqual, OpResponse)
	})
}
