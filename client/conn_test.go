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
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/fbsql/fbsql/protocol"
)

func TestConnectionResponses(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	Convey("a failure status vector surfaces as a server error", t, func() {
		c, p := newScriptedConn(t)
		defer func() { _ = c.Close() }()
		a := testAttachment(c)

		p.script(func() {
			p.expectOp(protocol.OpPing)
			p.sendErrorResponse(335544345, "lock conflict on no wait transaction")
		})

		err := a.Ping()
		var serverErr *protocol.Error
		So(errors.As(err, &serverErr), ShouldBeTrue)
		So(serverErr.Code(), ShouldEqual, 335544345)
		So(serverErr.IsWarning(), ShouldBeFalse)
		So(err.Error(), ShouldContainSubstring, "lock conflict")
		p.wait()
	})

	Convey("warnings ride along on a clean response", t, func() {
		c, p := newScriptedConn(t)
		defer func() { _ = c.Close() }()
		a := testAttachment(c)

		var warned *protocol.Error
		c.SetWarningCallback(func(w *protocol.Error) { warned = w })

		p.script(func() {
			p.expectOp(protocol.OpPing)
			p.sendWarningResponse(0, 335544808)
		})

		So(a.Ping(), ShouldBeNil)
		So(warned, ShouldNotBeNil)
		So(warned.IsWarning(), ShouldBeTrue)
		So(warned.Code(), ShouldEqual, 335544808)
		p.wait()
	})

	Convey("op_dummy keep-alives are skipped in front of the response", t, func() {
		c, p := newScriptedConn(t)
		defer func() { _ = c.Close() }()
		a := testAttachment(c)

		p.script(func() {
			p.expectOp(protocol.OpPing)
			p.sendInt32(protocol.OpDummy)
			p.sendInt32(protocol.OpDummy)
			p.sendResponse(0, 0, nil)
		})

		So(a.Ping(), ShouldBeNil)
		p.wait()
	})

	Convey("operations on a closed connection fail locally", t, func() {
		c, _ := newScriptedConn(t)
		So(c.Close(), ShouldBeNil)
		So(c.Close(), ShouldBeNil)

		a := testAttachment(c)
		So(errors.Cause(a.Ping()), ShouldEqual, ErrNotConnected)
	})
}

func TestConnectionSendCancel(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	Convey("op_cancel goes out of band, bypassing the write buffer", t, func() {
		c, p := newScriptedConn(t)
		defer func() { _ = c.Close() }()

		p.script(func() {
			p.expectOp(protocol.OpCancel)
			p.expectInt32(protocol.CancelRaise, "cancel kind")
		})

		So(c.sendCancel(protocol.CancelRaise), ShouldBeNil)
		p.wait()

		Convey("but not on a closed connection", func() {
			So(c.Close(), ShouldBeNil)
			So(errors.Cause(c.sendCancel(protocol.CancelRaise)), ShouldEqual, ErrNotConnected)
		})
	})
}
