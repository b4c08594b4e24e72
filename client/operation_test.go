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
)

func TestOperationCancelRaces(t *testing.T) {
	Convey("a cancel landing before begin stops the operation locally", t, func() {
		interrupts := 0
		op := &Operation{interrupt: func() error { interrupts++; return nil }}

		So(op.Cancel(), ShouldBeNil)
		So(op.Cancelled(), ShouldBeTrue)
		So(op.begin(), ShouldEqual, ErrOperationCancelled)
		// Nothing was in flight, so no op_cancel went out.
		So(interrupts, ShouldEqual, 0)
	})

	Convey("a cancel landing mid-flight triggers the interrupt", t, func() {
		interrupts := 0
		op := &Operation{interrupt: func() error { interrupts++; return nil }}

		So(op.begin(), ShouldBeNil)
		So(op.Cancel(), ShouldBeNil)
		So(interrupts, ShouldEqual, 1)
		op.end()
	})

	Convey("cancelling a finished operation does nothing", t, func() {
		interrupts := 0
		op := &Operation{interrupt: func() error { interrupts++; return nil }}

		So(op.begin(), ShouldBeNil)
		op.end()
		So(op.Cancel(), ShouldBeNil)
		So(interrupts, ShouldEqual, 0)
		So(op.Cancelled(), ShouldBeFalse)
	})

	Convey("cancel is idempotent", t, func() {
		interrupts := 0
		op := &Operation{interrupt: func() error { interrupts++; return nil }}

		So(op.begin(), ShouldBeNil)
		So(op.Cancel(), ShouldBeNil)
		So(op.Cancel(), ShouldBeNil)
		So(interrupts, ShouldEqual, 1)
	})

	Convey("without an interrupt a started operation runs to completion", t, func() {
		op := &Operation{}
		So(op.begin(), ShouldBeNil)
		So(op.Cancel(), ShouldBeNil)
		So(op.Cancelled(), ShouldBeTrue)
		op.end()
	})

	Convey("the start observer runs before the operation is in flight", t, func() {
		interrupts := 0
		op := &Operation{interrupt: func() error { interrupts++; return nil }}

		started := 0
		op.OnStart(func(o *Operation) { started++ })
		So(op.begin(), ShouldBeNil)
		So(started, ShouldEqual, 1)
		op.end()
	})

	Convey("a cancel from the start observer wins without an interrupt", t, func() {
		interrupts := 0
		op := &Operation{interrupt: func() error { interrupts++; return nil }}

		op.OnStart(func(o *Operation) {
			So(o.Cancel(), ShouldBeNil)
		})
		So(op.begin(), ShouldEqual, ErrOperationCancelled)
		So(op.Cancelled(), ShouldBeTrue)
		// The operation never went in flight, so no op_cancel went out.
		So(interrupts, ShouldEqual, 0)
	})
}
