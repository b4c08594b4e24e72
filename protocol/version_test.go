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
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func desc(version, weight int32) *Descriptor {
	return &Descriptor{
		ProtocolVersion: ProtocolVersion{
			Version:      version,
			Architecture: ArchGeneric,
			MinType:      PtypeBatchSend,
			MaxType:      PtypeLazySend,
			Weight:       weight,
		},
		Behavior: ComposeBehavior(version),
	}
}

func TestRegistrySelection(t *testing.T) {
	Convey("selection is deterministic on duplicate version tuples", t, func() {
		// Two descriptors claim version 13; the heavier one must win no
		// matter the registration order.
		r := NewRegistry(desc(13, 2), desc(13, 7), desc(12, 3))
		d, err := r.Select(13, ArchGeneric, PtypeBatchSend)
		So(err, ShouldBeNil)
		So(d.Weight, ShouldEqual, 7)

		r = NewRegistry(desc(13, 7), desc(13, 2), desc(12, 3))
		d, err = r.Select(13, ArchGeneric, PtypeBatchSend)
		So(err, ShouldBeNil)
		So(d.Weight, ShouldEqual, 7)
	})

	Convey("registry orders by version then weight", t, func() {
		r := NewRegistry(desc(11, 1), desc(13, 4), desc(13, 9), desc(12, 2))
		ds := r.Descriptors()
		So(ds[0].Version, ShouldEqual, 13)
		So(ds[0].Weight, ShouldEqual, 9)
		So(ds[1].Version, ShouldEqual, 13)
		So(ds[1].Weight, ShouldEqual, 4)
		So(ds[2].Version, ShouldEqual, 12)
		So(ds[3].Version, ShouldEqual, 11)
	})

	Convey("an unknown accepted triple fails negotiation, no fallback", t, func() {
		r := DefaultRegistry()
		_, err := r.Select(14, ArchGeneric, PtypeBatchSend)
		So(errors.Cause(err), ShouldEqual, ErrProtocolNegotiationFailed)

		_, err = r.Select(13, 99, PtypeBatchSend)
		So(errors.Cause(err), ShouldEqual, ErrProtocolNegotiationFailed)
	})

	Convey("accept type flags are masked before matching", t, func() {
		r := DefaultRegistry()
		d, err := r.Select(16, ArchGeneric, PtypeLazySend|PflagCompress)
		So(err, ShouldBeNil)
		So(d.Version, ShouldEqual, ProtocolVersion16)
	})

	Convey("version masking round trips", t, func() {
		So(MaskVersion(ProtocolVersion10), ShouldEqual, 10)
		So(MaskVersion(ProtocolVersion13), ShouldEqual, 0x800D)
		So(UnmaskVersion(MaskVersion(ProtocolVersion13)), ShouldEqual, 13)
		So(UnmaskVersion(MaskVersion(ProtocolVersion16)), ShouldEqual, 16)
	})
}

func TestBehaviorComposition(t *testing.T) {
	Convey("a version without overrides behaves exactly like its predecessor", t, func() {
		// Protocol 14 exists only as a gap: composing it must equal 13.
		So(ComposeBehavior(14), ShouldResemble, ComposeBehavior(ProtocolVersion13))
	})

	Convey("capabilities accumulate along the chain", t, func() {
		b10 := ComposeBehavior(ProtocolVersion10)
		So(b10.DeferredAllocate, ShouldBeFalse)
		So(b10.AuthData, ShouldBeFalse)

		b11 := ComposeBehavior(ProtocolVersion11)
		So(b11.DeferredAllocate, ShouldBeTrue)
		So(b11.DeferredBlobOpen, ShouldBeTrue)
		So(b11.AsyncCancel, ShouldBeFalse)

		b13 := ComposeBehavior(ProtocolVersion13)
		So(b13.AsyncCancel, ShouldBeTrue)
		So(b13.AuthData, ShouldBeTrue)
		So(b13.WireCrypt, ShouldBeTrue)
		So(b13.StatementTimeout, ShouldBeFalse)

		b18 := ComposeBehavior(ProtocolVersion18)
		So(b18.StatementTimeout, ShouldBeTrue)
		So(b18.ScrollableCursor, ShouldBeTrue)
	})
}
