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
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	mock_conn "github.com/jordwest/mock-conn"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/fbsql/fbsql/protocol"
	"github.com/fbsql/fbsql/wire"
)

func TestEventBlockCodec(t *testing.T) {
	Convey("the event block round-trips names and count baselines", t, func() {
		names := []string{"new_order", "stock_low"}
		counts := map[string]int64{"new_order": 7}

		epb := encodeEpb(names, counts)
		So(epb[0], ShouldEqual, byte(protocol.EpbVersion1))

		decoded, err := decodeEpb(epb)
		So(err, ShouldBeNil)
		So(decoded["new_order"], ShouldEqual, 7)
		So(decoded["stock_low"], ShouldEqual, 0)
	})

	Convey("a wrong version byte is rejected", t, func() {
		_, err := decodeEpb([]byte{0xFF})
		So(errors.Cause(err), ShouldEqual, ErrMalformedInfo)
		_, err = decodeEpb(nil)
		So(errors.Cause(err), ShouldEqual, ErrMalformedInfo)
	})

	Convey("a truncated block is rejected", t, func() {
		_, err := decodeEpb([]byte{protocol.EpbVersion1, 5, 'a', 'b'})
		So(errors.Cause(err), ShouldEqual, ErrMalformedInfo)
	})
}

func TestAuxAddress(t *testing.T) {
	Convey("the sockaddr payload yields host and port", t, func() {
		remote := &net.TCPAddr{IP: net.IPv4(192, 168, 1, 9), Port: 3050}
		data := []byte{0, 2, 0x0F, 0xD3, 10, 0, 0, 5, 0, 0, 0, 0, 0, 0, 0, 0}

		addr, err := auxAddress(data, remote)
		So(err, ShouldBeNil)
		So(addr, ShouldEqual, "10.0.0.5:4051")
	})

	Convey("a wildcard host falls back to the main connection's peer", t, func() {
		remote := &net.TCPAddr{IP: net.IPv4(192, 168, 1, 9), Port: 3050}
		data := []byte{0, 2, 0x0F, 0xD3, 0, 0, 0, 0}

		addr, err := auxAddress(data, remote)
		So(err, ShouldBeNil)
		So(addr, ShouldEqual, "192.168.1.9:4051")
	})

	Convey("a short payload is malformed", t, func() {
		remote := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 3050}
		_, err := auxAddress([]byte{0, 2, 1}, remote)
		So(errors.Cause(err), ShouldEqual, ErrMalformedInfo)
	})
}

func TestEventSubscription(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()

	Convey("queue, deliver, requeue, cancel", t, func() {
		c, p := newScriptedConn(t)
		reg := NewEventRegistry()
		defer reg.Close()
		c.cfg.Events = reg
		a := testAttachment(c)

		aux := mock_conn.NewConn()
		c.dialFn = func(network, address string, timeout time.Duration) (net.Conn, error) {
			if address != "10.0.0.5:4051" {
				t.Errorf("aux dial address: got %s", address)
			}
			return aux.Client, nil
		}
		auxEnc := wire.NewEncoder(aux.Server)
		postEvent := func(id int32, epb []byte) {
			if err := auxEnc.WriteInt32(protocol.OpEvent); err != nil {
				t.Errorf("post event: %v", err)
				return
			}
			_ = auxEnc.WriteInt32(a.handle)
			_ = auxEnc.WriteBuffer(epb)
			_ = auxEnc.WriteInt64(0)
			_ = auxEnc.WriteInt32(id)
		}

		var eventID int32
		p.script(func() {
			p.expectOp(protocol.OpConnectRequest)
			p.expectInt32(protocol.ConnectRequestAsync, "connect request type")
			p.expectInt32(a.handle, "attachment handle")
			p.expectInt32(0, "connect request id")
			// sockaddr_in: port 4051, host 10.0.0.5.
			p.sendResponse(0, 0, []byte{0, 2, 0x0F, 0xD3, 10, 0, 0, 5, 0, 0, 0, 0, 0, 0, 0, 0})

			p.expectOp(protocol.OpQueEvents)
			p.expectInt32(a.handle, "attachment handle")
			p.expectBuffer(encodeEpb([]string{"new_order"}, map[string]int64{}), "event block")
			p.expectInt32(0, "ast")
			p.expectInt32(0, "ast argument")
			eventID = p.readInt32()
			p.sendResponse(0, 0, nil)

			// The subscription fires; the server posts absolute counts on
			// the aux channel.
			postEvent(eventID, encodeEpb([]string{"new_order"}, map[string]int64{"new_order": 3}))

			// Requeue re-arms with the delivered baseline.
			p.expectOp(protocol.OpQueEvents)
			p.expectInt32(a.handle, "attachment handle")
			p.expectBuffer(encodeEpb([]string{"new_order"}, map[string]int64{"new_order": 3}), "event block")
			p.expectInt32(0, "ast")
			p.expectInt32(0, "ast argument")
			p.expectInt32(eventID, "event id")
			p.sendResponse(0, 0, nil)

			postEvent(eventID, encodeEpb([]string{"new_order"}, map[string]int64{"new_order": 5}))

			p.expectOp(protocol.OpCancelEvents)
			p.expectInt32(a.handle, "attachment handle")
			p.expectInt32(eventID, "event id")
			p.sendResponse(0, 0, nil)
		})

		h, err := a.QueueEvents("new_order")
		So(err, ShouldBeNil)
		So(h, ShouldNotBeNil)

		delivery := <-h.C()
		So(delivery["new_order"], ShouldEqual, 3)

		So(a.Requeue(h), ShouldBeNil)
		delivery = <-h.C()
		So(delivery["new_order"], ShouldEqual, 2)

		So(a.CancelEvents(h), ShouldBeNil)
		_, open := <-h.C()
		So(open, ShouldBeFalse)
		p.wait()

		// Tearing the attachment down stops the aux reader.
		So(a.ForceClose(), ShouldBeNil)
	})

	Convey("requeue after cancel is refused", t, func() {
		c, _ := newScriptedConn(t)
		defer func() { _ = c.Close() }()
		reg := NewEventRegistry()
		defer reg.Close()
		c.cfg.Events = reg
		a := testAttachment(c)
		h := &EventHandle{closed: true}
		a.async = newAsyncChannel(mock_conn.NewConn().Client)
		defer a.closeAsync()
		So(errors.Cause(a.Requeue(h)), ShouldEqual, ErrEventChannelClosed)
	})

	Convey("a closed registry refuses further channels", t, func() {
		reg := NewEventRegistry()
		reg.Close()
		reg.Close()
		err := reg.attach(newAsyncChannel(mock_conn.NewConn().Client))
		So(errors.Cause(err), ShouldEqual, ErrEventChannelClosed)
	})

	Convey("closing the registry tears its channels down", t, func() {
		reg := NewEventRegistry()
		mc := mock_conn.NewConn()
		ac := newAsyncChannel(mc.Client)
		h := &EventHandle{c: make(chan EventCounts, 1), counts: map[string]int64{}}
		So(ac.register(h), ShouldBeNil)
		So(reg.attach(ac), ShouldBeNil)

		reg.Close()
		_, open := <-h.C()
		So(open, ShouldBeFalse)
	})
}
