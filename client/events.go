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
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/protocol"
	"github.com/fbsql/fbsql/utils/log"
	"github.com/fbsql/fbsql/wire"
)

// EventCounts is one delivery: how many times each subscribed event fired
// since the previous delivery.
type EventCounts map[string]int64

// EventHandle is one event subscription. Deliveries arrive on C; the
// subscription is one-shot server-side, so after each delivery Requeue
// re-arms it.
type EventHandle struct {
	id     int32
	names  []string
	counts map[string]int64

	c      chan EventCounts
	closed bool
}

// C returns the delivery channel. It is closed when the subscription is
// cancelled or the async channel dies.
func (h *EventHandle) C() <-chan EventCounts {
	return h.c
}

// encodeEpb builds the event parameter block: version byte, then per
// event a counted name and its current little-endian count baseline.
func encodeEpb(names []string, counts map[string]int64) []byte {
	out := []byte{protocol.EpbVersion1}
	for _, name := range names {
		out = append(out, byte(len(name)))
		out = append(out, name...)
		out = append(out, wire.EncodeVaxInteger(counts[name], 4)...)
	}
	return out
}

// decodeEpb parses an event parameter block back into absolute counts.
func decodeEpb(buf []byte) (counts map[string]int64, err error) {
	if len(buf) == 0 || buf[0] != protocol.EpbVersion1 {
		return nil, errors.Wrap(ErrMalformedInfo, "event block version")
	}
	counts = map[string]int64{}
	for i := 1; i < len(buf); {
		l := int(buf[i])
		i++
		if i+l+4 > len(buf) {
			return nil, errors.Wrap(ErrMalformedInfo, "event block truncated")
		}
		name := string(buf[i : i+l])
		i += l
		counts[name] = wire.VaxInteger(buf[i : i+4])
		i += 4
	}
	return
}

// eventPost is one decoded op_event packet, routed through the registry's
// dispatch loop to its subscription.
type eventPost struct {
	ac       *asyncChannel
	id       int32
	absolute map[string]int64
}

// EventRegistry owns the auxiliary event channels of a set of
// attachments. Each attachment hands its async channel to exactly one
// registry, which reads the channel's op_event packets and dispatches
// deliveries from a single goroutine. Close tears down every channel the
// registry still owns.
type EventRegistry struct {
	mu     sync.Mutex
	chans  map[*asyncChannel]struct{}
	closed bool

	posts chan eventPost
	quit  chan struct{}
}

// NewEventRegistry starts a registry with its dispatch loop running.
func NewEventRegistry() *EventRegistry {
	r := &EventRegistry{
		chans: map[*asyncChannel]struct{}{},
		posts: make(chan eventPost, 16),
		quit:  make(chan struct{}),
	}
	go r.dispatch()
	return r
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *EventRegistry
)

// DefaultEventRegistry returns the process-wide registry used by
// attachments whose Config names none. It lives for the life of the
// process.
func DefaultEventRegistry() *EventRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewEventRegistry()
	})
	return defaultRegistry
}

func (r *EventRegistry) dispatch() {
	for {
		select {
		case <-r.quit:
			return
		case p := <-r.posts:
			p.ac.deliver(p.id, p.absolute)
		}
	}
}

// attach hands an async channel to the registry, which reads it until the
// connection dies.
func (r *EventRegistry) attach(ac *asyncChannel) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.WithStack(ErrEventChannelClosed)
	}
	r.chans[ac] = struct{}{}
	r.mu.Unlock()
	go r.read(ac)
	return nil
}

// detach withdraws a channel from the registry and closes it. Idempotent.
func (r *EventRegistry) detach(ac *asyncChannel) {
	r.mu.Lock()
	delete(r.chans, ac)
	r.mu.Unlock()
	ac.close()
}

// read consumes one channel's packets until the connection dies, feeding
// decoded posts into the dispatch loop.
func (r *EventRegistry) read(ac *asyncChannel) {
	defer r.detach(ac)
	for {
		op, err := protocol.ReadOperation(ac.dec)
		if err != nil {
			return
		}
		switch op {
		case protocol.OpEvent:
			p, perr := ac.readEvent()
			if perr != nil {
				log.WithError(perr).Warn("malformed event packet, closing async channel")
				return
			}
			select {
			case r.posts <- p:
			case <-r.quit:
				return
			}
		case protocol.OpExit, protocol.OpDisconnect:
			return
		default:
			log.WithField("op", op).Warn("unexpected operation on async channel")
			return
		}
	}
}

// Close stops the dispatch loop and closes every channel the registry
// still owns. A closed registry refuses further attachments.
func (r *EventRegistry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	chans := make([]*asyncChannel, 0, len(r.chans))
	for ac := range r.chans {
		chans = append(chans, ac)
	}
	r.chans = map[*asyncChannel]struct{}{}
	r.mu.Unlock()
	for _, ac := range chans {
		ac.close()
	}
	close(r.quit)
}

// asyncChannel is the auxiliary connection the server posts op_event
// packets on, plus its live subscriptions.
type asyncChannel struct {
	conn net.Conn
	dec  *wire.Decoder

	mu      sync.Mutex
	handles map[int32]*EventHandle
	nextID  int32
	closed  bool
}

func newAsyncChannel(conn net.Conn) *asyncChannel {
	return &asyncChannel{
		conn:    conn,
		dec:     wire.NewDecoder(conn),
		handles: map[int32]*EventHandle{},
	}
}

func (ac *asyncChannel) register(h *EventHandle) (err error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.closed {
		return errors.WithStack(ErrEventChannelClosed)
	}
	ac.nextID++
	h.id = ac.nextID
	ac.handles[h.id] = h
	return
}

func (ac *asyncChannel) drop(id int32) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if h, ok := ac.handles[id]; ok {
		delete(ac.handles, id)
		if !h.closed {
			h.closed = true
			close(h.c)
		}
	}
}

func (ac *asyncChannel) close() {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.closed {
		return
	}
	ac.closed = true
	_ = ac.conn.Close()
	for id, h := range ac.handles {
		delete(ac.handles, id)
		if !h.closed {
			h.closed = true
			close(h.c)
		}
	}
}

// readEvent decodes one op_event body. Each packet names a subscription
// by id and carries the absolute counts since the events were created.
func (ac *asyncChannel) readEvent() (p eventPost, err error) {
	if _, err = ac.dec.ReadInt32(); err != nil { // database handle
		return
	}
	epb, err := ac.dec.ReadBuffer()
	if err != nil {
		return
	}
	if _, err = ac.dec.ReadInt64(); err != nil { // ast address, unused
		return
	}
	id, err := ac.dec.ReadInt32()
	if err != nil {
		return
	}
	absolute, err := decodeEpb(epb)
	if err != nil {
		return
	}
	return eventPost{ac: ac, id: id, absolute: absolute}, nil
}

// deliver routes one post to its subscription: the delivery is the
// difference against the handle's baseline.
func (ac *asyncChannel) deliver(id int32, absolute map[string]int64) {
	ac.mu.Lock()
	h, ok := ac.handles[id]
	if !ok || h.closed {
		ac.mu.Unlock()
		return
	}
	delivery := EventCounts{}
	for name, count := range absolute {
		if d := count - h.counts[name]; d > 0 {
			delivery[name] = d
		}
		h.counts[name] = count
	}
	ch := h.c
	ac.mu.Unlock()

	select {
	case ch <- delivery:
	default:
		log.WithField("event", id).Warn("event delivery dropped, receiver not draining")
	}
}

// openAsyncChannel asks the server for an auxiliary port and connects to
// it.
func (a *Attachment) openAsyncChannelLocked() (err error) {
	c := a.conn
	if a.async != nil {
		return
	}
	if err = c.enc.WriteInt32(protocol.OpConnectRequest); err != nil {
		return errors.Wrap(err, "write op_connect_request")
	}
	if err = c.enc.WriteInt32(protocol.ConnectRequestAsync); err != nil {
		return errors.Wrap(err, "write connect request type")
	}
	if err = c.enc.WriteInt32(a.handle); err != nil {
		return errors.Wrap(err, "write attachment handle")
	}
	if err = c.enc.WriteInt32(0); err != nil {
		return errors.Wrap(err, "write connect request id")
	}
	resp, err := c.opResponseLocked()
	if err != nil {
		return
	}
	addr, err := auxAddress(resp.Data, c.stream.RemoteAddr())
	if err != nil {
		return
	}
	conn, err := c.dialFn("tcp", addr, c.cfg.DialTimeout)
	if err != nil {
		return errors.Wrapf(err, "dial async channel %s", addr)
	}
	ac := newAsyncChannel(conn)
	if err = a.eventRegistry().attach(ac); err != nil {
		_ = conn.Close()
		return
	}
	a.async = ac
	return
}

// eventRegistry resolves the registry this attachment's async channel
// belongs to: the one named in the config, or the process default.
func (a *Attachment) eventRegistry() *EventRegistry {
	if r := a.conn.cfg.Events; r != nil {
		return r
	}
	return DefaultEventRegistry()
}

// auxAddress extracts host:port from the sockaddr payload of the connect
// request response. The address family dictates the layout; the host
// falls back to the main connection's peer when the payload carries a
// wildcard.
func auxAddress(data []byte, remote net.Addr) (addr string, err error) {
	if len(data) < 8 {
		err = errors.Wrap(ErrMalformedInfo, "async address payload too short")
		return
	}
	port := binary.BigEndian.Uint16(data[2:4])
	ip := net.IP(data[4:8])
	host := ip.String()
	if ip.IsUnspecified() {
		if h, _, serr := net.SplitHostPort(remote.String()); serr == nil {
			host = h
		}
	}
	addr = net.JoinHostPort(host, fmt.Sprintf("%d", port))
	return
}

// QueueEvents subscribes to the named events. The returned handle's
// channel receives the fired counts; the subscription must be re-armed
// with Requeue after each delivery.
func (a *Attachment) QueueEvents(names ...string) (h *EventHandle, err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !a.attached {
		err = a.listeners.notify(errors.WithStack(ErrNotAttached))
		return
	}
	if err = a.openAsyncChannelLocked(); err != nil {
		err = a.listeners.notify(err)
		return
	}
	h = &EventHandle{
		names:  append([]string(nil), names...),
		counts: map[string]int64{},
		c:      make(chan EventCounts, 1),
	}
	if err = a.async.register(h); err != nil {
		err = a.listeners.notify(err)
		return nil, err
	}
	if err = a.queueEventLocked(h); err != nil {
		a.async.drop(h.id)
		err = a.listeners.notify(err)
		return nil, err
	}
	return
}

// Requeue re-arms a subscription after a delivery, using the latest
// counts as the new baseline.
func (a *Attachment) Requeue(h *EventHandle) (err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !a.attached {
		return a.listeners.notify(errors.WithStack(ErrNotAttached))
	}
	if a.async == nil || h.closed {
		return a.listeners.notify(errors.WithStack(ErrEventChannelClosed))
	}
	return a.listeners.notify(a.queueEventLocked(h))
}

func (a *Attachment) queueEventLocked(h *EventHandle) (err error) {
	c := a.conn
	a.async.mu.Lock()
	epb := encodeEpb(h.names, h.counts)
	a.async.mu.Unlock()

	if err = c.enc.WriteInt32(protocol.OpQueEvents); err != nil {
		return errors.Wrap(err, "write op_que_events")
	}
	if err = c.enc.WriteInt32(a.handle); err != nil {
		return errors.Wrap(err, "write attachment handle")
	}
	if err = c.enc.WriteBuffer(epb); err != nil {
		return errors.Wrap(err, "write event block")
	}
	if err = c.enc.WriteInt32(0); err != nil { // ast
		return errors.Wrap(err, "write event ast")
	}
	if err = c.enc.WriteInt32(0); err != nil { // ast argument
		return errors.Wrap(err, "write event ast argument")
	}
	if err = c.enc.WriteInt32(h.id); err != nil {
		return errors.Wrap(err, "write event id")
	}
	_, err = c.opResponseLocked()
	return
}

// CancelEvents withdraws a subscription and closes its channel.
func (a *Attachment) CancelEvents(h *EventHandle) (err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !a.attached {
		return a.listeners.notify(errors.WithStack(ErrNotAttached))
	}
	if a.async == nil {
		return a.listeners.notify(errors.WithStack(ErrEventChannelClosed))
	}
	if err = c.enc.WriteInt32(protocol.OpCancelEvents); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write op_cancel_events"))
	}
	if err = c.enc.WriteInt32(a.handle); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write attachment handle"))
	}
	if err = c.enc.WriteInt32(h.id); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write event id"))
	}
	_, err = c.opResponseLocked()
	a.async.drop(h.id)
	return a.listeners.notify(err)
}

// closeAsync returns the auxiliary channel to its registry with the
// attachment.
func (a *Attachment) closeAsync() {
	if a.async != nil {
		a.eventRegistry().detach(a.async)
		a.async = nil
	}
}
