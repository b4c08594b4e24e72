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
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/protocol"
	"github.com/fbsql/fbsql/transport"
	"github.com/fbsql/fbsql/utils/log"
	"github.com/fbsql/fbsql/wire"
)

const defaultPort = "3050"

// Connection owns one socket to the server: the stream, its codec, the
// negotiated protocol descriptor, and the queue of deferred actions.
//
// Locking discipline: exported methods take mu; methods with the Locked
// suffix require it held. All request/response exchanges happen under one
// continuous hold of mu, so the stream never interleaves two operations.
type Connection struct {
	mu sync.Mutex

	stream *transport.Stream
	enc    *wire.Encoder
	dec    *wire.Decoder

	encoding *wire.Encoding
	version  protocol.ProtocolVersion
	behavior protocol.Behavior
	lazy     bool

	q        deferredQueue
	warnings WarningCallback

	cfg    Config
	closed atomic.Bool

	// cancelMu serializes out-of-band op_cancel writers. Injecting the
	// packet is only safe while the main writer buffer is idle, which
	// holds whenever an operation is blocked reading its response.
	cancelMu sync.Mutex

	// dialFn exists so tests can swap the network out.
	dialFn func(network, address string, timeout time.Duration) (net.Conn, error)
}

func newConnection(cfg Config) (c *Connection, err error) {
	full := cfg.withDefaults()
	enc, err := wire.LookupEncoding(full.Charset)
	if err != nil {
		return nil, errors.Wrapf(err, "charset %s", full.Charset)
	}
	c = &Connection{
		cfg:      full,
		encoding: enc,
		dialFn:   net.DialTimeout,
	}
	return
}

// newConnectionOn builds a connection over an established socket with
// protocol 10 defaults. Tests use it to talk to a scripted peer without a
// handshake; attach upgrades the descriptor after negotiation.
func newConnectionOn(conn net.Conn, cfg Config) (c *Connection, err error) {
	if c, err = newConnection(cfg); err != nil {
		return
	}
	c.adopt(conn)
	c.version = protocol.ProtocolVersion{
		Version:      protocol.ProtocolVersion10,
		Architecture: protocol.ArchGeneric,
		MinType:      protocol.PtypeBatchSend,
		MaxType:      protocol.PtypeBatchSend,
	}
	c.behavior = protocol.ComposeBehavior(protocol.ProtocolVersion10)
	return
}

func (c *Connection) adopt(conn net.Conn) {
	c.stream = transport.NewStream(conn)
	c.stream.SetTimeout(c.cfg.SoTimeout)
	c.enc = wire.NewEncoder(c.stream)
	c.dec = wire.NewDecoder(c.stream)
}

func (c *Connection) connect() (err error) {
	if c.stream != nil {
		return errors.WithStack(ErrAlreadyAttached)
	}
	addr := c.cfg.Address
	if _, _, aerr := net.SplitHostPort(addr); aerr != nil {
		addr = net.JoinHostPort(addr, defaultPort)
	}
	conn, err := c.dialFn("tcp", addr, c.cfg.DialTimeout)
	if err != nil {
		return errors.Wrapf(err, "dial %s", addr)
	}
	c.adopt(conn)
	return
}

// SetWarningCallback routes server warnings; pass nil to drop them.
func (c *Connection) SetWarningCallback(cb WarningCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = cb
}

func (c *Connection) checkLocked() (err error) {
	if c.stream == nil || c.closed.Load() {
		return errors.WithStack(ErrNotConnected)
	}
	return
}

// flushLocked pushes queued request bytes to the socket. Under lazy send
// this is the only place buffered packets leave the client, so every
// response read goes through here first.
func (c *Connection) flushLocked() (err error) {
	if err = c.checkLocked(); err != nil {
		return
	}
	return c.stream.Flush()
}

func (c *Connection) readOperationLocked() (op int32, err error) {
	return protocol.ReadOperation(c.dec)
}

// readGenericResponseLocked expects an op_response record next on the
// stream. Warnings are routed to the callback here so no caller can lose
// them.
func (c *Connection) readGenericResponseLocked() (resp *protocol.GenericResponse, err error) {
	op, err := c.readOperationLocked()
	if err != nil {
		return
	}
	if op != protocol.OpResponse {
		return nil, errors.Wrapf(protocol.ErrUnexpectedOperation, "want op_response, got %d", op)
	}
	resp, err = protocol.ReadGenericResponse(c.dec, c.encoding)
	if resp != nil && resp.Warning != nil && c.warnings != nil {
		c.warnings(resp.Warning)
	}
	return
}

// enqueueDeferredLocked records that a request just written will produce
// one response to be consumed at the next sync point.
func (c *Connection) enqueueDeferredLocked(name string, handler func(resp *protocol.GenericResponse, err error) error) {
	c.q.enqueue(deferredAction{name: name, handler: handler})
}

// drainDeferredLocked consumes the responses of every queued action, in
// order. Must run after flushLocked and before reading any synchronous
// response, so the stream position lines up.
func (c *Connection) drainDeferredLocked() (err error) {
	return c.q.drain(c.readGenericResponseLocked)
}

// opResponseLocked is the standard sync point: flush, settle the deferred
// queue, read this operation's own op_response. A captured deferred error
// outranks the fresh response, because the caller's handle state may
// already be poisoned by it.
func (c *Connection) opResponseLocked() (resp *protocol.GenericResponse, err error) {
	if err = c.flushLocked(); err != nil {
		return
	}
	if err = c.drainDeferredLocked(); err != nil {
		return
	}
	resp, err = c.readGenericResponseLocked()
	if derr := c.q.takeError(); derr != nil {
		if err != nil {
			log.WithError(err).Debug("response error superseded by deferred failure")
		}
		err = derr
	}
	return
}

// sendCancel injects an op_cancel packet out of band. kind is one of the
// protocol.Cancel* values.
func (c *Connection) sendCancel(kind int32) (err error) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	if c.closed.Load() {
		return errors.WithStack(ErrNotConnected)
	}
	enc := wire.NewEncoder(c.stream)
	if err = enc.WriteInt32(protocol.OpCancel); err != nil {
		return errors.Wrap(err, "write op_cancel")
	}
	if err = enc.WriteInt32(kind); err != nil {
		return errors.Wrap(err, "write cancel kind")
	}
	return c.stream.Flush()
}

// Close tears the socket down. Idempotent; pending deferred actions are
// dropped since their responses can never arrive.
func (c *Connection) Close() (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Connection) closeLocked() (err error) {
	if c.stream == nil || !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.q.reset()
	return c.stream.Close()
}
