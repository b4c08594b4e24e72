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

// Package client implements the database client core: attachment,
// transaction, statement, blob and event handles over one multiplexed
// wire connection.
package client

import (
	"os"

	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/auth"
	"github.com/fbsql/fbsql/protocol"
	"github.com/fbsql/fbsql/utils/log"
)

// Attachment is a live database attachment. All subordinate handles
// (transactions, statements, blobs, events) are created through it and
// share its connection.
type Attachment struct {
	conn      *Connection
	handle    int32
	attached  bool
	listeners exceptionListeners

	// async is the auxiliary event channel, created on first QueueEvents.
	async *asyncChannel
}

// CreateOptions are the database-creation knobs of CreateDatabase.
type CreateOptions struct {
	PageSize   int32
	ForceWrite bool
	Overwrite  bool
}

// Attach dials the server, negotiates protocol and authentication, and
// attaches to the configured database.
func Attach(cfg Config) (a *Attachment, err error) {
	return establish(cfg, func(a *Attachment) error {
		return a.attachExchange(protocol.OpAttach, a.attachDpb())
	})
}

// CreateDatabase dials the server and creates the configured database,
// returning an attachment to it.
func CreateDatabase(cfg Config, opts CreateOptions) (a *Attachment, err error) {
	return establish(cfg, func(a *Attachment) error {
		dpb := a.attachDpb()
		if opts.PageSize > 0 {
			dpb.AddInt32(protocol.DpbPageSize, opts.PageSize)
		}
		if opts.ForceWrite {
			dpb.AddByte(protocol.DpbForceWrite, 1)
		}
		if opts.Overwrite {
			dpb.AddByte(protocol.DpbOverwrite, 1)
		}
		return a.attachExchange(protocol.OpCreate, dpb)
	})
}

func establish(cfg Config, exchange func(*Attachment) error) (a *Attachment, err error) {
	conn, err := newConnection(cfg)
	if err != nil {
		return
	}
	if err = conn.connect(); err != nil {
		return
	}
	a = &Attachment{conn: conn}

	chain := auth.NewChain(
		auth.NewSrp256(cfg.User, cfg.Password),
		auth.NewSrp(cfg.User, cfg.Password),
	)
	if err = conn.identify(cfg.Database, chain); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err = exchange(a); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return
}

// attachDpb builds the common parameter block of attach and create.
func (a *Attachment) attachDpb() *ParamBuffer {
	c := a.conn
	dpb := NewParamBuffer(protocol.DpbVersion1)
	dpb.AddByte(protocol.DpbUTF8Filename, 1)
	_ = dpb.AddString(protocol.DpbLcCtype, c.cfg.Charset, c.encoding)
	if c.cfg.User != "" {
		_ = dpb.AddString(protocol.DpbUserName, c.cfg.User, c.encoding)
	}
	// Pre-13 servers authenticate at attach time from the block itself.
	if c.cfg.Password != "" && !c.behavior.AuthData {
		_ = dpb.AddString(protocol.DpbPassword, c.cfg.Password, c.encoding)
	}
	if c.cfg.Role != "" {
		_ = dpb.AddString(protocol.DpbSQLRoleName, c.cfg.Role, c.encoding)
	}
	dpb.AddInt32(protocol.DpbSQLDialect, int32(c.cfg.SQLDialect))
	dpb.AddInt32(protocol.DpbProcessID, int32(os.Getpid()))
	if exe, eerr := os.Executable(); eerr == nil {
		_ = dpb.AddString(protocol.DpbProcessName, exe, c.encoding)
	}
	return dpb
}

func (a *Attachment) attachExchange(op int32, dpb *ParamBuffer) (err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.attached {
		return a.listeners.notify(errors.WithStack(ErrAlreadyAttached))
	}
	if err = c.enc.WriteInt32(op); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write attach request"))
	}
	if err = c.enc.WriteInt32(0); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write attach object"))
	}
	if err = c.enc.WriteString(c.cfg.Database, c.encoding); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write database path"))
	}
	if err = c.enc.WriteBuffer(dpb.Bytes()); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write parameter block"))
	}
	resp, err := c.opResponseLocked()
	if err != nil {
		return a.listeners.notify(err)
	}
	a.handle = resp.ObjectHandle
	a.attached = true
	log.WithFields(log.Fields{
		"handle":   a.handle,
		"protocol": c.version.Version,
	}).Debug("attached")
	return
}

// Handle returns the server-assigned attachment handle.
func (a *Attachment) Handle() int32 {
	return a.handle
}

// Attached reports whether the attachment is live.
func (a *Attachment) Attached() bool {
	a.conn.mu.Lock()
	defer a.conn.mu.Unlock()
	return a.attached
}

// AddExceptionListener registers an error observer on this attachment.
func (a *Attachment) AddExceptionListener(l ExceptionListener) {
	a.conn.mu.Lock()
	defer a.conn.mu.Unlock()
	a.listeners.add(l)
}

// SetWarningCallback routes server warnings raised on this connection.
func (a *Attachment) SetWarningCallback(cb WarningCallback) {
	a.conn.SetWarningCallback(cb)
}

// Detach cleanly ends the attachment and closes the socket.
func (a *Attachment) Detach() (err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !a.attached {
		return a.listeners.notify(errors.WithStack(ErrNotAttached))
	}
	if err = c.enc.WriteInt32(protocol.OpDetach); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write op_detach"))
	}
	if err = c.enc.WriteInt32(a.handle); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write attachment handle"))
	}
	if _, err = c.opResponseLocked(); err != nil {
		a.attached = false
		a.closeAsync()
		_ = c.closeLocked()
		return a.listeners.notify(err)
	}
	a.attached = false
	a.closeAsync()
	return c.closeLocked()
}

// ForceClose drops the socket without a wire exchange. For use when the
// server is unresponsive; every subordinate handle dies with it.
func (a *Attachment) ForceClose() (err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	a.attached = false
	a.closeAsync()
	return c.closeLocked()
}

// DropDatabase deletes the attached database. The attachment is gone
// afterwards regardless of outcome.
func (a *Attachment) DropDatabase() (err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !a.attached {
		return a.listeners.notify(errors.WithStack(ErrNotAttached))
	}
	if err = c.enc.WriteInt32(protocol.OpDropDatabase); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write op_drop_database"))
	}
	if err = c.enc.WriteInt32(a.handle); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write attachment handle"))
	}
	_, err = c.opResponseLocked()
	a.attached = false
	a.closeAsync()
	_ = c.closeLocked()
	return a.listeners.notify(err)
}

// GetInfo performs op_info_database for the given info items.
func (a *Attachment) GetInfo(items []byte, bufferLength int32) (res InfoResult, err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !a.attached {
		err = a.listeners.notify(errors.WithStack(ErrNotAttached))
		return
	}
	var data []byte
	if data, err = c.infoExchangeLocked(protocol.OpInfoDatabase, a.handle, items, bufferLength); err != nil {
		err = a.listeners.notify(err)
		return
	}
	if res, err = ParseInfo(data); err != nil {
		err = a.listeners.notify(err)
	}
	return
}

// infoExchangeLocked is the shared info-request shape: handle,
// incarnation, item list, reply buffer cap.
func (c *Connection) infoExchangeLocked(op, handle int32, items []byte, bufferLength int32) (data []byte, err error) {
	if err = c.enc.WriteInt32(op); err != nil {
		return nil, errors.Wrap(err, "write info request")
	}
	if err = c.enc.WriteInt32(handle); err != nil {
		return nil, errors.Wrap(err, "write info handle")
	}
	if err = c.enc.WriteInt32(0); err != nil {
		return nil, errors.Wrap(err, "write info incarnation")
	}
	if err = c.enc.WriteBuffer(items); err != nil {
		return nil, errors.Wrap(err, "write info items")
	}
	if err = c.enc.WriteInt32(bufferLength); err != nil {
		return nil, errors.Wrap(err, "write info buffer length")
	}
	resp, err := c.opResponseLocked()
	if err != nil {
		return
	}
	return resp.Data, nil
}

// Ping verifies the attachment is alive with a round trip the server does
// not account to any transaction.
func (a *Attachment) Ping() (err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !a.attached {
		return a.listeners.notify(errors.WithStack(ErrNotAttached))
	}
	if err = c.enc.WriteInt32(protocol.OpPing); err != nil {
		return a.listeners.notify(errors.Wrap(err, "write op_ping"))
	}
	_, err = c.opResponseLocked()
	return a.listeners.notify(err)
}

// NewOperation returns a cancellation token tied to this attachment. When
// the negotiated protocol supports async cancel, cancelling a started
// operation raises it server-side via op_cancel.
func (a *Attachment) NewOperation() (op *Operation) {
	op = &Operation{}
	if a.conn.behavior.AsyncCancel {
		op.interrupt = func() error {
			return a.conn.sendCancel(protocol.CancelRaise)
		}
	}
	return
}

// ID returns the server-side attachment id from op_info_database.
func (a *Attachment) ID() (id int64, err error) {
	res, err := a.GetInfo([]byte{protocol.InfoDbAttachmentID, infoEnd}, 32)
	if err != nil {
		return
	}
	id = res.Int(protocol.InfoDbAttachmentID, -1)
	if id < 0 {
		err = errors.Wrap(ErrMalformedInfo, "attachment id missing from info response")
	}
	return
}
