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
	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/protocol"
)

// TransactionState is the lifecycle state of a Transaction.
type TransactionState int

// Transaction lifecycle. Retaining variants complete the work without
// leaving TxActive. A transport failure drops the transaction to TxError,
// from which only Rollback is accepted.
const (
	TxActive TransactionState = iota
	TxPrepared
	TxCommitted
	TxRolledBack
	TxError
)

// Transaction is one server-side transaction on an attachment.
type Transaction struct {
	att       *Attachment
	handle    int32
	state     TransactionState
	listeners exceptionListeners
}

// DefaultTpb is the transaction parameter block used when the caller
// passes none: read-write, wait, read committed with record versions.
func DefaultTpb() []byte {
	return NewBareParamBuffer().
		AddTag(protocol.TpbVersion3).
		AddTag(protocol.TpbWrite).
		AddTag(protocol.TpbWait).
		AddTag(protocol.TpbReadCommitted).
		AddTag(protocol.TpbRecVersion).
		Bytes()
}

// StartTransaction begins a transaction with the given parameter block,
// or DefaultTpb when tpb is nil.
func (a *Attachment) StartTransaction(tpb []byte) (tx *Transaction, err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !a.attached {
		err = a.listeners.notify(errors.WithStack(ErrNotAttached))
		return
	}
	if tpb == nil {
		tpb = DefaultTpb()
	}
	if err = c.enc.WriteInt32(protocol.OpTransaction); err != nil {
		err = a.listeners.notify(errors.Wrap(err, "write op_transaction"))
		return
	}
	if err = c.enc.WriteInt32(a.handle); err != nil {
		err = a.listeners.notify(errors.Wrap(err, "write attachment handle"))
		return
	}
	if err = c.enc.WriteBuffer(tpb); err != nil {
		err = a.listeners.notify(errors.Wrap(err, "write transaction parameter block"))
		return
	}
	resp, err := c.opResponseLocked()
	if err != nil {
		err = a.listeners.notify(err)
		return
	}
	tx = &Transaction{att: a, handle: resp.ObjectHandle, state: TxActive}
	return
}

// Reconnect re-attaches to a limbo transaction by its id, for two-phase
// recovery. The returned transaction is in TxPrepared state and can only
// be committed or rolled back.
func (a *Attachment) Reconnect(txID int64) (tx *Transaction, err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !a.attached {
		err = a.listeners.notify(errors.WithStack(ErrNotAttached))
		return
	}
	if err = c.enc.WriteInt32(protocol.OpReconnect); err != nil {
		err = a.listeners.notify(errors.Wrap(err, "write op_reconnect"))
		return
	}
	if err = c.enc.WriteInt32(a.handle); err != nil {
		err = a.listeners.notify(errors.Wrap(err, "write attachment handle"))
		return
	}
	// The transaction id travels as a little-endian payload buffer.
	if err = c.enc.WriteBuffer(wireTxID(txID)); err != nil {
		err = a.listeners.notify(errors.Wrap(err, "write transaction id"))
		return
	}
	resp, err := c.opResponseLocked()
	if err != nil {
		err = a.listeners.notify(err)
		return
	}
	tx = &Transaction{att: a, handle: resp.ObjectHandle, state: TxPrepared}
	return
}

func wireTxID(id int64) []byte {
	width := 4
	if id > 0x7FFFFFFF {
		width = 8
	}
	b := make([]byte, width)
	for i := 0; i < width; i++ {
		b[i] = byte(id >> (8 * i))
	}
	return b
}

// Handle returns the server-assigned transaction handle.
func (t *Transaction) Handle() int32 {
	return t.handle
}

// State returns the transaction's lifecycle state.
func (t *Transaction) State() TransactionState {
	t.att.conn.mu.Lock()
	defer t.att.conn.mu.Unlock()
	return t.state
}

// AddExceptionListener registers an error observer on this transaction.
func (t *Transaction) AddExceptionListener(l ExceptionListener) {
	t.att.conn.mu.Lock()
	defer t.att.conn.mu.Unlock()
	t.listeners.add(l)
}

// failLocked routes an exchange failure: a transport error drops the
// transaction to TxError, a server status vector leaves its state alone.
func (t *Transaction) failLocked(err error) error {
	if err != nil && !isServerError(err) {
		t.state = TxError
	}
	return t.listeners.notify(err)
}

// endLocked is the shared shape of the four completion verbs.
func (t *Transaction) endLocked(op int32, next TransactionState, retain bool) (err error) {
	c := t.att.conn
	allowed := t.state == TxActive || t.state == TxPrepared
	// An errored transaction can still be rolled back to release the
	// client-side handle.
	if t.state == TxError && op == protocol.OpRollback {
		allowed = true
	}
	if !allowed {
		return t.listeners.notify(errors.WithStack(ErrTransactionNotActive))
	}
	if err = c.enc.WriteInt32(op); err != nil {
		return t.failLocked(errors.Wrap(err, "write transaction end"))
	}
	if err = c.enc.WriteInt32(t.handle); err != nil {
		return t.failLocked(errors.Wrap(err, "write transaction handle"))
	}
	if _, err = c.opResponseLocked(); err != nil {
		if !isServerError(err) {
			t.state = TxError
		} else if !retain {
			// A failed non-retaining end still invalidates the handle
			// client-side; the server has rolled it back or will.
			t.state = TxRolledBack
		}
		return t.listeners.notify(err)
	}
	if !retain {
		t.state = next
	}
	return
}

// Commit makes the transaction's work durable and invalidates the handle.
func (t *Transaction) Commit() (err error) {
	t.att.conn.mu.Lock()
	defer t.att.conn.mu.Unlock()
	return t.endLocked(protocol.OpCommit, TxCommitted, false)
}

// CommitRetaining commits the work but keeps the transaction context,
// including cursors, alive.
func (t *Transaction) CommitRetaining() (err error) {
	t.att.conn.mu.Lock()
	defer t.att.conn.mu.Unlock()
	return t.endLocked(protocol.OpCommitRetaining, TxActive, true)
}

// Rollback undoes the transaction's work and invalidates the handle.
func (t *Transaction) Rollback() (err error) {
	t.att.conn.mu.Lock()
	defer t.att.conn.mu.Unlock()
	return t.endLocked(protocol.OpRollback, TxRolledBack, false)
}

// RollbackRetaining undoes the work but keeps the transaction context
// alive.
func (t *Transaction) RollbackRetaining() (err error) {
	t.att.conn.mu.Lock()
	defer t.att.conn.mu.Unlock()
	return t.endLocked(protocol.OpRollbackRetain, TxActive, true)
}

// Prepare runs phase one of two-phase commit, optionally tagging the
// limbo transaction with recovery information.
func (t *Transaction) Prepare(recoveryInfo []byte) (err error) {
	c := t.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.state != TxActive {
		return t.listeners.notify(errors.WithStack(ErrTransactionNotActive))
	}
	op := protocol.OpPrepare
	if len(recoveryInfo) > 0 {
		op = protocol.OpPrepare2
	}
	if err = c.enc.WriteInt32(op); err != nil {
		return t.failLocked(errors.Wrap(err, "write op_prepare"))
	}
	if err = c.enc.WriteInt32(t.handle); err != nil {
		return t.failLocked(errors.Wrap(err, "write transaction handle"))
	}
	if op == protocol.OpPrepare2 {
		if err = c.enc.WriteBuffer(recoveryInfo); err != nil {
			return t.failLocked(errors.Wrap(err, "write recovery information"))
		}
	}
	if _, err = c.opResponseLocked(); err != nil {
		return t.failLocked(err)
	}
	t.state = TxPrepared
	return
}

// GetInfo performs op_info_transaction for the given info items.
func (t *Transaction) GetInfo(items []byte, bufferLength int32) (res InfoResult, err error) {
	c := t.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.state != TxActive && t.state != TxPrepared {
		err = t.listeners.notify(errors.WithStack(ErrTransactionNotActive))
		return
	}
	data, err := c.infoExchangeLocked(protocol.OpInfoTransaction, t.handle, items, bufferLength)
	if err != nil {
		err = t.failLocked(err)
		return
	}
	if res, err = ParseInfo(data); err != nil {
		err = t.listeners.notify(err)
	}
	return
}

// ID returns the server-side transaction id from op_info_transaction.
func (t *Transaction) ID() (id int64, err error) {
	res, err := t.GetInfo([]byte{protocol.InfoTraID, infoEnd}, 32)
	if err != nil {
		return
	}
	id = res.Int(protocol.InfoTraID, -1)
	if id < 0 {
		err = errors.Wrap(ErrMalformedInfo, "transaction id missing from info response")
	}
	return
}
