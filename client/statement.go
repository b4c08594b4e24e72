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
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/protocol"
	"github.com/fbsql/fbsql/utils/log"
)

// StatementState is the lifecycle state of a Statement.
type StatementState int

// Statement lifecycle. A failed prepare falls back to StmtAllocated; a
// closed statement never leaves StmtClosed. A transport failure drops the
// statement to StmtError, from which only Close is accepted.
const (
	StmtNew StatementState = iota
	StmtAllocated
	StmtPrepared
	StmtCursorOpen
	StmtClosed
	StmtError
)

// cursorBoundary tracks which end of the cursor a fetch ran off. The two
// ends are distinct: exhausting the cursor backwards leaves it before the
// first row, and a forward fetch from there must still go to the wire.
type cursorBoundary int

const (
	boundaryNone cursorBoundary = iota
	boundaryBeforeFirst
	boundaryAfterLast
)

// invalidObjectHandle stands in for a handle whose allocation response has
// not been read yet; the server resolves it to the most recently
// allocated object on the connection.
const invalidObjectHandle int32 = 0xFFFF

const (
	prepareInfoBufLen = 65535
	stmtInfoBufLen    = 4096
)

// cursorFlagScrollable is the op_execute cursor flag requesting a
// scrollable cursor.
const cursorFlagScrollable int32 = 1

// Statement is one allocated statement handle. It is prepared with SQL
// text, executed within a transaction, and fetched from while its cursor
// is open.
type Statement struct {
	att    *Attachment
	handle int32
	state  StatementState

	stmtType int
	fields   RowDescriptor
	params   RowDescriptor

	cursorName string
	scrollable bool
	timeout    time.Duration
	boundary   cursorBoundary

	rowListener RowListener
	listeners   exceptionListeners
}

// NewStatement allocates a statement handle. On lazy-send connections the
// allocation is pipelined: the request goes out, but its response is
// collected at the next sync point while the statement is already usable.
func (a *Attachment) NewStatement() (s *Statement, err error) {
	c := a.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !a.attached {
		err = a.listeners.notify(errors.WithStack(ErrNotAttached))
		return
	}
	s = &Statement{att: a, handle: invalidObjectHandle}
	if err = c.enc.WriteInt32(protocol.OpAllocateStmt); err != nil {
		err = a.listeners.notify(errors.Wrap(err, "write op_allocate_statement"))
		return nil, err
	}
	if err = c.enc.WriteInt32(a.handle); err != nil {
		err = a.listeners.notify(errors.Wrap(err, "write attachment handle"))
		return nil, err
	}

	if c.behavior.DeferredAllocate && c.lazy {
		st := s
		c.enqueueDeferredLocked("allocate statement", func(resp *protocol.GenericResponse, rerr error) error {
			if rerr != nil {
				st.state = StmtClosed
				return rerr
			}
			st.handle = resp.ObjectHandle
			return nil
		})
		s.state = StmtAllocated
		return
	}

	resp, err := c.opResponseLocked()
	if err != nil {
		return nil, a.listeners.notify(err)
	}
	s.handle = resp.ObjectHandle
	s.state = StmtAllocated
	return
}

// Handle returns the statement handle, which may still be the invalid
// placeholder while an allocation is in flight.
func (s *Statement) Handle() int32 {
	return s.handle
}

// State returns the statement's lifecycle state.
func (s *Statement) State() StatementState {
	s.att.conn.mu.Lock()
	defer s.att.conn.mu.Unlock()
	return s.state
}

// Type returns the prepared statement type (protocol.StmtType*).
func (s *Statement) Type() int {
	s.att.conn.mu.Lock()
	defer s.att.conn.mu.Unlock()
	return s.stmtType
}

// Fields returns the output row descriptor of the prepared statement.
func (s *Statement) Fields() RowDescriptor {
	s.att.conn.mu.Lock()
	defer s.att.conn.mu.Unlock()
	return s.fields
}

// Params returns the input row descriptor of the prepared statement.
func (s *Statement) Params() RowDescriptor {
	s.att.conn.mu.Lock()
	defer s.att.conn.mu.Unlock()
	return s.params
}

// AddExceptionListener registers an error observer on this statement.
func (s *Statement) AddExceptionListener(l ExceptionListener) {
	s.att.conn.mu.Lock()
	defer s.att.conn.mu.Unlock()
	s.listeners.add(l)
}

// SetRowListener routes fetched rows as they are decoded.
func (s *Statement) SetRowListener(l RowListener) {
	s.att.conn.mu.Lock()
	defer s.att.conn.mu.Unlock()
	s.rowListener = l
}

// SetTimeout sets the server-side statement timeout applied at execute.
// Ignored on protocol versions without timeout support.
func (s *Statement) SetTimeout(d time.Duration) {
	s.att.conn.mu.Lock()
	defer s.att.conn.mu.Unlock()
	s.timeout = d
}

// SetScrollable requests a scrollable cursor at the next execute. Fails
// when the negotiated protocol cannot scroll.
func (s *Statement) SetScrollable(scrollable bool) (err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if scrollable && !c.behavior.ScrollableCursor {
		return s.listeners.notify(errors.WithStack(ErrCursorFlagNotSupported))
	}
	s.scrollable = scrollable
	return
}

// failLocked routes an exchange failure: a transport error drops the
// statement to StmtError, a server status vector leaves its state alone.
func (s *Statement) failLocked(err error) error {
	if err != nil && !isServerError(err) {
		s.state = StmtError
	}
	return s.listeners.notify(err)
}

// Prepare compiles SQL text into this statement, describing its input and
// output messages. A failed prepare leaves the statement allocated, ready
// for another attempt; a transport failure leaves it in StmtError.
func (s *Statement) Prepare(tx *Transaction, sql string) (err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	switch s.state {
	case StmtClosed, StmtError:
		return s.listeners.notify(errors.WithStack(ErrStatementClosed))
	case StmtNew:
		return s.listeners.notify(errors.WithStack(ErrStatementNotPrepared))
	case StmtCursorOpen:
		if err = s.closeCursorLocked(); err != nil {
			return s.failLocked(err)
		}
	}
	if tx.state != TxActive {
		return s.listeners.notify(errors.WithStack(ErrTransactionNotActive))
	}

	if err = c.enc.WriteInt32(protocol.OpPrepareStmt); err != nil {
		return s.failLocked(errors.Wrap(err, "write op_prepare_statement"))
	}
	if err = c.enc.WriteInt32(tx.handle); err != nil {
		return s.failLocked(errors.Wrap(err, "write transaction handle"))
	}
	if err = c.enc.WriteInt32(s.handle); err != nil {
		return s.failLocked(errors.Wrap(err, "write statement handle"))
	}
	if err = c.enc.WriteInt32(int32(c.cfg.SQLDialect)); err != nil {
		return s.failLocked(errors.Wrap(err, "write sql dialect"))
	}
	if err = c.enc.WriteString(sql, c.encoding); err != nil {
		return s.failLocked(errors.Wrap(err, "write sql text"))
	}
	if err = c.enc.WriteBuffer(prepareInfoItems()); err != nil {
		return s.failLocked(errors.Wrap(err, "write prepare info items"))
	}
	if err = c.enc.WriteInt32(prepareInfoBufLen); err != nil {
		return s.failLocked(errors.Wrap(err, "write prepare info buffer length"))
	}

	resp, err := c.opResponseLocked()
	if err != nil {
		if isServerError(err) {
			s.state = StmtAllocated
			s.fields, s.params = nil, nil
			s.stmtType = protocol.StmtTypeNone
		}
		return s.failLocked(err)
	}

	var desc describeResult
	if err = desc.parse(resp.Data); err != nil {
		s.state = StmtAllocated
		return s.listeners.notify(err)
	}
	for desc.truncated {
		var data []byte
		from := 0
		if desc.lastSeq > 0 {
			from = desc.lastSeq - 1
		}
		items := resumeInfoItems(desc.section, from)
		if data, err = c.infoExchangeLocked(protocol.OpInfoSQL, s.handle, items, prepareInfoBufLen); err != nil {
			if isServerError(err) {
				s.state = StmtAllocated
			}
			return s.failLocked(err)
		}
		if err = desc.parse(data); err != nil {
			s.state = StmtAllocated
			return s.listeners.notify(err)
		}
	}

	s.stmtType = desc.stmtType
	s.fields = desc.fields
	s.params = desc.params
	s.state = StmtPrepared
	s.boundary = boundaryNone
	return
}

// Execute runs the prepared statement in the given transaction. For
// executable procedures the singleton output row is returned; selects
// open the cursor for Fetch instead. op may be nil when cancellation is
// not needed.
func (s *Statement) Execute(tx *Transaction, params RowValue, op *Operation) (out RowValue, err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	// State checks come first: nothing is written for a statement that
	// cannot execute.
	switch s.state {
	case StmtClosed, StmtError:
		err = s.listeners.notify(errors.WithStack(ErrStatementClosed))
		return
	case StmtNew, StmtAllocated:
		err = s.listeners.notify(errors.WithStack(ErrStatementNotPrepared))
		return
	case StmtCursorOpen:
		if err = s.closeCursorLocked(); err != nil {
			err = s.failLocked(err)
			return
		}
	}
	if tx.state != TxActive {
		err = s.listeners.notify(errors.WithStack(ErrTransactionNotActive))
		return
	}
	if len(params) != len(s.params) {
		err = s.listeners.notify(errors.WithStack(ErrParameterMismatch))
		return
	}
	if op != nil {
		if err = op.begin(); err != nil {
			err = s.listeners.notify(err)
			return
		}
		defer op.end()
	}

	singleton := s.stmtType == protocol.StmtTypeExecProcedure
	opcode := protocol.OpExecute
	if singleton {
		opcode = protocol.OpExecute2
	}

	if err = s.writeExecuteLocked(opcode, tx.handle, params); err != nil {
		err = s.failLocked(err)
		return
	}

	if singleton {
		out, err = s.readSingletonLocked()
		if err != nil {
			err = s.failLocked(err)
			return
		}
	} else {
		if _, err = c.opResponseLocked(); err != nil {
			err = s.failLocked(err)
			return
		}
	}

	if s.stmtType == protocol.StmtTypeSelect || s.stmtType == protocol.StmtTypeSelectForUpd {
		s.state = StmtCursorOpen
		s.boundary = boundaryNone
	}
	return
}

func (s *Statement) writeExecuteLocked(opcode, txHandle int32, params RowValue) (err error) {
	c := s.att.conn
	if err = c.enc.WriteInt32(opcode); err != nil {
		return errors.Wrap(err, "write execute request")
	}
	if err = c.enc.WriteInt32(s.handle); err != nil {
		return errors.Wrap(err, "write statement handle")
	}
	if err = c.enc.WriteInt32(txHandle); err != nil {
		return errors.Wrap(err, "write transaction handle")
	}

	var blr []byte
	messages := int32(0)
	if len(params) > 0 {
		blr = s.params.BLR()
		messages = 1
	}
	if err = c.enc.WriteBuffer(blr); err != nil {
		return errors.Wrap(err, "write parameter blr")
	}
	if err = c.enc.WriteInt32(0); err != nil {
		return errors.Wrap(err, "write message number")
	}
	if err = c.enc.WriteInt32(messages); err != nil {
		return errors.Wrap(err, "write message count")
	}
	if messages > 0 {
		if err = s.params.EncodeRow(c.enc, params); err != nil {
			return errors.Wrap(err, "write parameter row")
		}
	}
	if opcode == protocol.OpExecute2 {
		var outBlr []byte
		if len(s.fields) > 0 {
			outBlr = s.fields.BLR()
		}
		if err = c.enc.WriteBuffer(outBlr); err != nil {
			return errors.Wrap(err, "write output blr")
		}
		if err = c.enc.WriteInt32(0); err != nil {
			return errors.Wrap(err, "write output message number")
		}
	}
	if c.behavior.StatementTimeout {
		if err = c.enc.WriteInt32(int32(s.timeout / time.Millisecond)); err != nil {
			return errors.Wrap(err, "write statement timeout")
		}
	}
	if c.behavior.ScrollableCursor {
		flags := int32(0)
		if s.scrollable {
			flags = cursorFlagScrollable
		}
		if err = c.enc.WriteInt32(flags); err != nil {
			return errors.Wrap(err, "write cursor flags")
		}
	}
	return
}

// readSingletonLocked consumes the op_execute2 reply: an op_sql_response
// carrying the procedure's output row, then the closing op_response. A
// server that skips the row record is tolerated with a warning, since the
// execute itself succeeded.
func (s *Statement) readSingletonLocked() (out RowValue, err error) {
	c := s.att.conn
	if err = c.flushLocked(); err != nil {
		return
	}
	if err = c.drainDeferredLocked(); err != nil {
		return
	}
	op, err := c.readOperationLocked()
	if err != nil {
		return
	}
	switch op {
	case protocol.OpSQLResponse:
		var sr *protocol.SQLResponse
		if sr, err = protocol.ReadSQLResponse(c.dec); err != nil {
			return
		}
		if sr.Count > 0 {
			if out, err = s.fields.DecodeRow(c.dec); err != nil {
				return
			}
		}
		_, err = c.readGenericResponseLocked()
	case protocol.OpResponse:
		log.WithField("handle", s.handle).Warn("server omitted sql response record for singleton execute")
		_, err = protocol.ReadGenericResponse(c.dec, c.encoding)
	default:
		err = errors.Wrapf(protocol.ErrUnexpectedOperation, "singleton execute reply %d", op)
		return
	}
	if derr := c.q.takeError(); derr != nil {
		err = derr
	}
	return
}

// Fetch retrieves up to n rows from the open cursor. eof reports forward
// exhaustion; once the cursor is past the last row, further forward
// fetches return no rows without touching the wire. op may be nil when
// cancellation is not needed.
func (s *Statement) Fetch(n int32, op *Operation) (rows []RowValue, eof bool, err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		err = s.listeners.notify(errors.WithStack(ErrInvalidFetchSize))
		return
	}
	if s.state != StmtCursorOpen {
		err = s.listeners.notify(errors.WithStack(ErrCursorNotOpen))
		return
	}
	// Only the after-last boundary answers a forward fetch locally. A
	// cursor left before the first row still has every row ahead of it.
	if s.boundary == boundaryAfterLast {
		return nil, true, nil
	}
	if op != nil {
		if err = op.begin(); err != nil {
			c.q.reset()
			err = s.listeners.notify(err)
			return
		}
		defer op.end()
	}

	if err = c.enc.WriteInt32(protocol.OpFetch); err != nil {
		err = s.failLocked(errors.Wrap(err, "write op_fetch"))
		return
	}
	if err = s.writeFetchTailLocked(n); err != nil {
		err = s.failLocked(err)
		return
	}
	rows, err = s.readFetchRowsLocked(false)
	if err != nil {
		err = s.failLocked(err)
		return
	}
	eof = s.boundary == boundaryAfterLast
	return
}

// FetchScroll retrieves rows from a scrollable cursor: up to n rows
// starting at the position described by fetchType (protocol.Fetch*) and
// position. op may be nil when cancellation is not needed.
func (s *Statement) FetchScroll(fetchType, position, n int32, op *Operation) (rows []RowValue, err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.behavior.ScrollableCursor || !s.scrollable {
		err = s.listeners.notify(errors.WithStack(ErrCursorFlagNotSupported))
		return
	}
	if n <= 0 {
		err = s.listeners.notify(errors.WithStack(ErrInvalidFetchSize))
		return
	}
	if s.state != StmtCursorOpen {
		err = s.listeners.notify(errors.WithStack(ErrCursorNotOpen))
		return
	}
	if op != nil {
		if err = op.begin(); err != nil {
			c.q.reset()
			err = s.listeners.notify(err)
			return
		}
		defer op.end()
	}

	if err = c.enc.WriteInt32(protocol.OpFetchScroll); err != nil {
		err = s.failLocked(errors.Wrap(err, "write op_fetch_scroll"))
		return
	}
	if err = s.writeFetchTailLocked(n); err != nil {
		err = s.failLocked(err)
		return
	}
	if err = c.enc.WriteInt32(fetchType); err != nil {
		err = s.failLocked(errors.Wrap(err, "write fetch type"))
		return
	}
	if err = c.enc.WriteInt32(position); err != nil {
		err = s.failLocked(errors.Wrap(err, "write fetch position"))
		return
	}
	rows, err = s.readFetchRowsLocked(fetchType == protocol.FetchPrior)
	if err != nil {
		err = s.failLocked(err)
	}
	return
}

func (s *Statement) writeFetchTailLocked(n int32) (err error) {
	c := s.att.conn
	if err = c.enc.WriteInt32(s.handle); err != nil {
		return errors.Wrap(err, "write statement handle")
	}
	if err = c.enc.WriteBuffer(s.fields.BLR()); err != nil {
		return errors.Wrap(err, "write fetch blr")
	}
	if err = c.enc.WriteInt32(0); err != nil {
		return errors.Wrap(err, "write fetch message number")
	}
	if err = c.enc.WriteInt32(n); err != nil {
		return errors.Wrap(err, "write fetch count")
	}
	return
}

// readFetchRowsLocked consumes op_fetch_response records until the batch
// ends: one record per row, closed by a count of zero. Status 100 latches
// the boundary the fetch ran off: before-first for a backward fetch,
// after-last otherwise. Any fetch repositions the cursor, so the latch is
// cleared on entry.
func (s *Statement) readFetchRowsLocked(backward bool) (rows []RowValue, err error) {
	c := s.att.conn
	s.boundary = boundaryNone
	if err = c.flushLocked(); err != nil {
		return
	}
	if err = c.drainDeferredLocked(); err != nil {
		return
	}
	defer func() {
		if derr := c.q.takeError(); derr != nil {
			err = derr
		}
	}()
	for {
		var op int32
		if op, err = c.readOperationLocked(); err != nil {
			return
		}
		switch op {
		case protocol.OpFetchResponse:
			var fr *protocol.FetchResponse
			if fr, err = protocol.ReadFetchResponse(c.dec); err != nil {
				return
			}
			if fr.Status == protocol.FetchStatusNoMoreRows {
				if backward {
					s.boundary = boundaryBeforeFirst
				} else {
					s.boundary = boundaryAfterLast
				}
				return
			}
			if fr.Count == 0 {
				return
			}
			var row RowValue
			if row, err = s.fields.DecodeRow(c.dec); err != nil {
				return
			}
			if s.rowListener != nil {
				s.rowListener.Row(row)
			}
			rows = append(rows, row)
		case protocol.OpResponse:
			// A fetch that fails server-side answers with a status vector.
			if _, err = protocol.ReadGenericResponse(c.dec, c.encoding); err == nil {
				err = errors.Wrap(protocol.ErrUnexpectedOperation, "op_response without status during fetch")
			}
			return
		default:
			err = errors.Wrapf(protocol.ErrUnexpectedOperation, "fetch reply %d", op)
			return
		}
	}
}

// SetCursorName names the open cursor for positioned updates and deletes.
func (s *Statement) SetCursorName(name string) (err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.state == StmtClosed || s.state == StmtNew || s.state == StmtError {
		return s.listeners.notify(errors.WithStack(ErrStatementClosed))
	}
	if err = c.enc.WriteInt32(protocol.OpSetCursor); err != nil {
		return s.failLocked(errors.Wrap(err, "write op_set_cursor"))
	}
	if err = c.enc.WriteInt32(s.handle); err != nil {
		return s.failLocked(errors.Wrap(err, "write statement handle"))
	}
	// The cursor name travels as a counted string with an explicit NUL.
	nameBytes, err := c.encoding.EncodeString(name)
	if err != nil {
		return s.listeners.notify(errors.Wrap(err, "encode cursor name"))
	}
	if err = c.enc.WriteBuffer(append(nameBytes, 0)); err != nil {
		return s.failLocked(errors.Wrap(err, "write cursor name"))
	}
	if err = c.enc.WriteInt32(0); err != nil {
		return s.failLocked(errors.Wrap(err, "write cursor type"))
	}
	if _, err = c.opResponseLocked(); err != nil {
		return s.failLocked(err)
	}
	s.cursorName = name
	return
}

// CursorName returns the name set by SetCursorName.
func (s *Statement) CursorName() string {
	s.att.conn.mu.Lock()
	defer s.att.conn.mu.Unlock()
	return s.cursorName
}

// freeLocked issues op_free_statement. On lazy-send connections the
// request is pipelined; the handle state transitions immediately and the
// response settles at the next sync point.
func (s *Statement) freeLocked(action int32) (err error) {
	c := s.att.conn
	if err = c.enc.WriteInt32(protocol.OpFreeStmt); err != nil {
		return errors.Wrap(err, "write op_free_statement")
	}
	if err = c.enc.WriteInt32(s.handle); err != nil {
		return errors.Wrap(err, "write statement handle")
	}
	if err = c.enc.WriteInt32(action); err != nil {
		return errors.Wrap(err, "write free action")
	}
	if c.lazy {
		c.enqueueDeferredLocked("free statement", func(_ *protocol.GenericResponse, rerr error) error {
			return rerr
		})
		return
	}
	_, err = c.opResponseLocked()
	return
}

func (s *Statement) closeCursorLocked() (err error) {
	if err = s.freeLocked(protocol.DsqlClose); err != nil {
		return
	}
	s.state = StmtPrepared
	s.boundary = boundaryNone
	return
}

// CloseCursor releases the open cursor, keeping the prepared statement.
func (s *Statement) CloseCursor() (err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.state != StmtCursorOpen {
		return s.listeners.notify(errors.WithStack(ErrCursorNotOpen))
	}
	return s.listeners.notify(s.closeCursorLocked())
}

// Unprepare discards the compiled statement, keeping the allocated
// handle.
func (s *Statement) Unprepare() (err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	switch s.state {
	case StmtClosed, StmtNew, StmtError:
		return s.listeners.notify(errors.WithStack(ErrStatementClosed))
	case StmtCursorOpen:
		if err = s.closeCursorLocked(); err != nil {
			return s.failLocked(err)
		}
	}
	if err = s.freeLocked(protocol.DsqlUnprepare); err != nil {
		return s.failLocked(err)
	}
	s.state = StmtAllocated
	s.fields, s.params = nil, nil
	s.stmtType = protocol.StmtTypeNone
	return
}

// Close drops the statement handle. Idempotent.
func (s *Statement) Close() (err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.state == StmtClosed {
		return
	}
	err = s.freeLocked(protocol.DsqlDrop)
	s.state = StmtClosed
	s.fields, s.params = nil, nil
	return s.listeners.notify(err)
}

// RecordCounts are the per-verb affected-row counts of the last execute.
type RecordCounts struct {
	Selected int64
	Inserted int64
	Updated  int64
	Deleted  int64
}

// Affected returns the rows changed by data modification.
func (rc RecordCounts) Affected() int64 {
	return rc.Inserted + rc.Updated + rc.Deleted
}

// RecordCounts queries the affected-row counts of the last execute.
func (s *Statement) RecordCounts() (rc RecordCounts, err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.state == StmtClosed || s.state == StmtNew || s.state == StmtError {
		err = s.listeners.notify(errors.WithStack(ErrStatementClosed))
		return
	}
	data, err := c.infoExchangeLocked(protocol.OpInfoSQL, s.handle,
		[]byte{protocol.InfoSQLRecords, infoEnd}, stmtInfoBufLen)
	if err != nil {
		err = s.failLocked(err)
		return
	}
	res, err := ParseInfo(data)
	if err != nil {
		err = s.listeners.notify(err)
		return
	}
	records, ok := res.Find(protocol.InfoSQLRecords)
	if !ok {
		return
	}
	inner, err := ParseInfo(records.Value)
	if err != nil {
		err = s.listeners.notify(err)
		return
	}
	rc.Selected = inner.Int(protocol.InfoReqSelectCount, 0)
	rc.Inserted = inner.Int(protocol.InfoReqInsertCount, 0)
	rc.Updated = inner.Int(protocol.InfoReqUpdateCount, 0)
	rc.Deleted = inner.Int(protocol.InfoReqDeleteCount, 0)
	return
}

// Plan returns the server's access plan for the prepared statement.
func (s *Statement) Plan() (plan string, err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.state == StmtClosed || s.state == StmtNew || s.state == StmtAllocated || s.state == StmtError {
		err = s.listeners.notify(errors.WithStack(ErrStatementNotPrepared))
		return
	}
	data, err := c.infoExchangeLocked(protocol.OpInfoSQL, s.handle,
		[]byte{protocol.InfoSQLGetPlan, infoEnd}, prepareInfoBufLen)
	if err != nil {
		err = s.failLocked(err)
		return
	}
	res, err := ParseInfo(data)
	if err != nil {
		err = s.listeners.notify(err)
		return
	}
	if item, ok := res.Find(protocol.InfoSQLGetPlan); ok {
		plan = strings.TrimPrefix(string(item.Value), "\n")
	}
	return
}
