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
	"bytes"

	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/protocol"
	"github.com/fbsql/fbsql/wire"
)

// BatchCompletion is the per-batch result record: how many rows the
// server processed and what happened to each.
type BatchCompletion struct {
	// Processed is the number of batch elements the server consumed.
	Processed int32
	// UpdateCounts holds a per-element affected-row count when the batch
	// was created with element update counts enabled.
	UpdateCounts []int32
	// Errors maps element indexes to their status vectors, up to the
	// configured detailed-error cap.
	Errors map[int32]*protocol.Error
	// FailedElements lists elements that failed beyond the detailed cap.
	FailedElements []int32
}

// Ok reports whether every element executed cleanly.
func (bc *BatchCompletion) Ok() bool {
	return len(bc.Errors) == 0 && len(bc.FailedElements) == 0
}

// wireSize is the aligned on-wire length of one message of this
// descriptor, declared lengths taken at face value.
func (rd RowDescriptor) wireSize() (n int32) {
	for i := range rd {
		l := rd[i].wireValueLength()
		if rd[i].SQLType == protocol.SQLTypeVarying {
			l += 4
		}
		n += int32(l) + int32(wire.Pad4(l)) + 4
	}
	return
}

func batchPb(cfg BatchConfig) []byte {
	pb := NewParamBuffer(protocol.BatchVersion1)
	if cfg.ContinueOnError {
		pb.AddInt32(protocol.BatchTagMultiError, 1)
	}
	if cfg.ElementUpdateCounts {
		pb.AddInt32(protocol.BatchTagRecordCounts, 1)
	}
	if cfg.DetailedErrors > 0 {
		pb.AddInt32(protocol.BatchTagDetailedErrors, int32(cfg.DetailedErrors))
	}
	if cfg.BufferSize > 0 {
		pb.AddInt32(protocol.BatchTagBufferBytesSize, int32(cfg.BufferSize))
	}
	return pb.Bytes()
}

// ExecuteBatch runs the prepared statement once per parameter row in a
// single wire conversation: batch create and the message upload are
// pipelined, only the execute waits for the completion record.
func (s *Statement) ExecuteBatch(tx *Transaction, rows []RowValue, op *Operation) (bc *BatchCompletion, err error) {
	c := s.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.behavior.BatchExec {
		err = s.listeners.notify(errors.WithStack(ErrBatchNotSupported))
		return
	}
	switch s.state {
	case StmtClosed:
		err = s.listeners.notify(errors.WithStack(ErrStatementClosed))
		return
	case StmtNew, StmtAllocated:
		err = s.listeners.notify(errors.WithStack(ErrStatementNotPrepared))
		return
	}
	if tx.state != TxActive {
		err = s.listeners.notify(errors.WithStack(ErrTransactionNotActive))
		return
	}
	for _, row := range rows {
		if len(row) != len(s.params) {
			err = s.listeners.notify(errors.WithStack(ErrParameterMismatch))
			return
		}
	}
	if op != nil {
		if err = op.begin(); err != nil {
			err = s.listeners.notify(err)
			return
		}
		defer op.end()
	}

	if err = s.writeBatchCreateLocked(); err != nil {
		err = s.listeners.notify(err)
		return
	}
	c.enqueueDeferredLocked("batch create", func(_ *protocol.GenericResponse, rerr error) error {
		return rerr
	})
	if len(rows) > 0 {
		if err = s.writeBatchMsgLocked(rows); err != nil {
			err = s.listeners.notify(err)
			return
		}
		c.enqueueDeferredLocked("batch message", func(_ *protocol.GenericResponse, rerr error) error {
			return rerr
		})
	}

	if err = c.enc.WriteInt32(protocol.OpBatchExec); err != nil {
		err = s.listeners.notify(errors.Wrap(err, "write op_batch_exec"))
		return
	}
	if err = c.enc.WriteInt32(s.handle); err != nil {
		err = s.listeners.notify(errors.Wrap(err, "write statement handle"))
		return
	}
	if err = c.enc.WriteInt32(tx.handle); err != nil {
		err = s.listeners.notify(errors.Wrap(err, "write transaction handle"))
		return
	}

	bc, err = s.readBatchCompletionLocked()
	if err != nil {
		err = s.listeners.notify(err)
		return
	}

	// Release the server-side batch; its response settles at the next
	// sync point.
	if err = c.enc.WriteInt32(protocol.OpBatchRls); err != nil {
		err = s.listeners.notify(errors.Wrap(err, "write op_batch_rls"))
		return
	}
	if err = c.enc.WriteInt32(s.handle); err != nil {
		err = s.listeners.notify(errors.Wrap(err, "write statement handle"))
		return
	}
	c.enqueueDeferredLocked("batch release", func(_ *protocol.GenericResponse, rerr error) error {
		return rerr
	})
	return
}

func (s *Statement) writeBatchCreateLocked() (err error) {
	c := s.att.conn
	if err = c.enc.WriteInt32(protocol.OpBatchCreate); err != nil {
		return errors.Wrap(err, "write op_batch_create")
	}
	if err = c.enc.WriteInt32(s.handle); err != nil {
		return errors.Wrap(err, "write statement handle")
	}
	if err = c.enc.WriteBuffer(s.params.BLR()); err != nil {
		return errors.Wrap(err, "write batch blr")
	}
	if err = c.enc.WriteInt32(s.params.wireSize()); err != nil {
		return errors.Wrap(err, "write batch message length")
	}
	if err = c.enc.WriteBuffer(batchPb(c.cfg.Batch)); err != nil {
		return errors.Wrap(err, "write batch parameter block")
	}
	return
}

func (s *Statement) writeBatchMsgLocked(rows []RowValue) (err error) {
	c := s.att.conn
	var buf bytes.Buffer
	benc := wire.NewEncoder(&buf)
	for _, row := range rows {
		if err = s.params.EncodeRow(benc, row); err != nil {
			return errors.Wrap(err, "encode batch row")
		}
	}
	if err = c.enc.WriteInt32(protocol.OpBatchMsg); err != nil {
		return errors.Wrap(err, "write op_batch_msg")
	}
	if err = c.enc.WriteInt32(s.handle); err != nil {
		return errors.Wrap(err, "write statement handle")
	}
	if err = c.enc.WriteInt32(int32(len(rows))); err != nil {
		return errors.Wrap(err, "write batch row count")
	}
	if err = c.enc.WriteBuffer(buf.Bytes()); err != nil {
		return errors.Wrap(err, "write batch rows")
	}
	return
}

// readBatchCompletionLocked syncs the pipeline and decodes the
// op_batch_cs completion record.
func (s *Statement) readBatchCompletionLocked() (bc *BatchCompletion, err error) {
	c := s.att.conn
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

	op, err := c.readOperationLocked()
	if err != nil {
		return
	}
	switch op {
	case protocol.OpBatchCS:
	case protocol.OpResponse:
		if _, err = protocol.ReadGenericResponse(c.dec, c.encoding); err == nil {
			err = errors.Wrap(protocol.ErrUnexpectedOperation, "op_response without status for batch execute")
		}
		return
	default:
		err = errors.Wrapf(protocol.ErrUnexpectedOperation, "batch execute reply %d", op)
		return
	}

	bc = &BatchCompletion{}
	if _, err = c.dec.ReadInt32(); err != nil { // statement handle echo
		return
	}
	if bc.Processed, err = c.dec.ReadInt32(); err != nil {
		return
	}
	var updates, vectors, failures int32
	if updates, err = c.dec.ReadInt32(); err != nil {
		return
	}
	if vectors, err = c.dec.ReadInt32(); err != nil {
		return
	}
	if failures, err = c.dec.ReadInt32(); err != nil {
		return
	}
	for i := int32(0); i < updates; i++ {
		var n int32
		if n, err = c.dec.ReadInt32(); err != nil {
			return
		}
		bc.UpdateCounts = append(bc.UpdateCounts, n)
	}
	if vectors > 0 {
		bc.Errors = map[int32]*protocol.Error{}
	}
	for i := int32(0); i < vectors; i++ {
		var elem int32
		if elem, err = c.dec.ReadInt32(); err != nil {
			return
		}
		var failure, warning *protocol.Error
		if failure, warning, err = protocol.DecodeStatusVector(c.dec, c.encoding); err != nil {
			return
		}
		if failure == nil {
			failure = warning
		}
		bc.Errors[elem] = failure
	}
	for i := int32(0); i < failures; i++ {
		var elem int32
		if elem, err = c.dec.ReadInt32(); err != nil {
			return
		}
		bc.FailedElements = append(bc.FailedElements, elem)
	}
	return
}
