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

// Protocol-usage errors raised locally, before any bytes are written.
var (
	// ErrNotConnected indicates an operation on a connection that was
	// never established or already torn down.
	ErrNotConnected = errors.New("connection not established")
	// ErrAlreadyAttached indicates attach on an attached handle.
	ErrAlreadyAttached = errors.New("already attached to database")
	// ErrNotAttached indicates an operation requiring an attachment.
	ErrNotAttached = errors.New("not attached to database")
	// ErrTransactionNotActive indicates an operation on a completed
	// transaction.
	ErrTransactionNotActive = errors.New("transaction not active")
	// ErrStatementClosed indicates an operation on a closed or errored
	// statement.
	ErrStatementClosed = errors.New("statement closed")
	// ErrStatementNotPrepared indicates execute before prepare.
	ErrStatementNotPrepared = errors.New("statement not prepared")
	// ErrCursorNotOpen indicates fetch without an open cursor.
	ErrCursorNotOpen = errors.New("statement has no open cursor")
	// ErrCursorFlagNotSupported indicates a scrollable-cursor request on
	// a protocol version without scroll support.
	ErrCursorFlagNotSupported = errors.New("scrollable cursors not supported by negotiated protocol")
	// ErrInvalidFetchSize indicates fetchRows with a non-positive count.
	ErrInvalidFetchSize = errors.New("fetch size must be positive")
	// ErrParameterMismatch indicates an execute with a parameter row not
	// matching the prepared descriptor.
	ErrParameterMismatch = errors.New("parameter row does not match prepared descriptor")
	// ErrBlobClosed indicates segment I/O on a closed blob.
	ErrBlobClosed = errors.New("blob closed")
	// ErrInvalidSegmentSize indicates getSegment with a non-positive size.
	ErrInvalidSegmentSize = errors.New("segment size must be positive")
	// ErrSegmentWriteNotSupported indicates putSegment on a read blob.
	ErrSegmentWriteNotSupported = errors.New("segment write on input blob")
	// ErrOperationCancelled indicates a registered operation was
	// cancelled before or during its wire exchange.
	ErrOperationCancelled = errors.New("operation cancelled")
	// ErrBatchNotSupported indicates batch execution on a protocol
	// version without the op_batch family.
	ErrBatchNotSupported = errors.New("batch execution not supported by negotiated protocol")
	// ErrEventChannelClosed indicates event queueing on a torn-down
	// async channel.
	ErrEventChannelClosed = errors.New("event channel closed")
)

// isServerError distinguishes a server-reported status vector from a
// transport failure. Server errors leave the owning state machine usable;
// transport failures drop it to its error state.
func isServerError(err error) bool {
	var serverErr *protocol.Error
	return errors.As(err, &serverErr)
}
