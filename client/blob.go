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

	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/protocol"
)

// Segment-read completion markers in the op_get_segment response handle.
const (
	blobSegmentFragment = 1
	blobSegmentEOF      = 2
)

// standardBlobInfoItems is the snapshot pipelined with a delayed open.
var standardBlobInfoItems = []byte{
	protocol.InfoBlobNumSegments,
	protocol.InfoBlobMaxSegment,
	protocol.InfoBlobTotalLength,
	protocol.InfoBlobType,
	infoEnd,
}

// Blob is one open blob handle: readable when opened from an existing
// blob id, writable when freshly created.
type Blob struct {
	att *Attachment
	tx  *Transaction

	id       int64
	handle   int32
	readable bool
	closed   bool
	eof      bool

	// pending marks a delayed open whose responses are still queued;
	// cachedInfo is filled by the info request pipelined behind it.
	pending    bool
	cachedInfo []byte

	listeners exceptionListeners
}

// OpenBlob opens the blob with the given id for reading. On lazy-send
// connections the open and an info snapshot are pipelined; no round trip
// happens until the first segment is needed.
func (t *Transaction) OpenBlob(id int64, bpb []byte) (b *Blob, err error) {
	c := t.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.state != TxActive {
		err = t.listeners.notify(errors.WithStack(ErrTransactionNotActive))
		return
	}
	b = &Blob{att: t.att, tx: t, id: id, handle: invalidObjectHandle, readable: true}

	if err = b.writeOpenLocked(protocol.OpOpenBlob2, bpb, id); err != nil {
		return nil, t.listeners.notify(err)
	}

	if c.behavior.DeferredBlobOpen && c.lazy {
		bl := b
		c.enqueueDeferredLocked("open blob", func(resp *protocol.GenericResponse, rerr error) error {
			if rerr != nil {
				bl.closed = true
				return rerr
			}
			bl.handle = resp.ObjectHandle
			return nil
		})
		// Snapshot the blob's shape in the same flight; Info then costs
		// nothing extra.
		if err = b.writeInfoRequestLocked(standardBlobInfoItems, stmtInfoBufLen); err != nil {
			return nil, t.listeners.notify(err)
		}
		c.enqueueDeferredLocked("blob info", func(resp *protocol.GenericResponse, rerr error) error {
			if rerr != nil {
				return rerr
			}
			bl.cachedInfo = resp.Data
			return nil
		})
		b.pending = true
		return
	}

	resp, err := c.opResponseLocked()
	if err != nil {
		return nil, t.listeners.notify(err)
	}
	b.handle = resp.ObjectHandle
	return
}

// CreateBlob creates a new blob for writing. Its id is assigned by the
// server and read back from the create response.
func (t *Transaction) CreateBlob(bpb []byte) (b *Blob, err error) {
	c := t.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.state != TxActive {
		err = t.listeners.notify(errors.WithStack(ErrTransactionNotActive))
		return
	}
	b = &Blob{att: t.att, tx: t}
	if err = b.writeOpenLocked(protocol.OpCreateBlob2, bpb, 0); err != nil {
		return nil, t.listeners.notify(err)
	}
	resp, err := c.opResponseLocked()
	if err != nil {
		return nil, t.listeners.notify(err)
	}
	b.handle = resp.ObjectHandle
	b.id = resp.BlobID
	return
}

func (b *Blob) writeOpenLocked(op int32, bpb []byte, id int64) (err error) {
	c := b.att.conn
	if err = c.enc.WriteInt32(op); err != nil {
		return errors.Wrap(err, "write blob open request")
	}
	if err = c.enc.WriteBuffer(bpb); err != nil {
		return errors.Wrap(err, "write blob parameter block")
	}
	if err = c.enc.WriteInt32(b.tx.handle); err != nil {
		return errors.Wrap(err, "write transaction handle")
	}
	if err = c.enc.WriteInt64(id); err != nil {
		return errors.Wrap(err, "write blob id")
	}
	return
}

func (b *Blob) writeInfoRequestLocked(items []byte, bufferLength int32) (err error) {
	c := b.att.conn
	if err = c.enc.WriteInt32(protocol.OpInfoBlob); err != nil {
		return errors.Wrap(err, "write op_info_blob")
	}
	if err = c.enc.WriteInt32(b.handle); err != nil {
		return errors.Wrap(err, "write blob handle")
	}
	if err = c.enc.WriteInt32(0); err != nil {
		return errors.Wrap(err, "write info incarnation")
	}
	if err = c.enc.WriteBuffer(items); err != nil {
		return errors.Wrap(err, "write info items")
	}
	if err = c.enc.WriteInt32(bufferLength); err != nil {
		return errors.Wrap(err, "write info buffer length")
	}
	return
}

// settleLocked forces the delayed open (and its info snapshot) through
// before an operation that needs the real handle.
func (b *Blob) settleLocked() (err error) {
	if !b.pending {
		return
	}
	c := b.att.conn
	if err = c.flushLocked(); err != nil {
		return
	}
	if err = c.drainDeferredLocked(); err != nil {
		return
	}
	b.pending = false
	if derr := c.q.takeError(); derr != nil {
		return derr
	}
	if b.closed {
		return errors.WithStack(ErrBlobClosed)
	}
	return
}

// ID returns the blob id: the one opened for reads, the server-assigned
// one for writes.
func (b *Blob) ID() int64 {
	b.att.conn.mu.Lock()
	defer b.att.conn.mu.Unlock()
	return b.id
}

// EOF reports whether a reading blob is exhausted.
func (b *Blob) EOF() bool {
	b.att.conn.mu.Lock()
	defer b.att.conn.mu.Unlock()
	return b.eof
}

// AddExceptionListener registers an error observer on this blob.
func (b *Blob) AddExceptionListener(l ExceptionListener) {
	b.att.conn.mu.Lock()
	defer b.att.conn.mu.Unlock()
	b.listeners.add(l)
}

// GetSegment reads up to size bytes of segment data. The server batches
// whole segments into one reply; eof latches once the last segment is
// out.
func (b *Blob) GetSegment(size int32) (data []byte, eof bool, err error) {
	c := b.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.closed {
		err = b.listeners.notify(errors.WithStack(ErrBlobClosed))
		return
	}
	if !b.readable {
		err = b.listeners.notify(errors.WithStack(ErrSegmentWriteNotSupported))
		return
	}
	if size <= 0 {
		err = b.listeners.notify(errors.WithStack(ErrInvalidSegmentSize))
		return
	}
	if b.eof {
		return nil, true, nil
	}
	if err = b.settleLocked(); err != nil {
		err = b.listeners.notify(err)
		return
	}

	if err = c.enc.WriteInt32(protocol.OpGetSegment); err != nil {
		err = b.listeners.notify(errors.Wrap(err, "write op_get_segment"))
		return
	}
	if err = c.enc.WriteInt32(b.handle); err != nil {
		err = b.listeners.notify(errors.Wrap(err, "write blob handle"))
		return
	}
	if err = c.enc.WriteInt32(size); err != nil {
		err = b.listeners.notify(errors.Wrap(err, "write segment size"))
		return
	}
	if err = c.enc.WriteInt32(0); err != nil {
		err = b.listeners.notify(errors.Wrap(err, "write segment placeholder"))
		return
	}
	resp, err := c.opResponseLocked()
	if err != nil {
		err = b.listeners.notify(err)
		return
	}
	if resp.ObjectHandle == blobSegmentEOF {
		b.eof = true
		eof = true
	}
	if data, err = unpackSegments(resp.Data); err != nil {
		err = b.listeners.notify(err)
	}
	return
}

// unpackSegments strips the per-segment 2-byte length prefixes from a
// get_segment payload.
func unpackSegments(buf []byte) (out []byte, err error) {
	for i := 0; i < len(buf); {
		if i+2 > len(buf) {
			return nil, errors.Wrap(ErrMalformedInfo, "segment length truncated")
		}
		l := int(binary.LittleEndian.Uint16(buf[i:]))
		i += 2
		if i+l > len(buf) {
			return nil, errors.Wrap(ErrMalformedInfo, "segment data truncated")
		}
		out = append(out, buf[i:i+l]...)
		i += l
	}
	return
}

// PutSegment writes one segment to a created blob.
func (b *Blob) PutSegment(data []byte) (err error) {
	c := b.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.closed {
		return b.listeners.notify(errors.WithStack(ErrBlobClosed))
	}
	if b.readable {
		return b.listeners.notify(errors.WithStack(ErrSegmentWriteNotSupported))
	}
	if len(data) == 0 || len(data) > 0xFFFF {
		return b.listeners.notify(errors.WithStack(ErrInvalidSegmentSize))
	}
	if err = c.enc.WriteInt32(protocol.OpPutSegment); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write op_put_segment"))
	}
	if err = c.enc.WriteInt32(b.handle); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write blob handle"))
	}
	if err = c.enc.WriteInt32(int32(len(data))); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write segment length"))
	}
	if err = c.enc.WriteBuffer(data); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write segment data"))
	}
	_, err = c.opResponseLocked()
	return b.listeners.notify(err)
}

// BatchSegments writes several segments in one request, each already
// carrying its 2-byte length prefix on the wire.
func (b *Blob) BatchSegments(segments [][]byte) (err error) {
	c := b.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.closed {
		return b.listeners.notify(errors.WithStack(ErrBlobClosed))
	}
	if b.readable {
		return b.listeners.notify(errors.WithStack(ErrSegmentWriteNotSupported))
	}
	var payload []byte
	for _, seg := range segments {
		if len(seg) == 0 || len(seg) > 0xFFFF {
			return b.listeners.notify(errors.WithStack(ErrInvalidSegmentSize))
		}
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(seg)))
		payload = append(payload, l[:]...)
		payload = append(payload, seg...)
	}
	if err = c.enc.WriteInt32(protocol.OpBatchSegments); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write op_batch_segments"))
	}
	if err = c.enc.WriteInt32(b.handle); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write blob handle"))
	}
	if err = c.enc.WriteInt32(int32(len(payload))); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write batch length"))
	}
	if err = c.enc.WriteBuffer(payload); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write batch data"))
	}
	_, err = c.opResponseLocked()
	return b.listeners.notify(err)
}

// Seek repositions a reading stream blob. mode is one of the
// protocol.BlobSeek* values; the new absolute offset is returned.
func (b *Blob) Seek(mode, offset int32) (position int32, err error) {
	c := b.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.closed {
		err = b.listeners.notify(errors.WithStack(ErrBlobClosed))
		return
	}
	if !b.readable {
		err = b.listeners.notify(errors.WithStack(ErrSegmentWriteNotSupported))
		return
	}
	if err = b.settleLocked(); err != nil {
		err = b.listeners.notify(err)
		return
	}
	if err = c.enc.WriteInt32(protocol.OpSeekBlob); err != nil {
		err = b.listeners.notify(errors.Wrap(err, "write op_seek_blob"))
		return
	}
	if err = c.enc.WriteInt32(b.handle); err != nil {
		err = b.listeners.notify(errors.Wrap(err, "write blob handle"))
		return
	}
	if err = c.enc.WriteInt32(mode); err != nil {
		err = b.listeners.notify(errors.Wrap(err, "write seek mode"))
		return
	}
	if err = c.enc.WriteInt32(offset); err != nil {
		err = b.listeners.notify(errors.Wrap(err, "write seek offset"))
		return
	}
	resp, err := c.opResponseLocked()
	if err != nil {
		err = b.listeners.notify(err)
		return
	}
	b.eof = false
	position = resp.ObjectHandle
	return
}

// Info answers the given info items (standardBlobInfoItems when items is
// empty). A request fully covered by the pipelined snapshot is served
// from it without a wire exchange; one asking for anything beyond the
// snapshot goes to the server whole.
func (b *Blob) Info(items []byte) (res InfoResult, err error) {
	c := b.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.closed {
		err = b.listeners.notify(errors.WithStack(ErrBlobClosed))
		return
	}
	if len(items) == 0 {
		items = standardBlobInfoItems
	}
	if b.pending {
		if err = b.settleLocked(); err != nil {
			err = b.listeners.notify(err)
			return
		}
	}
	if b.cachedInfo != nil {
		var ok bool
		if res, ok, err = b.cachedMatch(items); ok || err != nil {
			return
		}
	}
	if err = b.writeInfoRequestLocked(items, stmtInfoBufLen); err != nil {
		err = b.listeners.notify(err)
		return
	}
	resp, err := c.opResponseLocked()
	if err != nil {
		err = b.listeners.notify(err)
		return
	}
	return ParseInfo(resp.Data)
}

// cachedMatch serves an info request from the pipelined snapshot, all or
// nothing: if any requested item is missing from the snapshot, the whole
// request falls through to the server.
func (b *Blob) cachedMatch(items []byte) (res InfoResult, ok bool, err error) {
	cached, err := ParseInfo(b.cachedInfo)
	if err != nil {
		return
	}
	for _, tag := range items {
		if tag == infoEnd {
			break
		}
		item, found := cached.Find(tag)
		if !found {
			return InfoResult{}, false, nil
		}
		res.Items = append(res.Items, item)
	}
	ok = true
	return
}

// Length returns the blob's total byte length from its info snapshot.
func (b *Blob) Length() (n int64, err error) {
	res, err := b.Info([]byte{protocol.InfoBlobTotalLength, infoEnd})
	if err != nil {
		return
	}
	return res.Int(protocol.InfoBlobTotalLength, 0), nil
}

// Close releases the blob handle. A created blob's contents become
// readable only after a successful Close.
func (b *Blob) Close() (err error) {
	c := b.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.closed {
		return
	}
	if err = b.settleLocked(); err != nil {
		b.closed = true
		return b.listeners.notify(err)
	}
	if err = c.enc.WriteInt32(protocol.OpCloseBlob); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write op_close_blob"))
	}
	if err = c.enc.WriteInt32(b.handle); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write blob handle"))
	}
	_, err = c.opResponseLocked()
	b.closed = true
	return b.listeners.notify(err)
}

// Cancel discards a created blob instead of closing it.
func (b *Blob) Cancel() (err error) {
	c := b.att.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.closed {
		return
	}
	if err = b.settleLocked(); err != nil {
		b.closed = true
		return b.listeners.notify(err)
	}
	if err = c.enc.WriteInt32(protocol.OpCancelBlob); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write op_cancel_blob"))
	}
	if err = c.enc.WriteInt32(b.handle); err != nil {
		return b.listeners.notify(errors.Wrap(err, "write blob handle"))
	}
	_, err = c.opResponseLocked()
	b.closed = true
	return b.listeners.notify(err)
}
