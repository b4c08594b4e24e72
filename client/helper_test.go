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
	"testing"
	"time"

	mock_conn "github.com/jordwest/mock-conn"

	"github.com/fbsql/fbsql/protocol"
	"github.com/fbsql/fbsql/wire"
)

// scriptedPeer plays the server on the far end of an in-memory socket.
// Its script runs in a goroutine because the underlying pipe is
// unbuffered; helpers report mismatches through t.Errorf and keep
// consuming, so the stream stays aligned for the rest of the script.
type scriptedPeer struct {
	t        *testing.T
	enc      *wire.Encoder
	dec      *wire.Decoder
	encoding *wire.Encoding
	done     chan struct{}
}

// newScriptedConn returns a protocol-10 connection wired to a scripted
// peer. Tests flip version, behavior and lazy directly to simulate any
// negotiated descriptor.
func newScriptedConn(t *testing.T) (c *Connection, p *scriptedPeer) {
	t.Helper()
	mc := mock_conn.NewConn()
	c, err := newConnectionOn(mc.Client, Config{
		Address:  "testhost",
		Database: "employee",
		User:     "sysdba",
		Password: "masterkey",
	})
	if err != nil {
		t.Fatalf("connection: %v", err)
	}
	enc, err := wire.LookupEncoding("UTF8")
	if err != nil {
		t.Fatalf("encoding: %v", err)
	}
	p = &scriptedPeer{
		t:        t,
		enc:      wire.NewEncoder(mc.Server),
		dec:      wire.NewDecoder(mc.Server),
		encoding: enc,
		done:     make(chan struct{}),
	}
	return
}

func (p *scriptedPeer) script(fn func()) {
	go func() {
		defer close(p.done)
		fn()
	}()
}

func (p *scriptedPeer) wait() {
	p.t.Helper()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		p.t.Error("scripted peer did not finish")
	}
}

func (p *scriptedPeer) readInt32() int32 {
	v, err := p.dec.ReadInt32()
	if err != nil {
		p.t.Errorf("peer read int32: %v", err)
	}
	return v
}

func (p *scriptedPeer) readInt64() int64 {
	v, err := p.dec.ReadInt64()
	if err != nil {
		p.t.Errorf("peer read int64: %v", err)
	}
	return v
}

func (p *scriptedPeer) readBuffer() []byte {
	b, err := p.dec.ReadBuffer()
	if err != nil {
		p.t.Errorf("peer read buffer: %v", err)
	}
	return b
}

func (p *scriptedPeer) readString() string {
	s, err := p.dec.ReadString(p.encoding)
	if err != nil {
		p.t.Errorf("peer read string: %v", err)
	}
	return s
}

func (p *scriptedPeer) expectInt32(want int32, what string) {
	if got := p.readInt32(); got != want {
		p.t.Errorf("peer %s: got %d, want %d", what, got, want)
	}
}

func (p *scriptedPeer) expectOp(want int32) {
	p.expectInt32(want, "operation")
}

func (p *scriptedPeer) expectBuffer(want []byte, what string) {
	if got := p.readBuffer(); !bytes.Equal(got, want) {
		p.t.Errorf("peer %s: got %x, want %x", what, got, want)
	}
}

func (p *scriptedPeer) sendInt32(v int32) {
	if err := p.enc.WriteInt32(v); err != nil {
		p.t.Errorf("peer write int32: %v", err)
	}
}

func (p *scriptedPeer) sendInt64(v int64) {
	if err := p.enc.WriteInt64(v); err != nil {
		p.t.Errorf("peer write int64: %v", err)
	}
}

func (p *scriptedPeer) sendBuffer(b []byte) {
	if err := p.enc.WriteBuffer(b); err != nil {
		p.t.Errorf("peer write buffer: %v", err)
	}
}

func (p *scriptedPeer) sendRaw(b []byte) {
	if err := p.enc.WriteRaw(b); err != nil {
		p.t.Errorf("peer write raw: %v", err)
	}
}

func (p *scriptedPeer) sendOKVector() {
	p.sendInt32(protocol.ArgGds)
	p.sendInt32(0)
	p.sendInt32(protocol.ArgEnd)
}

// sendResponse emits a clean op_response record.
func (p *scriptedPeer) sendResponse(handle int32, blobID int64, data []byte) {
	p.sendInt32(protocol.OpResponse)
	p.sendInt32(handle)
	p.sendInt64(blobID)
	p.sendBuffer(data)
	p.sendOKVector()
}

// sendErrorResponse emits an op_response whose status vector carries the
// given gds code.
func (p *scriptedPeer) sendErrorResponse(code int32, msg string) {
	p.sendInt32(protocol.OpResponse)
	p.sendInt32(0)
	p.sendInt64(0)
	p.sendBuffer(nil)
	p.sendInt32(protocol.ArgGds)
	p.sendInt32(code)
	if msg != "" {
		p.sendInt32(protocol.ArgInterpreted)
		if err := p.enc.WriteString(msg, p.encoding); err != nil {
			p.t.Errorf("peer write error message: %v", err)
		}
	}
	p.sendInt32(protocol.ArgEnd)
}

// sendWarningResponse emits a clean op_response whose vector also carries
// a warning code.
func (p *scriptedPeer) sendWarningResponse(handle, warningCode int32) {
	p.sendInt32(protocol.OpResponse)
	p.sendInt32(handle)
	p.sendInt64(0)
	p.sendBuffer(nil)
	p.sendInt32(protocol.ArgGds)
	p.sendInt32(0)
	p.sendInt32(protocol.ArgWarning)
	p.sendInt32(warningCode)
	p.sendInt32(protocol.ArgEnd)
}

// testAttachment fabricates a live attachment over c, as if attach had
// already succeeded with the given handle.
func testAttachment(c *Connection) *Attachment {
	return &Attachment{conn: c, handle: 17, attached: true}
}

func activeTransaction(a *Attachment, handle int32) *Transaction {
	return &Transaction{att: a, handle: handle, state: TxActive}
}

// infoBuf builds info-response payloads clumplet by clumplet.
type infoBuf struct {
	b []byte
}

func (ib *infoBuf) tag(t byte) *infoBuf {
	ib.b = append(ib.b, t)
	return ib
}

func (ib *infoBuf) item(t byte, v []byte) *infoBuf {
	ib.b = append(ib.b, t, byte(len(v)), byte(len(v)>>8))
	ib.b = append(ib.b, v...)
	return ib
}

func (ib *infoBuf) num(t byte, n int64, width int) *infoBuf {
	return ib.item(t, wire.EncodeVaxInteger(n, width))
}

func (ib *infoBuf) str(t byte, s string) *infoBuf {
	return ib.item(t, []byte(s))
}

func (ib *infoBuf) bytes() []byte {
	return ib.b
}

// describeVar appends one variable of a describe section.
func (ib *infoBuf) describeVar(seq int, sqlType int, nullable bool, length int, alias string) *infoBuf {
	t := sqlType
	if nullable {
		t |= 1
	}
	return ib.
		num(protocol.InfoSQLSqldaSeq, int64(seq), 2).
		num(protocol.InfoSQLType, int64(t), 2).
		num(protocol.InfoSQLSubType, 0, 2).
		num(protocol.InfoSQLScale, 0, 2).
		num(protocol.InfoSQLLength, int64(length), 2).
		str(protocol.InfoSQLField, alias).
		str(protocol.InfoSQLRelation, "RDB$DATABASE").
		str(protocol.InfoSQLOwner, "SYSDBA").
		str(protocol.InfoSQLAlias, alias).
		tag(protocol.InfoSQLDescribeEnd)
}

// describeSection opens a select or bind section with its variable
// count. The count value is bare: a 2-byte length then the number, with
// no tag of its own.
func (ib *infoBuf) describeSection(section byte, count int) *infoBuf {
	ib.b = append(ib.b, section, protocol.InfoSQLDescribeVars, 2, 0)
	ib.b = append(ib.b, wire.EncodeVaxInteger(int64(count), 2)...)
	return ib
}
