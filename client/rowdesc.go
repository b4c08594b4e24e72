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
	"math"

	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/protocol"
	"github.com/fbsql/fbsql/wire"
)

// FieldDescriptor describes one column or parameter of a prepared
// statement, as reported by op_info_sql.
type FieldDescriptor struct {
	// SQLType is the data type with the nullable bit already stripped.
	SQLType  int
	Nullable bool
	SubType  int
	Scale    int
	// Length is the declared byte length; the wire length differs for
	// most types (see ioLength).
	Length int

	Field    string
	Relation string
	Owner    string
	Alias    string
}

// RowDescriptor is the ordered field layout of one message.
type RowDescriptor []FieldDescriptor

// FieldValue is one transmitted field: the value slot plus the separate
// null indicator. Both are always on the wire, even for NULL.
type FieldValue struct {
	Null bool
	// Data is the raw value bytes with wire padding removed. For NULL
	// fields the slot still travels; its content is unspecified.
	Data []byte
}

// RowValue is one transmitted row.
type RowValue []FieldValue

// wireValueLength is the number of bytes the value slot occupies before
// padding. Varying returns -1: its slot is a counted buffer.
func (d *FieldDescriptor) wireValueLength() int {
	switch d.SQLType {
	case protocol.SQLTypeVarying:
		return -1
	case protocol.SQLTypeText:
		return d.Length
	case protocol.SQLTypeShort, protocol.SQLTypeLong, protocol.SQLTypeFloat,
		protocol.SQLTypeDate, protocol.SQLTypeTime:
		return 4
	case protocol.SQLTypeDouble, protocol.SQLTypeInt64, protocol.SQLTypeTimestamp,
		protocol.SQLTypeBlob, protocol.SQLTypeArray, protocol.SQLTypeQuad,
		protocol.SQLTypeDec16, protocol.SQLTypeTimeTz:
		return 8
	case protocol.SQLTypeInt128, protocol.SQLTypeDec34:
		return 16
	case protocol.SQLTypeTimestampTz:
		return 12
	case protocol.SQLTypeBoolean:
		return 1
	}
	return d.Length
}

func (d *FieldDescriptor) blr() (out []byte) {
	switch d.SQLType {
	case protocol.SQLTypeVarying:
		out = []byte{protocol.BlrVarying, byte(d.Length), byte(d.Length >> 8)}
	case protocol.SQLTypeText:
		out = []byte{protocol.BlrText, byte(d.Length), byte(d.Length >> 8)}
	case protocol.SQLTypeShort:
		out = []byte{protocol.BlrShort, byte(d.Scale)}
	case protocol.SQLTypeLong:
		out = []byte{protocol.BlrLong, byte(d.Scale)}
	case protocol.SQLTypeInt64:
		out = []byte{protocol.BlrInt64, byte(d.Scale)}
	case protocol.SQLTypeInt128:
		out = []byte{protocol.BlrInt128, byte(d.Scale)}
	case protocol.SQLTypeQuad:
		out = []byte{protocol.BlrQuad, byte(d.Scale)}
	case protocol.SQLTypeBlob, protocol.SQLTypeArray:
		out = []byte{protocol.BlrQuad, 0}
	case protocol.SQLTypeFloat:
		out = []byte{protocol.BlrFloat}
	case protocol.SQLTypeDouble:
		out = []byte{protocol.BlrDouble}
	case protocol.SQLTypeDate:
		out = []byte{protocol.BlrSQLDate}
	case protocol.SQLTypeTime:
		out = []byte{protocol.BlrSQLTime}
	case protocol.SQLTypeTimestamp:
		out = []byte{protocol.BlrTimestamp}
	case protocol.SQLTypeTimeTz:
		out = []byte{protocol.BlrTimeTz}
	case protocol.SQLTypeTimestampTz:
		out = []byte{protocol.BlrTimestampTz}
	case protocol.SQLTypeBoolean:
		out = []byte{protocol.BlrBool}
	case protocol.SQLTypeDec16:
		out = []byte{protocol.BlrDec16}
	case protocol.SQLTypeDec34:
		out = []byte{protocol.BlrDec34}
	default:
		out = []byte{protocol.BlrText, byte(d.Length), byte(d.Length >> 8)}
	}
	return
}

// BLR builds the message description for the whole row: one value slot
// plus one short null indicator per field.
func (rd RowDescriptor) BLR() []byte {
	n := len(rd) * 2
	out := []byte{
		protocol.BlrVersion5, protocol.BlrBegin,
		protocol.BlrMessage, 0, byte(n), byte(n >> 8),
	}
	for i := range rd {
		out = append(out, rd[i].blr()...)
		out = append(out, protocol.BlrShort, 0)
	}
	return append(out, protocol.BlrEnd, protocol.BlrEoc)
}

// EncodeRow writes one row in message format. The value slot is written
// for NULL fields too (zero-filled), so both slots always travel.
func (rd RowDescriptor) EncodeRow(enc *wire.Encoder, row RowValue) (err error) {
	if len(row) != len(rd) {
		return errors.Wrapf(ErrParameterMismatch, "have %d values, descriptor has %d", len(row), len(rd))
	}
	for i := range rd {
		d := &rd[i]
		v := row[i]
		data := v.Data
		if v.Null {
			data = nil
		}
		switch {
		case d.SQLType == protocol.SQLTypeVarying:
			if err = enc.WriteBuffer(data); err != nil {
				return
			}
		case d.SQLType == protocol.SQLTypeText:
			if err = enc.WritePaddedRaw(fitText(data, d.Length), 0x20); err != nil {
				return
			}
		default:
			l := d.wireValueLength()
			buf := make([]byte, l+wire.Pad4(l))
			copy(buf, data)
			if err = enc.WriteRaw(buf); err != nil {
				return
			}
		}
		ind := int32(0)
		if v.Null {
			ind = -1
		}
		if err = enc.WriteInt32(ind); err != nil {
			return
		}
	}
	return
}

// fitText pads or truncates to the declared CHAR length with spaces.
func fitText(b []byte, l int) []byte {
	if len(b) == l {
		return b
	}
	out := make([]byte, l)
	n := copy(out, b)
	for ; n < l; n++ {
		out[n] = 0x20
	}
	return out
}

// DecodeRow reads one row in message format.
func (rd RowDescriptor) DecodeRow(dec *wire.Decoder) (row RowValue, err error) {
	row = make(RowValue, len(rd))
	for i := range rd {
		d := &rd[i]
		var data []byte
		if d.SQLType == protocol.SQLTypeVarying {
			if data, err = dec.ReadBuffer(); err != nil {
				return nil, errors.Wrapf(err, "field %d value", i)
			}
		} else {
			l := d.wireValueLength()
			padded := make([]byte, l+wire.Pad4(l))
			if err = dec.ReadRaw(padded); err != nil {
				return nil, errors.Wrapf(err, "field %d value", i)
			}
			data = padded[:l]
		}
		var ind int32
		if ind, err = dec.ReadInt32(); err != nil {
			return nil, errors.Wrapf(err, "field %d null indicator", i)
		}
		row[i] = FieldValue{Null: ind == -1, Data: data}
	}
	return
}

// Int64 decodes the value as a big-endian integer of its wire width.
func (v *FieldValue) Int64() int64 {
	switch len(v.Data) {
	case 8:
		return int64(binary.BigEndian.Uint64(v.Data))
	case 4:
		return int64(int32(binary.BigEndian.Uint32(v.Data)))
	case 2:
		return int64(int16(binary.BigEndian.Uint16(v.Data)))
	case 1:
		return int64(int8(v.Data[0]))
	}
	return 0
}

// Float64 decodes a SQL_DOUBLE value slot.
func (v *FieldValue) Float64() float64 {
	if len(v.Data) != 8 {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(v.Data))
}

// String decodes the value as text, trimming CHAR space padding.
func (v *FieldValue) String(enc *wire.Encoding) (s string, err error) {
	b := v.Data
	for len(b) > 0 && b[len(b)-1] == 0x20 {
		b = b[:len(b)-1]
	}
	return enc.DecodeString(b)
}

// Int32FieldValue builds a SQL_LONG value slot.
func Int32FieldValue(n int32) (v FieldValue) {
	v.Data = make([]byte, 4)
	binary.BigEndian.PutUint32(v.Data, uint32(n))
	return
}

// Int64FieldValue builds a SQL_INT64 value slot.
func Int64FieldValue(n int64) (v FieldValue) {
	v.Data = make([]byte, 8)
	binary.BigEndian.PutUint64(v.Data, uint64(n))
	return
}

// StringFieldValue builds a text value slot in the given charset.
func StringFieldValue(s string, enc *wire.Encoding) (v FieldValue, err error) {
	v.Data, err = enc.EncodeString(s)
	return
}

// NullFieldValue builds a NULL slot.
func NullFieldValue() FieldValue {
	return FieldValue{Null: true}
}
