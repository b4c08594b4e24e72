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
	"github.com/fbsql/fbsql/wire"
)

// The SQL describe stream is not a flat clumplet list: section openers
// (select, bind) and describe_end are bare tags, and describe_vars nests a
// variable count. This file owns the byte-level walk; RowDescriptor is the
// output.

var describeVarItems = []byte{
	protocol.InfoSQLSqldaSeq,
	protocol.InfoSQLType,
	protocol.InfoSQLSubType,
	protocol.InfoSQLScale,
	protocol.InfoSQLLength,
	protocol.InfoSQLField,
	protocol.InfoSQLRelation,
	protocol.InfoSQLOwner,
	protocol.InfoSQLAlias,
	protocol.InfoSQLDescribeEnd,
}

// prepareInfoItems is the info request sent along with
// op_prepare_statement: statement type plus a full describe of both the
// output (select) and input (bind) messages.
func prepareInfoItems() []byte {
	out := []byte{protocol.InfoSQLStmtType}
	for _, section := range []byte{protocol.InfoSQLSelect, protocol.InfoSQLBind} {
		out = append(out, section, protocol.InfoSQLDescribeVars)
		out = append(out, describeVarItems...)
	}
	return out
}

// resumeInfoItems is the continuation request after a truncated describe:
// restart the given section at the 1-based variable index.
func resumeInfoItems(section byte, fromSeq int) []byte {
	out := []byte{
		protocol.InfoSQLSqldaStart, 2,
		byte(fromSeq), byte(fromSeq >> 8),
		section, protocol.InfoSQLDescribeVars,
	}
	return append(out, describeVarItems...)
}

// describeResult accumulates a describe across the initial prepare
// response and any truncation continuations.
type describeResult struct {
	stmtType int
	fields   RowDescriptor
	params   RowDescriptor

	truncated bool
	// section and lastSeq say where the truncation hit, so the caller can
	// resume. The partially transmitted variable is discarded and re-sent.
	section byte
	lastSeq int
}

func (r *describeResult) sectionSlice(section byte) *RowDescriptor {
	if section == protocol.InfoSQLBind {
		return &r.params
	}
	return &r.fields
}

// parse walks one describe buffer, appending to the accumulated result.
func (r *describeResult) parse(buf []byte) (err error) {
	r.truncated = false
	var section byte
	var cur *FieldDescriptor

	readValue := func(i int) (v []byte, next int, err error) {
		if i+2 > len(buf) {
			err = errors.Wrap(ErrMalformedInfo, "describe length truncated")
			return
		}
		l := int(wire.VaxInteger(buf[i : i+2]))
		i += 2
		if i+l > len(buf) {
			err = errors.Wrap(ErrMalformedInfo, "describe value truncated")
			return
		}
		return buf[i : i+l], i + l, nil
	}

	for i := 0; i < len(buf); {
		tag := buf[i]
		i++
		switch tag {
		case infoEnd:
			return
		case infoTruncated:
			r.truncated = true
			r.section = section
			if sec := r.sectionSlice(section); r.lastSeq > 0 && len(*sec) >= r.lastSeq {
				// The variable being transmitted when the buffer ran out
				// may be half-filled; resume re-sends it whole.
				*sec = (*sec)[:r.lastSeq-1]
			}
			return
		case protocol.InfoSQLStmtType:
			var v []byte
			if v, i, err = readValue(i); err != nil {
				return
			}
			r.stmtType = int(wire.VaxInteger(v))
		case protocol.InfoSQLSelect, protocol.InfoSQLBind:
			section = tag
			cur = nil
			if i >= len(buf) || buf[i] != protocol.InfoSQLDescribeVars {
				return errors.Wrap(ErrMalformedInfo, "describe section without variable count")
			}
			i++
			var v []byte
			if v, i, err = readValue(i); err != nil {
				return
			}
			n := int(wire.VaxInteger(v))
			sec := r.sectionSlice(section)
			if cap(*sec) < n {
				grown := make(RowDescriptor, len(*sec), n)
				copy(grown, *sec)
				*sec = grown
			}
		case protocol.InfoSQLSqldaSeq:
			var v []byte
			if v, i, err = readValue(i); err != nil {
				return
			}
			if section == 0 {
				return errors.Wrap(ErrMalformedInfo, "variable outside describe section")
			}
			seq := int(wire.VaxInteger(v))
			sec := r.sectionSlice(section)
			for len(*sec) < seq {
				*sec = append(*sec, FieldDescriptor{})
			}
			cur = &(*sec)[seq-1]
			r.lastSeq = seq
		case protocol.InfoSQLDescribeEnd:
			cur = nil
		case protocol.InfoSQLType, protocol.InfoSQLSubType, protocol.InfoSQLScale,
			protocol.InfoSQLLength, protocol.InfoSQLField, protocol.InfoSQLRelation,
			protocol.InfoSQLOwner, protocol.InfoSQLAlias, protocol.InfoSQLNullInd:
			var v []byte
			if v, i, err = readValue(i); err != nil {
				return
			}
			if cur == nil {
				return errors.Wrapf(ErrMalformedInfo, "describe item %d outside variable", tag)
			}
			switch tag {
			case protocol.InfoSQLType:
				t := int(wire.VaxInteger(v))
				cur.SQLType = t &^ 1
				cur.Nullable = t&1 != 0
			case protocol.InfoSQLSubType:
				cur.SubType = int(wire.VaxInteger(v))
			case protocol.InfoSQLScale:
				cur.Scale = int(wire.VaxInteger(v))
			case protocol.InfoSQLLength:
				cur.Length = int(wire.VaxInteger(v))
			case protocol.InfoSQLField:
				cur.Field = string(v)
			case protocol.InfoSQLRelation:
				cur.Relation = string(v)
			case protocol.InfoSQLOwner:
				cur.Owner = string(v)
			case protocol.InfoSQLAlias:
				cur.Alias = string(v)
			}
		default:
			return errors.Wrapf(ErrMalformedInfo, "unexpected describe tag %d", tag)
		}
	}
	return
}
