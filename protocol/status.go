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

package protocol

import (
	"fmt"
	"strings"

	"github.com/fbsql/fbsql/wire"
)

// Error is a decoded server status vector: the gds code chain with its
// string and number arguments, and the SQLSTATE when the server sent one.
// Warnings use the same shape but are delivered through callbacks instead
// of being raised.
type Error struct {
	Codes    []int32
	Args     []string
	SQLState string
	warning  bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("server error")
	if e.warning {
		sb.Reset()
		sb.WriteString("server warning")
	}
	for i, c := range e.Codes {
		if i == 0 {
			fmt.Fprintf(&sb, " %d", c)
		} else {
			fmt.Fprintf(&sb, ", %d", c)
		}
	}
	if e.SQLState != "" {
		fmt.Fprintf(&sb, " (SQLSTATE %s)", e.SQLState)
	}
	for _, a := range e.Args {
		sb.WriteString(": ")
		sb.WriteString(a)
	}
	return sb.String()
}

// Code returns the primary gds error code, or 0 when the vector is empty.
func (e *Error) Code() int32 {
	if len(e.Codes) == 0 {
		return 0
	}
	return e.Codes[0]
}

// HasCode reports whether code appears anywhere in the chain.
func (e *Error) HasCode(code int32) bool {
	for _, c := range e.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// IsWarning reports whether the vector carried only warning diagnostics.
func (e *Error) IsWarning() bool {
	return e.warning
}

// IsCancelled reports whether the vector carries the operation-cancelled
// code.
func (e *Error) IsCancelled() bool {
	return e.HasCode(CodeCancelled)
}

// DecodeStatusVector reads a status vector off the stream. It returns the
// error portion and the warning portion separately; either may be nil.
func DecodeStatusVector(dec *wire.Decoder, enc *wire.Encoding) (failure, warning *Error, err error) {
	var cur *Error
	take := func(isWarning bool) *Error {
		if isWarning {
			if warning == nil {
				warning = &Error{warning: true}
			}
			return warning
		}
		if failure == nil {
			failure = &Error{}
		}
		return failure
	}
	cur = take(false)

	for {
		var tag int32
		if tag, err = dec.ReadInt32(); err != nil {
			return
		}
		switch tag {
		case ArgEnd:
			if failure != nil && len(failure.Codes) == 0 && len(failure.Args) == 0 && failure.SQLState == "" {
				failure = nil
			}
			return
		case ArgGds:
			var code int32
			if code, err = dec.ReadInt32(); err != nil {
				return
			}
			cur = take(false)
			if code != 0 {
				cur.Codes = append(cur.Codes, code)
			}
		case ArgWarning:
			var code int32
			if code, err = dec.ReadInt32(); err != nil {
				return
			}
			cur = take(true)
			if code != 0 {
				cur.Codes = append(cur.Codes, code)
			}
		case ArgNumber:
			var n int32
			if n, err = dec.ReadInt32(); err != nil {
				return
			}
			cur.Args = append(cur.Args, fmt.Sprintf("%d", n))
		case ArgString, ArgInterpreted, ArgCstring:
			var s string
			if s, err = dec.ReadString(enc); err != nil {
				return
			}
			cur.Args = append(cur.Args, s)
		case ArgSQLState:
			var s string
			if s, err = dec.ReadString(enc); err != nil {
				return
			}
			cur.SQLState = s
		default:
			// Unknown tags carry a single word argument; skip it to stay
			// aligned with the stream.
			if _, err = dec.ReadInt32(); err != nil {
				return
			}
		}
	}
}
