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

	"github.com/fbsql/fbsql/wire"
)

// InfoItem is one clumplet of an information response: a tag byte followed
// by a little-endian length-prefixed value.
type InfoItem struct {
	Tag   byte
	Value []byte
}

// InfoResult is a parsed information response buffer.
type InfoResult struct {
	Items []InfoItem
	// Truncated reports that the server ran out of buffer before the
	// requested items were complete; callers retry with a larger buffer.
	Truncated bool
}

// ErrMalformedInfo indicates an info buffer that ends inside a clumplet.
var ErrMalformedInfo = errors.New("malformed info response buffer")

const (
	infoEnd       = 1
	infoTruncated = 2
	infoError     = 3
)

// ParseInfo walks an info response buffer. Parsing stops at isc_info_end;
// isc_info_truncated flags the result instead of failing, since truncation
// is an ordinary retry condition.
func ParseInfo(buf []byte) (res InfoResult, err error) {
	for i := 0; i < len(buf); {
		tag := buf[i]
		i++
		switch tag {
		case infoEnd:
			return
		case infoTruncated:
			res.Truncated = true
			return
		}
		if i+2 > len(buf) {
			err = errors.Wrapf(ErrMalformedInfo, "tag %d at offset %d", tag, i-1)
			return
		}
		l := int(wire.VaxInteger(buf[i : i+2]))
		i += 2
		if i+l > len(buf) {
			err = errors.Wrapf(ErrMalformedInfo, "tag %d value overruns buffer", tag)
			return
		}
		res.Items = append(res.Items, InfoItem{Tag: tag, Value: buf[i : i+l]})
		i += l
	}
	return
}

// Find returns the first item with the given tag.
func (r *InfoResult) Find(tag byte) (item InfoItem, ok bool) {
	for _, it := range r.Items {
		if it.Tag == tag {
			return it, true
		}
	}
	return
}

// Int returns the first item with the given tag decoded as a little-endian
// integer, or def when absent.
func (r *InfoResult) Int(tag byte, def int64) int64 {
	if it, ok := r.Find(tag); ok {
		return wire.VaxInteger(it.Value)
	}
	return def
}
