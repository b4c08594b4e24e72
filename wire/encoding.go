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

package wire

import (
	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Encoding converts between Go strings and the on-wire byte form of a
// negotiated Firebird character set. UTF8, NONE and ASCII are identity
// encodings; single-byte sets go through x/text charmaps.
type Encoding struct {
	name string
	cm   encoding.Encoding
}

var charsets = map[string]encoding.Encoding{
	"NONE":       nil,
	"UTF8":       nil,
	"ASCII":      nil,
	"ISO8859_1":  charmap.ISO8859_1,
	"ISO8859_2":  charmap.ISO8859_2,
	"WIN1250":    charmap.Windows1250,
	"WIN1251":    charmap.Windows1251,
	"WIN1252":    charmap.Windows1252,
	"WIN1253":    charmap.Windows1253,
	"WIN1254":    charmap.Windows1254,
	"WIN1255":    charmap.Windows1255,
	"WIN1256":    charmap.Windows1256,
	"WIN1257":    charmap.Windows1257,
	"KOI8R":      charmap.KOI8R,
	"KOI8U":      charmap.KOI8U,
	"DOS437":     charmap.CodePage437,
	"DOS850":     charmap.CodePage850,
	"DOS852":     charmap.CodePage852,
	"DOS866":     charmap.CodePage866,
	"OCTETS":     nil,
	"BINARY":     nil,
}

// UTF8 is the default connection encoding.
var UTF8 = &Encoding{name: "UTF8"}

// LookupEncoding resolves a Firebird character set name.
func LookupEncoding(name string) (enc *Encoding, err error) {
	cm, ok := charsets[name]
	if !ok {
		err = errors.Errorf("unknown character set %q", name)
		return
	}
	enc = &Encoding{name: name, cm: cm}
	return
}

// Name returns the Firebird character set name.
func (e *Encoding) Name() string {
	return e.name
}

// EncodeString converts s to its wire byte form.
func (e *Encoding) EncodeString(s string) (b []byte, err error) {
	if e.cm == nil {
		return []byte(s), nil
	}
	if b, err = e.cm.NewEncoder().Bytes([]byte(s)); err != nil {
		err = errors.Wrapf(err, "encode string to %s", e.name)
	}
	return
}

// DecodeString converts wire bytes to a Go string.
func (e *Encoding) DecodeString(b []byte) (s string, err error) {
	if e.cm == nil {
		return string(b), nil
	}
	var out []byte
	if out, err = e.cm.NewDecoder().Bytes(b); err != nil {
		err = errors.Wrapf(err, "decode string from %s", e.name)
		return
	}
	s = string(out)
	return
}
