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
	"github.com/pkg/errors"

	"github.com/fbsql/fbsql/wire"
)

// Response is the closed set of reply records the server sends. The one
// dispatch site that consumes the wire switches exhaustively on the
// concrete type.
type Response interface {
	isResponse()
}

// GenericResponse is the op_response record: an object handle, a blob id,
// an opaque payload, and the status vector.
type GenericResponse struct {
	ObjectHandle int32
	BlobID       int64
	Data         []byte
	Warning      *Error
}

func (*GenericResponse) isResponse() {}

// SQLResponse is the op_sql_response header; the row payload that follows
// is decoded against the statement's row descriptor by the caller.
type SQLResponse struct {
	Count int32
}

func (*SQLResponse) isResponse() {}

// FetchResponse is the op_fetch_response header preceding each batch of
// rows.
type FetchResponse struct {
	Status int32
	Count  int32
}

func (*FetchResponse) isResponse() {}

// ReadOperation reads the next operation code, transparently skipping
// keep-alive op_dummy packets.
func ReadOperation(dec *wire.Decoder) (op int32, err error) {
	for {
		if op, err = dec.ReadInt32(); err != nil {
			return
		}
		if op != OpDummy {
			return
		}
	}
}

// ReadGenericResponse decodes the body of an op_response record. A failure
// status vector is returned as the error; warnings ride along on the
// response.
func ReadGenericResponse(dec *wire.Decoder, enc *wire.Encoding) (resp *GenericResponse, err error) {
	resp = &GenericResponse{}
	if resp.ObjectHandle, err = dec.ReadInt32(); err != nil {
		return nil, errors.Wrap(err, "read response object handle")
	}
	if resp.BlobID, err = dec.ReadInt64(); err != nil {
		return nil, errors.Wrap(err, "read response blob id")
	}
	if resp.Data, err = dec.ReadBuffer(); err != nil {
		return nil, errors.Wrap(err, "read response data")
	}
	failure, warning, err := DecodeStatusVector(dec, enc)
	if err != nil {
		return nil, errors.Wrap(err, "read response status vector")
	}
	resp.Warning = warning
	if failure != nil {
		return resp, failure
	}
	return resp, nil
}

// ReadFetchResponse decodes the body of an op_fetch_response record.
func ReadFetchResponse(dec *wire.Decoder) (resp *FetchResponse, err error) {
	resp = &FetchResponse{}
	if resp.Status, err = dec.ReadInt32(); err != nil {
		return nil, errors.Wrap(err, "read fetch status")
	}
	if resp.Count, err = dec.ReadInt32(); err != nil {
		return nil, errors.Wrap(err, "read fetch count")
	}
	return
}

// ReadSQLResponse decodes the body of an op_sql_response record.
func ReadSQLResponse(dec *wire.Decoder) (resp *SQLResponse, err error) {
	resp = &SQLResponse{}
	if resp.Count, err = dec.ReadInt32(); err != nil {
		return nil, errors.Wrap(err, "read sql response count")
	}
	return
}
