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

import "github.com/pkg/errors"

// Errors of the protocol layer.
var (
	// ErrProtocolNegotiationFailed indicates the server accepted a
	// (version, architecture, type) triple the client has no descriptor
	// for, or rejected every offer.
	ErrProtocolNegotiationFailed = errors.New("no acceptable protocol version")
	// ErrConnectionRejected indicates the server replied op_reject.
	ErrConnectionRejected = errors.New("connection rejected by server")
	// ErrUnexpectedOperation indicates a response record of a kind the
	// current exchange cannot accept.
	ErrUnexpectedOperation = errors.New("unexpected operation in response")
)
