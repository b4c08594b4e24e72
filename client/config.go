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
	"time"

	"github.com/fbsql/fbsql/protocol"
)

// Config carries everything a connection consumes but does not own.
type Config struct {
	// Address is the host:port of the server; port 3050 when empty.
	Address string
	// Database is the database path or alias to attach to.
	Database string

	User     string
	Password string
	Role     string

	// Charset is the connection character set name; UTF8 when empty.
	Charset string

	// DialTimeout bounds the TCP connect; zero means no limit.
	DialTimeout time.Duration
	// SoTimeout bounds each socket read/write; zero means no limit.
	SoTimeout time.Duration

	// WireCrypt is the client's encryption stance.
	WireCrypt WireCryptLevel
	// Compress asks for wire compression during negotiation.
	Compress bool

	// SQLDialect defaults to 3.
	SQLDialect int

	// Events is the registry that owns this attachment's auxiliary event
	// channel; nil selects the process-wide default registry.
	Events *EventRegistry

	// Batch holds the op_batch_* knobs.
	Batch BatchConfig
}

// WireCryptLevel mirrors the protocol's client-crypt values.
type WireCryptLevel int32

// Wire-crypt stances.
const (
	WireCryptDefault  WireCryptLevel = WireCryptLevel(protocol.WireCryptEnabled)
	WireCryptDisabled WireCryptLevel = WireCryptLevel(protocol.WireCryptDisabled)
	WireCryptEnabled  WireCryptLevel = WireCryptLevel(protocol.WireCryptEnabled)
	WireCryptRequired WireCryptLevel = WireCryptLevel(protocol.WireCryptRequired)
)

// BatchConfig configures server-side batch execution. Negative values mean
// "use the server default"; the zero value of the struct leaves every knob
// at its server default.
type BatchConfig struct {
	// ContinueOnError keeps executing batch elements after a failure.
	ContinueOnError bool
	// ElementUpdateCounts asks for a per-element update count.
	ElementUpdateCounts bool
	// DetailedErrors is the number of per-element status vectors to
	// retain; negative or zero requests the server default (64).
	DetailedErrors int
	// BufferSize is the server-side batch buffer in bytes; negative or
	// zero requests the server default (16 MB).
	BufferSize int
}

func (c *Config) withDefaults() (out Config) {
	out = *c
	if out.Charset == "" {
		out.Charset = "UTF8"
	}
	if out.SQLDialect == 0 {
		out.SQLDialect = 3
	}
	return
}
