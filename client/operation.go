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
	"sync"
)

// Operation is a cancellation token for one in-flight database request.
// Cancel may arrive from another goroutine at any point relative to the
// request's lifecycle; the token closes the race: a cancel that lands
// before begin makes begin fail locally without touching the wire, a
// cancel that lands after begin triggers the transport-level interrupt.
type Operation struct {
	mu        sync.Mutex
	cancelled bool
	started   bool
	done      bool
	// interrupt sends op_cancel out of band. Set by the attachment when
	// the negotiated protocol supports async cancellation; nil otherwise,
	// in which case a started operation runs to completion.
	interrupt func() error
	// onStart observes the moment the operation starts, before any
	// request bytes are written. The callback may call Cancel.
	onStart func(*Operation)
}

// OnStart registers an observer invoked when the operation starts, before
// its first request byte goes out. A Cancel issued from inside the
// callback wins: the operation fails locally without touching the wire.
func (o *Operation) OnStart(fn func(*Operation)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onStart = fn
}

// begin transitions the token to in-flight. A token cancelled beforehand,
// or from within the start observer, refuses to start, so no request
// bytes are ever written for it.
func (o *Operation) begin() (err error) {
	o.mu.Lock()
	if o.cancelled {
		o.mu.Unlock()
		return ErrOperationCancelled
	}
	if fn := o.onStart; fn != nil {
		// The observer runs unlocked so it may call Cancel. started is
		// still false here, so such a cancel never fires the interrupt.
		o.mu.Unlock()
		fn(o)
		o.mu.Lock()
		if o.cancelled {
			o.mu.Unlock()
			return ErrOperationCancelled
		}
	}
	o.started = true
	o.mu.Unlock()
	return
}

// end marks the wire exchange complete; later cancels are no-ops.
func (o *Operation) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done = true
}

// Cancelled reports whether Cancel won the race.
func (o *Operation) Cancelled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled
}

// Cancel requests that the operation not run, or stop running. Safe to
// call from any goroutine and at any time; cancelling a finished
// operation does nothing.
func (o *Operation) Cancel() (err error) {
	o.mu.Lock()
	if o.done || o.cancelled {
		o.mu.Unlock()
		return
	}
	o.cancelled = true
	started, interrupt := o.started, o.interrupt
	o.mu.Unlock()

	if started && interrupt != nil {
		err = interrupt()
	}
	return
}
