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
	"github.com/fbsql/fbsql/utils/log"
)

// deferredAction is a request already written to the transport whose
// response will be read later. The handler maps the response into the
// owner's state; any error it reports is captured, not thrown, because at
// drain time the original caller may be long gone.
type deferredAction struct {
	name    string
	handler func(resp *protocol.GenericResponse, err error) error
}

// deferredQueue is the per-connection FIFO of outstanding actions. It is
// a plain ordered collection guarded by the connection lock; draining is
// done synchronously by whichever caller needs a consistent stream
// position.
type deferredQueue struct {
	actions []deferredAction
	pending error
}

func (q *deferredQueue) enqueue(a deferredAction) {
	q.actions = append(q.actions, a)
}

func (q *deferredQueue) size() int {
	return len(q.actions)
}

// drain consumes exactly one response per queued action, in enqueue
// order. Server-reported errors go to the action's handler; handler
// failures are remembered for takeError. Only a transport failure aborts
// the drain, since the stream position is unrecoverable at that point.
func (q *deferredQueue) drain(read func() (*protocol.GenericResponse, error)) (err error) {
	for len(q.actions) > 0 {
		a := q.actions[0]
		q.actions = q.actions[1:]

		resp, rerr := read()
		var serverErr *protocol.Error
		if rerr != nil && !errors.As(rerr, &serverErr) {
			q.capture(errors.Wrapf(rerr, "deferred %s", a.name))
			return rerr
		}
		if herr := a.handler(resp, rerr); herr != nil {
			q.capture(errors.Wrapf(herr, "deferred %s", a.name))
		}
	}
	return
}

func (q *deferredQueue) capture(err error) {
	if q.pending != nil {
		log.WithError(err).Warn("deferred error dropped, earlier failure pending")
		return
	}
	q.pending = err
}

// takeError returns and clears the remembered failure. Callers that need
// a guaranteed-consistent result invoke this right after draining.
func (q *deferredQueue) takeError() (err error) {
	err = q.pending
	q.pending = nil
	return
}

// reset drops every outstanding expectation. Used after cancellation so
// the connection does not try to read stale response frames.
func (q *deferredQueue) reset() {
	q.actions = nil
}
