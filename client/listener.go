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

import "github.com/fbsql/fbsql/protocol"

// RowListener receives fetched rows. Fetch pushes each decoded row as it
// comes off the wire, keeping buffering policy out of the decode loop.
type RowListener interface {
	Row(row RowValue)
}

// RowListenerFunc adapts a function to RowListener.
type RowListenerFunc func(row RowValue)

// Row implements RowListener.
func (f RowListenerFunc) Row(row RowValue) {
	f(row)
}

// ExceptionListener observes errors before they are rethrown, so a
// surrounding layer reacts without the handle owning presentation logic.
type ExceptionListener interface {
	Errored(err error)
}

// ExceptionListenerFunc adapts a function to ExceptionListener.
type ExceptionListenerFunc func(err error)

// Errored implements ExceptionListener.
func (f ExceptionListenerFunc) Errored(err error) {
	f(err)
}

// WarningCallback receives server warnings, which are reported rather than
// raised.
type WarningCallback func(w *protocol.Error)

// exceptionListeners is the per-handle observer registry. The handle owns
// the list; registration order is dispatch order.
type exceptionListeners struct {
	ls []ExceptionListener
}

func (e *exceptionListeners) add(l ExceptionListener) {
	if l != nil {
		e.ls = append(e.ls, l)
	}
}

// notify fans err out and returns it, so call sites can
// `return listeners.notify(err)`.
func (e *exceptionListeners) notify(err error) error {
	if err == nil {
		return nil
	}
	for _, l := range e.ls {
		l.Errored(err)
	}
	return err
}
