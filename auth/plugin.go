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

// Package auth implements the client side of the multi-round
// authentication handshake: pluggable algorithms tried in the
// server-advertised order, each a small state machine that may yield a
// session key for wire encryption.
package auth

import (
	"strings"

	"github.com/pkg/errors"
)

// Status is the state of one plugin attempt.
type Status int

// Plugin attempt states.
const (
	// StatusInit: nothing sent yet.
	StatusInit Status = iota
	// StatusContinue: waiting for data the plugin cannot produce yet
	// (typically missing credentials).
	StatusContinue
	// StatusMoreData: client data produced, server round expected.
	StatusMoreData
	// StatusSuccess: the attempt completed; terminal.
	StatusSuccess
	// StatusFailed: the attempt failed; terminal.
	StatusFailed
)

// Errors of the handshake layer.
var (
	// ErrAuthSyncFailure indicates a protocol-usage error: authenticating
	// on a plugin that already reached a terminal state.
	ErrAuthSyncFailure = errors.New("authentication step out of sync")
	// ErrPluginsExhausted indicates no plugin satisfied the server.
	ErrPluginsExhausted = errors.New("all authentication plugins exhausted")
)

// Plugin is one authentication algorithm attempt. Authenticate advances
// the state machine: the first call (serverData nil) produces the client's
// public data; later calls consume a server round. A plugin that reported
// StatusSuccess must never be advanced again.
type Plugin interface {
	Name() string
	Authenticate(serverData []byte) (clientData []byte, status Status, err error)
	Status() Status
	// HasSessionKey reports whether a successful attempt derived a key for
	// transport encryption.
	HasSessionKey() bool
	SessionKey() []byte
	// Zero scrubs secret material. The plugin is unusable afterwards.
	Zero()
}

// Zero overwrites b with zeroes.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Chain walks an ordered candidate list, narrowing it to the plugins the
// server advertised.
type Chain struct {
	candidates []Plugin
	current    int
}

// NewChain builds a chain over candidates in preference order.
func NewChain(candidates ...Plugin) *Chain {
	return &Chain{candidates: candidates}
}

// Narrow drops candidates absent from the server-advertised plugin list.
// Server keys narrow further: when key material is advertised for specific
// plugins only, the rest are not worth attempting.
func (c *Chain) Narrow(serverList string, keys []KnownServerKey) {
	if serverList == "" {
		return
	}
	advertised := map[string]bool{}
	for _, name := range strings.FieldsFunc(serverList, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	}) {
		if name != "" {
			advertised[name] = true
		}
	}
	keyed := map[string]bool{}
	for _, k := range keys {
		for _, p := range k.Plugins {
			keyed[p] = true
		}
	}
	// Server keys usually name wire-crypt plugins, not authentication
	// ones. The key list narrows the chain only when it actually names a
	// candidate; otherwise it says nothing about authentication.
	applyKeyed := false
	for _, p := range c.candidates {
		if keyed[p.Name()] {
			applyKeyed = true
			break
		}
	}
	kept := c.candidates[:0]
	for _, p := range c.candidates {
		if !advertised[p.Name()] {
			continue
		}
		if applyKeyed && !keyed[p.Name()] {
			continue
		}
		kept = append(kept, p)
	}
	c.candidates = kept
	c.current = 0
}

// Current returns the active plugin, or nil when exhausted.
func (c *Chain) Current() Plugin {
	if c.current >= len(c.candidates) {
		return nil
	}
	return c.candidates[c.current]
}

// Next zeroes the failed attempt and moves to the following candidate.
func (c *Chain) Next() Plugin {
	if cur := c.Current(); cur != nil {
		cur.Zero()
		c.current++
	}
	return c.Current()
}

// Names lists the remaining candidate names in order.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.candidates)-c.current)
	for _, p := range c.candidates[c.current:] {
		names = append(names, p.Name())
	}
	return names
}

// KnownServerKey is key material the server advertised during accept,
// bound to the plugin names eligible to use it.
type KnownServerKey struct {
	Type         string
	Plugins      []string
	SpecificData []byte
}
