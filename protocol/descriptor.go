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

// Behavior is the capability set of one protocol version. Versions refine
// each other linearly: the table for version N is the base (protocol 10)
// behavior with every override up to and including N applied, so a version
// that does not touch a capability behaves exactly like its predecessor.
type Behavior struct {
	// DeferredAllocate pipelines op_allocate_statement on lazy-send
	// connections instead of waiting for its response.
	DeferredAllocate bool
	// DeferredBlobOpen delays the input-blob open round trip until first
	// use.
	DeferredBlobOpen bool
	// AsyncCancel supports op_cancel on a live attachment.
	AsyncCancel bool
	// AuthData carries authentication rounds in the connect/attach
	// exchange (op_cond_accept / op_accept_data / op_cont_auth).
	AuthData bool
	// WireCrypt supports op_crypt session encryption.
	WireCrypt bool
	// CryptKeyCallbackReply carries an expected reply length in
	// op_crypt_key_callback.
	CryptKeyCallbackReply bool
	// StatementTimeout supports per-statement execution timeouts.
	StatementTimeout bool
	// BatchExec supports the op_batch_* family.
	BatchExec bool
	// ScrollableCursor supports op_fetch_scroll and op_info_cursor.
	ScrollableCursor bool
}

// Descriptor binds a ProtocolVersion to its composed Behavior.
type Descriptor struct {
	ProtocolVersion
	Behavior Behavior
}

type override struct {
	version int32
	apply   func(*Behavior)
}

// The refinement chain. Order matters: ComposeBehavior applies every entry
// whose version does not exceed the target.
var overrides = []override{
	{ProtocolVersion11, func(b *Behavior) {
		b.DeferredAllocate = true
		b.DeferredBlobOpen = true
	}},
	{ProtocolVersion12, func(b *Behavior) {
		b.AsyncCancel = true
	}},
	{ProtocolVersion13, func(b *Behavior) {
		b.AuthData = true
		b.WireCrypt = true
	}},
	{ProtocolVersion15, func(b *Behavior) {
		b.CryptKeyCallbackReply = true
	}},
	{ProtocolVersion16, func(b *Behavior) {
		b.StatementTimeout = true
	}},
	{ProtocolVersion17, func(b *Behavior) {
		b.BatchExec = true
	}},
	{ProtocolVersion18, func(b *Behavior) {
		b.ScrollableCursor = true
	}},
}

// ComposeBehavior builds the capability set of a protocol version from the
// base behavior and the ordered override chain.
func ComposeBehavior(version int32) (b Behavior) {
	for _, o := range overrides {
		if o.version > version {
			break
		}
		o.apply(&b)
	}
	return
}

func defaultDescriptors() []*Descriptor {
	versions := []int32{
		ProtocolVersion10,
		ProtocolVersion11,
		ProtocolVersion12,
		ProtocolVersion13,
		ProtocolVersion15,
		ProtocolVersion16,
		ProtocolVersion17,
		ProtocolVersion18,
	}
	descs := make([]*Descriptor, 0, len(versions))
	for i, v := range versions {
		maxType := PtypeBatchSend
		if v >= ProtocolVersion11 {
			maxType = PtypeLazySend
		}
		descs = append(descs, &Descriptor{
			ProtocolVersion: ProtocolVersion{
				Version:      v,
				Architecture: ArchGeneric,
				MinType:      PtypeBatchSend,
				MaxType:      maxType,
				Weight:       int32(i + 1),
			},
			Behavior: ComposeBehavior(v),
		})
	}
	return descs
}
