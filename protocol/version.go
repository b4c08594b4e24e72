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
	"sort"

	"github.com/pkg/errors"
)

// ProtocolVersion identifies one entry of the descriptor chain: an ordered
// version number, the architecture tag, the connection-type range the
// descriptor can serve, and a weight used as tie-breaker when several
// descriptors claim the same version.
type ProtocolVersion struct {
	Version      int32
	Architecture int32
	MinType      int32
	MaxType      int32
	Weight       int32
}

// Registry is an immutable, ordered set of protocol descriptors. Ordering
// is version descending, then weight descending, which makes selection
// deterministic without ever falling back to registration order.
type Registry struct {
	descs []*Descriptor
}

// NewRegistry sorts descs into a registry.
func NewRegistry(descs ...*Descriptor) *Registry {
	sorted := make([]*Descriptor, len(descs))
	copy(sorted, descs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Version != sorted[j].Version {
			return sorted[i].Version > sorted[j].Version
		}
		return sorted[i].Weight > sorted[j].Weight
	})
	return &Registry{descs: sorted}
}

// DefaultRegistry returns the registry of every protocol version this
// client implements.
func DefaultRegistry() *Registry {
	return NewRegistry(defaultDescriptors()...)
}

// Descriptors returns the ordered descriptor list.
func (r *Registry) Descriptors() []*Descriptor {
	return r.descs
}

// Select resolves the server's accepted (version, architecture, type)
// triple to the exact matching descriptor. There is no fallback: an
// unknown triple fails negotiation.
func (r *Registry) Select(version, arch, ptype int32) (d *Descriptor, err error) {
	ptype &= PtypeMask
	for _, cand := range r.descs {
		if cand.Version == version && cand.Architecture == arch &&
			ptype >= cand.MinType && ptype <= cand.MaxType {
			return cand, nil
		}
	}
	err = errors.Wrapf(ErrProtocolNegotiationFailed,
		"server accepted version %d arch %d type %d", version, arch, ptype)
	return
}
