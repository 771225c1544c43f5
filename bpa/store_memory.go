// SPDX-License-Identifier: GPL-3.0-or-later

package bpa

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtn7/dtnd7/bpv7"
)

// MemoryStore is the default, in-memory Store backed by a plain map, as
// named by spec.md section 4.D. Every method is safe for concurrent use; in
// practice it is only ever called from the single goroutine that owns the
// Agent, but the lock keeps that an implementation detail rather than an
// invariant callers must hold themselves.
type MemoryStore struct {
	mu       sync.Mutex
	bundles  map[uuid.UUID]StoredBundle
	seqNums  map[string]uint64
	observer Observer
}

// NewMemoryStore creates an empty MemoryStore reporting newly stored
// bundles to observer.
func NewMemoryStore(observer Observer) *MemoryStore {
	return &MemoryStore{
		bundles:  make(map[uuid.UUID]StoredBundle),
		seqNums:  make(map[string]uint64),
		observer: observer,
	}
}

func (s *MemoryStore) index(bndl bpv7.Bundle) StoredBundle {
	sb := StoredBundle{ID: uuid.New(), Bundle: bndl, Stored: time.Now()}
	s.bundles[sb.ID] = sb
	return sb
}

// StoreNew implements Store.
func (s *MemoryStore) StoreNew(bndl bpv7.Bundle, ownNode bpv7.EndpointID) (StoredBundle, error) {
	s.mu.Lock()

	if bndl.PrimaryBlock.SourceNode != ownNode {
		s.mu.Unlock()
		return StoredBundle{}, fmt.Errorf("%w: source %v, own node %v", ErrNotOwnBundle, bndl.PrimaryBlock.SourceNode, ownNode)
	}
	if bndl.PrimaryBlock.BundleControlFlags.Has(bpv7.IsFragment) {
		s.mu.Unlock()
		return StoredBundle{}, ErrUnexpectedFragment
	}

	key := bndl.PrimaryBlock.SourceNode.String()
	seq := s.seqNums[key]
	bndl.PrimaryBlock.CreationTimestamp = bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), seq)
	s.seqNums[key] = seq + 1

	sb := s.index(bndl)
	s.mu.Unlock()

	s.observer.OnBundleStored(sb)
	return sb, nil
}

// Store implements Store.
func (s *MemoryStore) Store(bndl bpv7.Bundle, ownNode bpv7.EndpointID) (StoredBundle, error) {
	s.mu.Lock()

	if bndl.PrimaryBlock.SourceNode == ownNode {
		s.mu.Unlock()
		return StoredBundle{}, ErrForeignBundle
	}

	sb := s.index(bndl)

	notify := sb
	if bndl.PrimaryBlock.Destination == ownNode || bndl.PrimaryBlock.Destination.NodeID() == ownNode {
		if merged, replaced, ok := s.tryReassemble(bndl.PrimaryBlock); ok {
			for _, r := range replaced {
				delete(s.bundles, r.ID)
			}
			notify = s.index(merged)
		}
	}

	s.mu.Unlock()

	s.observer.OnBundleStored(notify)
	return notify, nil
}

// tryReassemble looks for every stored bundle sharing primary's identity
// ignoring fragmentation fields and, if their payload ranges form a single
// contiguous [0, total) interval, merges them. Callers must hold s.mu.
func (s *MemoryStore) tryReassemble(primary bpv7.PrimaryBlock) (merged bpv7.Bundle, replaced []StoredBundle, ok bool) {
	if !primary.BundleControlFlags.Has(bpv7.IsFragment) {
		return bpv7.Bundle{}, nil, false
	}

	var parts []StoredBundle
	for _, sb := range s.bundles {
		if sb.Bundle.PrimaryBlock.EqualsIgnoringFragmentInfo(primary) {
			parts = append(parts, sb)
		}
	}
	if len(parts) == 0 {
		return bpv7.Bundle{}, nil, false
	}

	sort.Slice(parts, func(i, j int) bool {
		return parts[i].Bundle.PrimaryBlock.FragmentOffset < parts[j].Bundle.PrimaryBlock.FragmentOffset
	})

	total := parts[0].Bundle.PrimaryBlock.TotalDataLength
	var cursor uint64
	var payload []byte

	for _, part := range parts {
		pb, err := part.Bundle.PayloadBlock()
		if err != nil {
			return bpv7.Bundle{}, nil, false
		}
		data := pb.Value.(*bpv7.PayloadBlock).Data

		if part.Bundle.PrimaryBlock.FragmentOffset != cursor {
			return bpv7.Bundle{}, nil, false
		}
		payload = append(payload, data...)
		cursor += uint64(len(data))
	}

	if cursor != total {
		return bpv7.Bundle{}, nil, false
	}

	merged = parts[0].Bundle
	merged.PrimaryBlock.BundleControlFlags &^= bpv7.IsFragment
	merged.PrimaryBlock.FragmentOffset = 0
	merged.PrimaryBlock.TotalDataLength = 0

	payloadBlock, _ := merged.PayloadBlock()
	payloadBlock.Value = bpv7.NewPayloadBlock(payload)

	return merged, parts, true
}

// Delete implements Store.
func (s *MemoryStore) Delete(sb StoredBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.bundles, sb.ID)
	return nil
}

// Fragment implements Store.
func (s *MemoryStore) Fragment(sb StoredBundle, targetSize int) ([]StoredBundle, error) {
	fragments, err := sb.Bundle.Fragment(targetSize)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.bundles, sb.ID)

	stored := make([]StoredBundle, 0, len(fragments))
	for _, frag := range fragments {
		stored = append(stored, s.index(frag))
	}
	s.mu.Unlock()

	for _, fsb := range stored {
		s.observer.OnBundleStored(fsb)
	}
	return stored, nil
}

// GetForDestination implements Store.
func (s *MemoryStore) GetForDestination(endpoint bpv7.EndpointID) []StoredBundle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []StoredBundle
	for _, sb := range s.bundles {
		if sb.Bundle.PrimaryBlock.Destination == endpoint {
			out = append(out, sb)
		}
	}
	return out
}

// GetForNode implements Store.
func (s *MemoryStore) GetForNode(node bpv7.EndpointID) []StoredBundle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []StoredBundle
	for _, sb := range s.bundles {
		if sb.Bundle.PrimaryBlock.Destination.NodeID() == node {
			out = append(out, sb)
		}
	}
	return out
}

// Snapshot returns every currently indexed bundle, for a persistent backend
// layered on top of this MemoryStore to mirror to disk.
func (s *MemoryStore) Snapshot() []StoredBundle {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StoredBundle, 0, len(s.bundles))
	for _, sb := range s.bundles {
		out = append(out, sb)
	}
	return out
}

// Restore loads entries recovered from a persistent backend directly into
// the index, without notifying the Observer. Each source's next sequence
// number is raised past the highest one restored, so StoreNew does not reuse
// it. Callers use this once at startup, before any Store/StoreNew call is
// possible.
func (s *MemoryStore) Restore(entries []StoredBundle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sb := range entries {
		s.bundles[sb.ID] = sb

		key := sb.Bundle.PrimaryBlock.SourceNode.String()
		if seq := sb.Bundle.PrimaryBlock.CreationTimestamp[1] + 1; seq > s.seqNums[key] {
			s.seqNums[key] = seq
		}
	}
}
