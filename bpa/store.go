// SPDX-License-Identifier: GPL-3.0-or-later

package bpa

import (
	"time"

	"github.com/google/uuid"

	"github.com/dtn7/dtnd7/bpv7"
)

// StoredBundle is a bundle held by a Store, identified by an opaque UUID
// rather than its BundleID so that two fragments of the same logical
// bundle, or a bundle reassembled from them, are distinguishable entries.
type StoredBundle struct {
	ID     uuid.UUID
	Bundle bpv7.Bundle

	// Stored is when this entry was indexed, used to age a BundleAgeBlock
	// on bundles created without an accurate clock.
	Stored time.Time
}

// Observer is notified of bundles entering the store. An Agent implements
// this to drive its queue-draining algorithm.
type Observer interface {
	OnBundleStored(sb StoredBundle)
}

// Store is the in-memory or persistent bundle store of spec.md section 4.D.
// Implementations own their mutable state exclusively; callers never see a
// StoredBundle mutated out from under them.
type Store interface {
	// StoreNew indexes a bundle newly originated by ownNode. It asserts the
	// bundle's source is ownNode and that it is not already a fragment,
	// assigns it a sequence number, and notifies the Observer.
	StoreNew(bndl bpv7.Bundle, ownNode bpv7.EndpointID) (StoredBundle, error)

	// Store indexes a bundle received from elsewhere. It asserts the
	// bundle's source is not ownNode. If the bundle's destination is local
	// and stored fragments now reassemble into a whole bundle, the
	// reassembled bundle is indexed, the fragments it replaces are removed,
	// and the Observer is notified with the reassembled bundle instead of
	// the fragment.
	Store(bndl bpv7.Bundle, ownNode bpv7.EndpointID) (StoredBundle, error)

	// Delete removes a bundle by identity. Deleting an already-removed
	// StoredBundle is a no-op.
	Delete(sb StoredBundle) error

	// Fragment splits a stored bundle into fragments no larger than
	// targetSize, deletes the original, indexes each fragment and notifies
	// the Observer once per fragment.
	Fragment(sb StoredBundle, targetSize int) ([]StoredBundle, error)

	// GetForDestination returns stored bundles addressed to endpoint.
	GetForDestination(endpoint bpv7.EndpointID) []StoredBundle

	// GetForNode returns stored bundles addressed to any endpoint at node.
	GetForNode(node bpv7.EndpointID) []StoredBundle
}
