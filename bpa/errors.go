// SPDX-License-Identifier: GPL-3.0-or-later

package bpa

import "errors"

var (
	// ErrUnknownBundle is returned when an operation names a bundle the
	// store does not hold.
	ErrUnknownBundle = errors.New("bpa: unknown bundle")

	// ErrNotOwnBundle is returned by StoreNew when the bundle's source is
	// not this node's own endpoint.
	ErrNotOwnBundle = errors.New("bpa: bundle source is not this node")

	// ErrUnexpectedFragment is returned by StoreNew when handed a fragment;
	// newly originated bundles are never fragments.
	ErrUnexpectedFragment = errors.New("bpa: newly originated bundle must not be a fragment")

	// ErrForeignBundle is returned by Store when handed a bundle whose
	// source is this node; such bundles belong in StoreNew.
	ErrForeignBundle = errors.New("bpa: bundle source is this node")

	// ErrNotNodeEndpoint is returned by OnPeerConnect when handed an
	// endpoint that is not a node endpoint (i.e. not its own NodeID()).
	ErrNotNodeEndpoint = errors.New("bpa: endpoint is not a node endpoint")
)
