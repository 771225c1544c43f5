// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import "errors"

// Error taxonomy, spec.md section 7. Codec and bundle-construction failures
// wrap one of these sentinels so callers can classify a failure with
// errors.Is without parsing message text.
var (
	// ErrMalformedInput covers CBOR decode failures: bad array length, a
	// missing required field, a field type mismatch, a CRC byte-string of
	// the wrong length, or a missing Payload block.
	ErrMalformedInput = errors.New("malformed input")

	// ErrMustNotFragment is returned by Fragment when the bundle's
	// processing flags forbid fragmentation.
	ErrMustNotFragment = errors.New("bundle must not be fragmented")

	// ErrCannotFragmentThatSmall is returned by Fragment when the
	// requested target size leaves a payload budget of zero or less for
	// either the first or a subsequent fragment.
	ErrCannotFragmentThatSmall = errors.New("cannot fragment bundle that small")

	// ErrBundleInvalid names the invalid-bundle class of the taxonomy. No
	// function in this package returns it: Bundle.CheckValid reports the
	// individual validation errors directly.
	ErrBundleInvalid = errors.New("bundle is invalid")
)
