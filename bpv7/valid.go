// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

// Valid is implemented by every type whose field values carry invariants
// beyond what the Go type system expresses.
type Valid interface {
	CheckValid() error
}
