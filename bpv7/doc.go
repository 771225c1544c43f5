// SPDX-License-Identifier: GPL-3.0-or-later

// Package bpv7 implements the Bundle Protocol version 7 (RFC 9171) data
// model and its CBOR wire encoding: endpoints, timestamps, the primary
// block, canonical blocks, administrative records and bundle fragmentation.
package bpv7
