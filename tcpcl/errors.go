// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import "errors"

// Error taxonomy, spec.md section 7. Session failures wrap one of these
// sentinels so callers can classify a failure with errors.Is.
var (
	// ErrMalformedMessage covers a message whose wire encoding does not
	// parse: bad magic, bad length, an invalid enumerated field.
	ErrMalformedMessage = errors.New("malformed TCPCL message")

	// ErrUnknownCriticalExtension is returned when a CRITICAL session or
	// transfer extension item carries a type code this build does not
	// implement.
	ErrUnknownCriticalExtension = errors.New("unknown critical extension")

	// ErrNodeIDParse is returned when a peer's declared node ID in SESS_INIT
	// does not parse as a bundle endpoint ID.
	ErrNodeIDParse = errors.New("peer node id does not parse")

	// ErrTlsNameMismatch is returned when a CAN_TLS session's peer
	// certificate has no bundleEID otherName SAN matching the peer's
	// declared node ID.
	ErrTlsNameMismatch = errors.New("tls certificate name mismatch")

	// ErrSegmentMRUExceeded is returned when an inbound XFER_SEGMENT's data
	// exceeds the segment MRU we advertised.
	ErrSegmentMRUExceeded = errors.New("segment exceeds advertised segment MRU")

	// ErrConcurrentTransfer is returned when a START segment arrives while
	// another inbound transfer is already in flight.
	ErrConcurrentTransfer = errors.New("concurrent inbound transfer")

	// ErrSessionTerminated is returned by session I/O after SESS_TERM has
	// been sent or received and the connection has closed.
	ErrSessionTerminated = errors.New("session terminated")

	// ErrTransferRefused is returned by a Send whose outbound transfer the
	// peer rejected with an XFER_REFUSE. Unlike the other sentinels here,
	// this does not end the session: only the one transfer failed.
	ErrTransferRefused = errors.New("peer refused transfer")
)
