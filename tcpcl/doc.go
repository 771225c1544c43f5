// SPDX-License-Identifier: GPL-3.0-or-later

// Package tcpcl implements the TCP Convergence Layer version 4 (TCPCLv4)
// session state machine: contact header exchange, optional in-band TLS
// upgrade, session parameter negotiation and the segmented bundle transfer
// protocol.
package tcpcl
