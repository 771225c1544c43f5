// SPDX-License-Identifier: GPL-3.0-or-later

// Package agent exposes the external interfaces of spec.md section 6: a
// client-frontend surface (submit/listen/cancel-listen), a routing-agent
// surface (update_routes) and a convergence-layer surface
// (register_peer/unregister_peer/inbound_bundle). Each is a plain Go
// interface plus channels rather than a wire protocol; a caller outside
// this module's scope (spec.md section 1) is responsible for translating
// those onto whatever transport it chooses.
package agent
