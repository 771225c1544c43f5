// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"bytes"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtnd7/bpa"
	"github.com/dtn7/dtnd7/bpv7"
)

// InboundResult is the outcome of a ConvergenceAgent.InboundBundle call.
type InboundResult int

const (
	InboundAccepted InboundResult = iota
	InboundMalformed
	InboundRejected
)

// ConvergenceAgent is the interface exposed to a convergence-layer
// collaborator, spec.md section 6.
type ConvergenceAgent struct {
	agent *bpa.Agent
	store bpa.Store
	own   bpv7.EndpointID
}

// NewConvergenceAgent wraps agent and store for use by a convergence-layer
// collaborator reachable from ownNode.
func NewConvergenceAgent(agent *bpa.Agent, store bpa.Store, ownNode bpv7.EndpointID) *ConvergenceAgent {
	return &ConvergenceAgent{agent: agent, store: store, own: ownNode}
}

// RegisterPeer implements spec.md section 4.C's OnPeerConnect. nodeEndpoint
// must already be a node endpoint (see bpv7.EndpointID.NodeID).
func (c *ConvergenceAgent) RegisterPeer(nodeEndpoint bpv7.EndpointID, outbox bpa.Outbox) error {
	return c.agent.OnPeerConnect(nodeEndpoint, outbox)
}

// UnregisterPeer implements spec.md section 4.E's "On session close: call
// BPA's OnPeerDisconnect".
func (c *ConvergenceAgent) UnregisterPeer(nodeEndpoint bpv7.EndpointID) {
	c.agent.OnPeerDisconnect(nodeEndpoint)
}

// InboundBundle parses and stores a bundle received over a convergence-layer
// session. A bundle sourced from this node is rejected rather than stored,
// since Store.Store asserts a foreign source.
func (c *ConvergenceAgent) InboundBundle(data []byte) InboundResult {
	bndl, err := bpv7.ParseBundle(bytes.NewReader(data))
	if err != nil {
		log.WithError(err).Debug("discarding malformed inbound bundle")
		return InboundMalformed
	}

	return c.InboundParsedBundle(bndl)
}

// InboundParsedBundle stores a bundle a convergence-layer session has already
// decoded itself, e.g. a TCPCL session that reassembles a transfer's segments
// into a bpv7.Bundle before handing it onward. Equivalent to InboundBundle
// for a collaborator that cannot hand over raw wire bytes.
func (c *ConvergenceAgent) InboundParsedBundle(bndl bpv7.Bundle) InboundResult {
	if _, err := c.store.Store(bndl, c.own); err != nil {
		log.WithError(err).WithField("bundle", bndl.ID().String()).Debug("rejecting inbound bundle")
		return InboundRejected
	}

	return InboundAccepted
}
