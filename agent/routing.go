// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"github.com/dtn7/dtnd7/bpa"
	"github.com/dtn7/dtnd7/bpv7"
)

// RoutingAgent is the interface exposed to a routing-agent collaborator,
// spec.md section 6.
type RoutingAgent struct {
	agent *bpa.Agent
}

// NewRoutingAgent wraps agent for routing-agent use.
func NewRoutingAgent(agent *bpa.Agent) *RoutingAgent {
	return &RoutingAgent{agent: agent}
}

// UpdateRoutes replaces the Agent's routing table wholesale, per spec.md
// section 4.C's OnRoutingTableUpdate. Destinations absent from routes are no
// longer routable; bundles already queued for them simply wait.
func (r *RoutingAgent) UpdateRoutes(routes map[bpv7.EndpointID]bpa.Route) {
	keyed := make(map[string]bpa.Route, len(routes))
	for dest, route := range routes {
		keyed[dest.String()] = route
	}
	r.agent.OnRoutingTableUpdate(keyed)
}
