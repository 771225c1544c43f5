// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"time"

	"github.com/dtn7/dtnd7/bpa"
	"github.com/dtn7/dtnd7/bpv7"
)

// SubmitResult is the outcome of a ClientFrontend.Submit call.
type SubmitResult int

const (
	SubmitAccepted SubmitResult = iota
	SubmitFailed
)

// ClientFrontend is the interface exposed to a client-frontend collaborator,
// spec.md section 6.
type ClientFrontend struct {
	agent *bpa.Agent
}

// NewClientFrontend wraps agent for client-frontend use.
func NewClientFrontend(agent *bpa.Agent) *ClientFrontend {
	return &ClientFrontend{agent: agent}
}

// Submit originates a new bundle. lifetime is rounded down to the
// millisecond.
func (f *ClientFrontend) Submit(destination bpv7.EndpointID, payload []byte, lifetime time.Duration, statusFlags bpv7.BundleControlFlags) SubmitResult {
	if err := f.agent.Submit(destination, payload, uint64(lifetime.Milliseconds()), statusFlags); err != nil {
		return SubmitFailed
	}
	return SubmitAccepted
}

// Listen registers a local application at endpoint and returns a Delivery
// streaming bundles addressed to it.
func (f *ClientFrontend) Listen(endpoint bpv7.EndpointID) *Delivery {
	outbox := bpa.NewChannelOutbox()
	f.agent.OnClientConnect(endpoint, outbox)

	return &Delivery{
		endpoint: endpoint,
		agent:    f.agent,
		outbox:   outbox,
	}
}

// Delivery is a cancellable stream of bundles delivered to one local
// endpoint. Every StoredBundle read from Payloads must be acknowledged with
// Ack or Nack so the Agent can drain the next one.
type Delivery struct {
	endpoint bpv7.EndpointID
	agent    *bpa.Agent
	outbox   *bpa.ChannelOutbox
}

// Payloads returns the stream of delivered bundles.
func (d *Delivery) Payloads() <-chan bpa.StoredBundle {
	return d.outbox.Channel()
}

// Ack reports sb as successfully delivered to the application.
func (d *Delivery) Ack(sb bpa.StoredBundle) {
	d.agent.OnBundleDelivered(d.endpoint, sb)
}

// Nack reports sb as failed to deliver; it is returned to the front of the
// endpoint's queue.
func (d *Delivery) Nack(sb bpa.StoredBundle) {
	d.agent.OnBundleDeliveryFailed(d.endpoint, sb)
}

// Cancel implements spec.md section 6's cancel-listen. Already-queued
// bundles for this endpoint remain queued for a future Listen call.
func (d *Delivery) Cancel() {
	d.outbox.Close()
	d.agent.OnClientDisconnect(d.endpoint)
}
