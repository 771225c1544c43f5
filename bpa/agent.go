// SPDX-License-Identifier: GPL-3.0-or-later

package bpa

import (
	"bytes"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtnd7/bpv7"
)

// SendResult is the outcome of a try-send against an Outbox.
type SendResult int

const (
	SendSuccess SendResult = iota
	SendFull
	SendClosed
)

func (r SendResult) String() string {
	switch r {
	case SendSuccess:
		return "success"
	case SendFull:
		return "full"
	case SendClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outbox is a capacity-1 channel to a locally connected application or a
// convergence-layer session, per spec.md section 5's backpressure model.
// StoredBundle, not bpv7.Bundle, crosses this boundary so the consumer can
// later ack delivery/forwarding against the same opaque identity the Agent
// tracks in its pending-sets.
type Outbox interface {
	// TrySend attempts a non-blocking send. It never blocks.
	TrySend(sb StoredBundle) SendResult
}

// ChannelOutbox is the default Outbox: a buffered channel of capacity 1,
// closed exactly once by its owner.
type ChannelOutbox struct {
	ch     chan StoredBundle
	closed chan struct{}
}

// NewChannelOutbox creates an open ChannelOutbox.
func NewChannelOutbox() *ChannelOutbox {
	return &ChannelOutbox{
		ch:     make(chan StoredBundle, 1),
		closed: make(chan struct{}),
	}
}

// TrySend implements Outbox.
func (o *ChannelOutbox) TrySend(sb StoredBundle) SendResult {
	select {
	case <-o.closed:
		return SendClosed
	default:
	}

	select {
	case o.ch <- sb:
		return SendSuccess
	default:
		return SendFull
	}
}

// Channel returns the channel of bundles handed to TrySend.
func (o *ChannelOutbox) Channel() <-chan StoredBundle {
	return o.ch
}

// Close marks this outbox closed; further TrySend calls report SendClosed.
// Safe to call at most once.
func (o *ChannelOutbox) Close() {
	close(o.closed)
}

// Route is a routing-oracle entry for one destination node: the next hop to
// forward through and, optionally, the largest bundle that hop accepts.
type Route struct {
	NextHop bpv7.EndpointID
	MaxSize *int
}

// Agent is the Bundle Protocol Agent of spec.md section 4.C: the
// store-and-forward actor owning every queue, pending-set and connection
// table. All of its mutable state is touched only from its own goroutine;
// exported methods enqueue a closure and return, mirroring the
// single-owner-per-component model of section 5 and the channel-driven
// handle() loops of this module's tcpcl sessions.
type Agent struct {
	ownNode bpv7.EndpointID
	store   Store

	cmds     chan func()
	closeSyn chan struct{}
	closeAck chan struct{}

	localBundles  map[string][]StoredBundle
	remoteBundles map[string][]StoredBundle

	pendingLocal  map[string]StoredBundle
	pendingRemote map[string]StoredBundle

	localConnections  map[string]Outbox
	remoteConnections map[string]Outbox

	remoteRoutes map[string]Route
}

// NewAgent creates an Agent for ownNode backed by store. The Agent's run
// loop starts immediately; call Close to stop it.
func NewAgent(ownNode bpv7.EndpointID, store Store) *Agent {
	a := &Agent{
		ownNode: ownNode,
		store:   store,

		cmds:     make(chan func(), 256),
		closeSyn: make(chan struct{}),
		closeAck: make(chan struct{}),

		localBundles:  make(map[string][]StoredBundle),
		remoteBundles: make(map[string][]StoredBundle),

		pendingLocal:  make(map[string]StoredBundle),
		pendingRemote: make(map[string]StoredBundle),

		localConnections:  make(map[string]Outbox),
		remoteConnections: make(map[string]Outbox),

		remoteRoutes: make(map[string]Route),
	}

	go a.run()

	return a
}

func (a *Agent) log() *log.Entry {
	return log.WithField("bpa", a.ownNode.String())
}

func (a *Agent) run() {
	defer close(a.closeAck)

	for {
		select {
		case <-a.closeSyn:
			return
		case cmd := <-a.cmds:
			cmd()
		}
	}
}

// Close stops the Agent's run loop. Queued bundles are left as-is in the
// Store.
func (a *Agent) Close() error {
	close(a.closeSyn)
	<-a.closeAck
	return nil
}

// enqueue schedules f to run on the Agent's own goroutine, unblocking the
// caller immediately. Safe to call from inside a command already running on
// that goroutine, e.g. a Store callback triggered by a.store.Fragment.
func (a *Agent) enqueue(f func()) {
	a.cmds <- f
}

// Submit originates a new bundle and hands it to the queue-draining
// algorithm. dest is the bundle's destination; ownNode is always used as
// the source.
func (a *Agent) Submit(dest bpv7.EndpointID, payload []byte, lifetimeMs uint64, statusFlags bpv7.BundleControlFlags) error {
	primary := bpv7.NewPrimaryBlock(statusFlags, dest, a.ownNode, bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0), lifetimeMs)

	bndl, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{
		bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock(payload)),
	})
	if err != nil {
		return err
	}

	_, err = a.store.StoreNew(bndl, a.ownNode)
	return err
}

// OnBundleStored implements the Store Observer: spec.md section 4.C's
// OnBundleStored.
func (a *Agent) OnBundleStored(sb StoredBundle) {
	a.enqueue(func() { a.onBundleStored(sb) })
}

func (a *Agent) onBundleStored(sb StoredBundle) {
	dest := sb.Bundle.PrimaryBlock.Destination

	if dest.NodeID() == a.ownNode {
		key := dest.String()
		a.localBundles[key] = append(a.localBundles[key], sb)
		a.deliverLocal(key)
		return
	}

	if wantsStatusReport(sb.Bundle, bpv7.ReceivedBundle) {
		a.emitStatusReport(sb.Bundle, bpv7.ReceivedBundle, bpv7.NoInformation)
	}

	key := dest.NodeID().String()
	a.remoteBundles[key] = append(a.remoteBundles[key], sb)
	a.deliverRemote(key)
}

// OnBundleDelivered implements spec.md section 4.C's OnBundleDelivered.
func (a *Agent) OnBundleDelivered(endpoint bpv7.EndpointID, sb StoredBundle) {
	a.enqueue(func() {
		delete(a.pendingLocal, sb.ID.String())
		if wantsStatusReport(sb.Bundle, bpv7.DeliveredBundle) {
			a.emitStatusReport(sb.Bundle, bpv7.DeliveredBundle, bpv7.NoInformation)
		}
		_ = a.store.Delete(sb)
		a.deliverLocal(endpoint.String())
	})
}

// OnBundleDeliveryFailed implements spec.md section 4.C's
// OnBundleDeliveryFailed.
func (a *Agent) OnBundleDeliveryFailed(endpoint bpv7.EndpointID, sb StoredBundle) {
	a.enqueue(func() {
		delete(a.pendingLocal, sb.ID.String())
		key := endpoint.String()
		a.localBundles[key] = append([]StoredBundle{sb}, a.localBundles[key]...)
	})
}

// OnBundleForwarded implements spec.md section 4.C's OnBundleForwarded.
func (a *Agent) OnBundleForwarded(node bpv7.EndpointID, sb StoredBundle) {
	a.enqueue(func() {
		delete(a.pendingRemote, sb.ID.String())
		if wantsStatusReport(sb.Bundle, bpv7.ForwardedBundle) {
			a.emitStatusReport(sb.Bundle, bpv7.ForwardedBundle, bpv7.NoInformation)
		}
		_ = a.store.Delete(sb)
		a.deliverRemote(node.String())
	})
}

// OnBundleForwardingFailed implements spec.md section 4.C's
// OnBundleForwardingFailed.
func (a *Agent) OnBundleForwardingFailed(node bpv7.EndpointID, sb StoredBundle) {
	a.enqueue(func() {
		delete(a.pendingRemote, sb.ID.String())
		key := node.String()
		a.remoteBundles[key] = append([]StoredBundle{sb}, a.remoteBundles[key]...)
	})
}

// OnClientConnect implements spec.md section 4.C's OnClientConnect.
func (a *Agent) OnClientConnect(endpoint bpv7.EndpointID, outbox Outbox) {
	a.enqueue(func() {
		key := endpoint.String()
		a.localConnections[key] = outbox
		a.deliverLocal(key)
	})
}

// OnClientDisconnect unregisters a local application's outbox, e.g. when a
// listen subscription is cancelled (spec.md section 6's cancel-listen).
// Queued bundles for endpoint stay queued for the next OnClientConnect.
func (a *Agent) OnClientDisconnect(endpoint bpv7.EndpointID) {
	a.enqueue(func() {
		delete(a.localConnections, endpoint.String())
	})
}

// OnPeerConnect implements spec.md section 4.C's OnPeerConnect. nodeEndpoint
// must already be a node endpoint.
func (a *Agent) OnPeerConnect(nodeEndpoint bpv7.EndpointID, outbox Outbox) error {
	if nodeEndpoint.NodeID() != nodeEndpoint {
		return fmt.Errorf("%w: %v", ErrNotNodeEndpoint, nodeEndpoint)
	}

	a.enqueue(func() {
		key := nodeEndpoint.String()
		a.remoteConnections[key] = outbox
		a.deliverRemote(key)
	})
	return nil
}

// OnPeerDisconnect implements spec.md section 4.E's "On session close: call
// BPA's OnPeerDisconnect". In-flight pending-forward bundles for this peer
// are returned to the front of the queue, matching OnBundleForwardingFailed.
func (a *Agent) OnPeerDisconnect(nodeEndpoint bpv7.EndpointID) {
	a.enqueue(func() {
		key := nodeEndpoint.String()
		delete(a.remoteConnections, key)

		var requeued []StoredBundle
		for id, sb := range a.pendingRemote {
			if sb.Bundle.PrimaryBlock.Destination.NodeID() == nodeEndpoint {
				requeued = append(requeued, sb)
				delete(a.pendingRemote, id)
			}
		}
		a.remoteBundles[key] = append(requeued, a.remoteBundles[key]...)
	})
}

// OnRoutingTableUpdate implements spec.md section 4.C's
// OnRoutingTableUpdate.
func (a *Agent) OnRoutingTableUpdate(routes map[string]Route) {
	a.enqueue(func() {
		var changed []string
		for dest, route := range routes {
			if old, ok := a.remoteRoutes[dest]; !ok || old != route {
				changed = append(changed, dest)
			}
		}
		a.remoteRoutes = routes

		for _, dest := range changed {
			a.deliverRemote(dest)
		}
	})
}

// deliverLocal drains the local-delivery queue for endpoint key. Local
// consumers impose no size limit, so this is deliverRemote without the
// fragmentation branch.
func (a *Agent) deliverLocal(key string) {
	outbox, ok := a.localConnections[key]
	if !ok {
		return
	}

	queue := a.localBundles[key]
	visited := make(map[string]bool)

	for len(queue) > 0 {
		sb := queue[0]
		queue = queue[1:]

		if visited[sb.ID.String()] {
			queue = append([]StoredBundle{sb}, queue...)
			break
		}

		switch outbox.TrySend(sb) {
		case SendSuccess:
			a.pendingLocal[sb.ID.String()] = sb

		case SendFull:
			queue = append([]StoredBundle{sb}, queue...)
			a.localBundles[key] = queue
			return

		case SendClosed:
			queue = append([]StoredBundle{sb}, queue...)
			a.localBundles[key] = queue
			delete(a.localConnections, key)
			return
		}
	}

	a.localBundles[key] = queue
}

// deliverRemote drains the forwarding queue for node key, fragmenting
// oversized bundles per spec.md section 4.C.
func (a *Agent) deliverRemote(key string) {
	route, ok := a.remoteRoutes[key]
	if !ok {
		return
	}

	outbox, ok := a.remoteConnections[route.NextHop.String()]
	if !ok {
		return
	}

	maxSize := route.MaxSize
	if nextRoute, ok := a.remoteRoutes[route.NextHop.String()]; ok {
		maxSize = minOptional(maxSize, nextRoute.MaxSize)
	}

	queue := a.remoteBundles[key]
	visited := make(map[string]bool)

	for len(queue) > 0 {
		sb := queue[0]
		queue = queue[1:]

		if visited[sb.ID.String()] {
			queue = append([]StoredBundle{sb}, queue...)
			break
		}

		size := serializedSize(sb.Bundle)
		if maxSize != nil && size > *maxSize {
			if sb.Bundle.PrimaryBlock.BundleControlFlags.Has(bpv7.MustNotFragmented) {
				visited[sb.ID.String()] = true
				queue = append(queue, sb)
				continue
			}

			if _, err := a.store.Fragment(sb, *maxSize); err != nil {
				a.log().WithError(err).WithField("bundle", sb.Bundle.ID().String()).
					Debug("cannot fragment bundle to fit route MTU")
				visited[sb.ID.String()] = true
				queue = append(queue, sb)
				continue
			}

			// Fragments re-enter via OnBundleStored; B itself is gone.
			continue
		}

		updateBundleAge(&sb)

		switch outbox.TrySend(sb) {
		case SendSuccess:
			a.pendingRemote[sb.ID.String()] = sb

		case SendFull:
			queue = append([]StoredBundle{sb}, queue...)
			a.remoteBundles[key] = queue
			return

		case SendClosed:
			queue = append([]StoredBundle{sb}, queue...)
			a.remoteBundles[key] = queue
			delete(a.remoteConnections, route.NextHop.String())
			return
		}
	}

	a.remoteBundles[key] = queue
}

// updateBundleAge refreshes a present BundleAgeBlock's value just before a
// bundle is forwarded, for bundles created without an accurate clock
// (PrimaryBlock.CreationTimestamp.IsZeroTime()).
func updateBundleAge(sb *StoredBundle) {
	if !sb.Bundle.PrimaryBlock.CreationTimestamp.IsZeroTime() {
		return
	}

	cb, err := sb.Bundle.ExtensionBlock(bpv7.ExtBlockTypeBundleAgeBlock)
	if err != nil {
		return
	}

	ageBlock := cb.Value.(*bpv7.BundleAgeBlock)
	elapsed := uint64(time.Since(sb.Stored).Milliseconds())
	*ageBlock = *bpv7.NewBundleAgeBlock(ageBlock.Age() + elapsed)
}

// emitStatusReport builds and originates an administrative-record bundle
// reporting pos/reason for original, per spec.md section 4.C.
func (a *Agent) emitStatusReport(original bpv7.Bundle, pos bpv7.StatusInformationPos, reason bpv7.StatusReportReason) {
	if original.PrimaryBlock.BundleControlFlags.Has(bpv7.AdministrativeRecordPayload) {
		return
	}

	report, err := buildStatusReport(original, pos, reason, a.ownNode)
	if err != nil {
		a.log().WithError(err).Debug("failed to build status report")
		return
	}

	if _, err := a.store.StoreNew(report, a.ownNode); err != nil {
		a.log().WithError(err).Debug("failed to store status report")
	}
}

// minOptional returns the smaller of two optional bounds, treating nil as
// +infinity.
func minOptional(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a < *b:
		return a
	default:
		return b
	}
}

// serializedSize returns the CBOR-encoded byte length of b.
func serializedSize(b bpv7.Bundle) int {
	var buf bytes.Buffer
	if err := b.WriteBundle(&buf); err != nil {
		return 1 << 30
	}
	return buf.Len()
}
