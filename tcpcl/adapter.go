// SPDX-License-Identifier: GPL-3.0-or-later

package tcpcl

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtnd7/bpa"
	"github.com/dtn7/dtnd7/bpv7"
)

// RecBundle pairs a received Bundle with the endpoint ID of the convergence
// layer it arrived on.
type RecBundle struct {
	Bundle   bpv7.Bundle
	Receiver bpv7.EndpointID
}

// Convergence is the common interface of both directions of a TCPCLv4
// convergence layer adapter.
type Convergence interface {
	// Start starts this adapter and might return an error and a boolean
	// indicating whether another Start should be tried later.
	Start() (error, bool)

	// Close signals this adapter to shut down.
	Close()

	// Address returns a unique address string identifying this adapter.
	Address() string

	// IsPermanent returns true if this adapter should not be removed after
	// failures, e.g. a statically configured peer.
	IsPermanent() bool
}

// ConvergenceReceiver is a Convergence which hands received bundles to a
// channel.
type ConvergenceReceiver interface {
	Convergence

	// Channel returns the channel of received bundles.
	Channel() chan RecBundle

	// GetEndpointID returns this node's own endpoint ID.
	GetEndpointID() bpv7.EndpointID
}

// ConvergenceSender is a Convergence which transmits bundles to a single
// remote peer.
type ConvergenceSender interface {
	Convergence

	// Send transmits a bundle to the peer. Finishes transmitting one bundle
	// before accepting the next.
	Send(bndl bpv7.Bundle) error

	// GetPeerEndpointID returns the peer's endpoint ID, once known.
	GetPeerEndpointID() bpv7.EndpointID
}

// ListenerAdapter wraps a Listener as a ConvergenceReceiver, surfacing every
// bundle received on any inbound session through a single Channel.
type ListenerAdapter struct {
	listener  *Listener
	nodeID    bpv7.EndpointID
	permanent bool

	recv       chan RecBundle
	peers      chan *Session
	peerClosed chan *Session

	mu       sync.Mutex
	sessions []*Session

	closeSyn chan struct{}
}

// NewListenerAdapter creates a ConvergenceReceiver listening on address.
func NewListenerAdapter(address string, nodeID bpv7.EndpointID, tlsConfig *tls.Config, permanent bool) *ListenerAdapter {
	return &ListenerAdapter{
		listener:  NewListener(address, nodeID, tlsConfig),
		nodeID:    nodeID,
		permanent: permanent,

		recv:       make(chan RecBundle, 32),
		peers:      make(chan *Session, 8),
		peerClosed: make(chan *Session, 8),

		closeSyn: make(chan struct{}),
	}
}

// Start implements Convergence.
func (la *ListenerAdapter) Start() (error, bool) {
	if err := la.listener.Start(); err != nil {
		return err, true
	}

	go la.serve()

	return nil, false
}

func (la *ListenerAdapter) serve() {
	for {
		select {
		case <-la.closeSyn:
			return

		case sess, ok := <-la.listener.Sessions():
			if !ok {
				return
			}

			la.mu.Lock()
			la.sessions = append(la.sessions, sess)
			la.mu.Unlock()

			la.peers <- sess
			go la.drain(sess)
		}
	}
}

func (la *ListenerAdapter) drain(sess *Session) {
	defer func() { la.peerClosed <- sess }()

	for {
		select {
		case b, ok := <-sess.Bundles():
			if !ok {
				return
			}
			la.recv <- RecBundle{Bundle: b, Receiver: la.nodeID}

		case err, ok := <-sess.Errors():
			if !ok {
				return
			}
			log.WithError(err).WithField("cla", la.Address()).Debug("inbound session failed")
			return
		}
	}
}

// Channel implements ConvergenceReceiver.
func (la *ListenerAdapter) Channel() chan RecBundle {
	return la.recv
}

// Peers returns every inbound Session as soon as it is accepted and
// established, so a caller can register it as a forwarding peer (spec.md
// section 4.E), in addition to the bundles it receives being fanned into
// Channel.
func (la *ListenerAdapter) Peers() <-chan *Session {
	return la.peers
}

// PeerClosed reports a previously accepted Session once its drain loop has
// exited, so a caller can unregister it as a forwarding peer.
func (la *ListenerAdapter) PeerClosed() <-chan *Session {
	return la.peerClosed
}

// GetEndpointID implements ConvergenceReceiver.
func (la *ListenerAdapter) GetEndpointID() bpv7.EndpointID {
	return la.nodeID
}

// Close implements Convergence.
func (la *ListenerAdapter) Close() {
	close(la.closeSyn)
	_ = la.listener.Close()

	la.mu.Lock()
	defer la.mu.Unlock()
	for _, sess := range la.sessions {
		_ = sess.Close()
	}
}

// Address implements Convergence.
func (la *ListenerAdapter) Address() string {
	return la.listener.String()
}

// IsPermanent implements Convergence.
func (la *ListenerAdapter) IsPermanent() bool {
	return la.permanent
}

// DialAdapter wraps an outbound Session as both a ConvergenceReceiver and
// ConvergenceSender for a single configured peer. Forwarded bundles have
// their Previous Node Block rewritten to this node's own endpoint ID before
// transmission, per RFC 9171 section 4.4.1.
type DialAdapter struct {
	address   string
	nodeID    bpv7.EndpointID
	tlsConfig *tls.Config
	permanent bool

	recv chan RecBundle

	mu   sync.Mutex
	sess *Session

	closeSyn chan struct{}
}

// NewDialAdapter creates a ConvergenceSender/ConvergenceReceiver dialing
// address. permanent marks a statically configured peer that should be
// retried rather than dropped after a failed Start.
func NewDialAdapter(address string, nodeID bpv7.EndpointID, tlsConfig *tls.Config, permanent bool) *DialAdapter {
	return &DialAdapter{
		address:   address,
		nodeID:    nodeID,
		tlsConfig: tlsConfig,
		permanent: permanent,

		recv: make(chan RecBundle, 32),

		closeSyn: make(chan struct{}),
	}
}

// Start implements Convergence.
func (da *DialAdapter) Start() (error, bool) {
	sess, err := Dial(da.address, da.nodeID, da.tlsConfig)
	if err != nil {
		return err, da.permanent
	}

	da.mu.Lock()
	da.sess = sess
	da.mu.Unlock()

	go da.drain(sess)

	return nil, false
}

func (da *DialAdapter) drain(sess *Session) {
	defer close(da.recv)

	for {
		select {
		case <-da.closeSyn:
			return

		case b, ok := <-sess.Bundles():
			if !ok {
				return
			}
			da.recv <- RecBundle{Bundle: b, Receiver: da.nodeID}

		case err, ok := <-sess.Errors():
			if !ok {
				return
			}
			log.WithError(err).WithField("cla", da.Address()).Debug("outbound session failed")
			return
		}
	}
}

// Channel implements ConvergenceReceiver.
func (da *DialAdapter) Channel() chan RecBundle {
	return da.recv
}

// GetEndpointID implements ConvergenceReceiver.
func (da *DialAdapter) GetEndpointID() bpv7.EndpointID {
	return da.nodeID
}

// GetPeerEndpointID implements ConvergenceSender.
func (da *DialAdapter) GetPeerEndpointID() bpv7.EndpointID {
	da.mu.Lock()
	defer da.mu.Unlock()

	if da.sess == nil {
		return bpv7.EndpointID{}
	}
	return da.sess.PeerNodeID()
}

// Send implements ConvergenceSender. The bundle's Previous Node Block is
// rewritten to this node's endpoint ID before the bundle is queued for
// transmission.
func (da *DialAdapter) Send(bndl bpv7.Bundle) error {
	da.mu.Lock()
	sess := da.sess
	da.mu.Unlock()

	if sess == nil {
		return fmt.Errorf("tcpcl: session to %s is not established", da.address)
	}

	rewritePreviousNodeBlock(&bndl, da.nodeID)

	return <-sess.Send(bndl)
}

// rewritePreviousNodeBlock replaces any existing Previous Node Block with one
// carrying ownID, or adds one if the bundle did not carry one already. This
// lets every downstream hop learn the last relay a bundle passed through,
// even across nodes that never populated this optional block.
func rewritePreviousNodeBlock(bndl *bpv7.Bundle, ownID bpv7.EndpointID) {
	prevNodeBlock := bpv7.NewCanonicalBlock(0, 0, bpv7.NewPreviousNodeBlock(ownID))

	if existing, err := bndl.ExtensionBlock(bpv7.ExtBlockTypePreviousNodeBlock); err == nil {
		filtered := make([]bpv7.CanonicalBlock, 0, len(bndl.CanonicalBlocks))
		for _, cb := range bndl.CanonicalBlocks {
			if cb.BlockNumber == existing.BlockNumber && cb.Value.BlockTypeCode() == bpv7.ExtBlockTypePreviousNodeBlock {
				continue
			}
			filtered = append(filtered, cb)
		}
		bndl.CanonicalBlocks = filtered
	}

	bndl.AddExtensionBlock(prevNodeBlock)
}

// Close implements Convergence.
func (da *DialAdapter) Close() {
	close(da.closeSyn)

	da.mu.Lock()
	sess := da.sess
	da.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}
}

// Address implements Convergence.
func (da *DialAdapter) Address() string {
	return fmt.Sprintf("tcpcl://%s", da.address)
}

// IsPermanent implements Convergence.
func (da *DialAdapter) IsPermanent() bool {
	return da.permanent
}

// RetryDelay is the backoff a caller should apply before retrying a
// permanent Convergence adapter after a failed Start, mirroring the restart
// delay used by statically configured convergence layers.
const RetryDelay = 10 * time.Second

// peerSender is the blocking send capability a PeerOutbox needs: the same
// shape as ConvergenceSender.Send, satisfied directly by DialAdapter and, by
// wrapping in SessionSender, a *Session a ListenerAdapter accepted.
type peerSender interface {
	Send(b bpv7.Bundle) error
}

// SessionSender adapts a *Session accepted by a ListenerAdapter to the same
// blocking Send(bpv7.Bundle) error contract ConvergenceSender and
// PeerOutbox expect, since *Session.Send itself reports a transfer's
// outcome on a channel instead.
type SessionSender struct {
	Session *Session
}

// Send implements peerSender.
func (s SessionSender) Send(b bpv7.Bundle) error {
	rewritePreviousNodeBlock(&b, s.Session.nodeID)
	return <-s.Session.Send(b)
}

// PeerOutbox adapts a session's blocking Send into a bpa.Outbox, running the
// translation spec.md section 4.E assigns to the convergence-layer adapter:
// a completed outbound transfer becomes OnBundleForwarded, a refused or
// otherwise failed one becomes OnBundleForwardingFailed. Queued sends are
// drained one at a time, matching the session's single-outbound-transfer
// slot.
type PeerOutbox struct {
	agent  *bpa.Agent
	node   bpv7.EndpointID
	sender peerSender

	ch     chan bpa.StoredBundle
	closed chan struct{}
}

// NewPeerOutbox creates a PeerOutbox reporting outbound transfer outcomes on
// agent for node, sending over sender.
func NewPeerOutbox(agent *bpa.Agent, node bpv7.EndpointID, sender peerSender) *PeerOutbox {
	o := &PeerOutbox{
		agent:  agent,
		node:   node,
		sender: sender,

		ch:     make(chan bpa.StoredBundle, 1),
		closed: make(chan struct{}),
	}

	go o.run()

	return o
}

// TrySend implements bpa.Outbox.
func (o *PeerOutbox) TrySend(sb bpa.StoredBundle) bpa.SendResult {
	select {
	case <-o.closed:
		return bpa.SendClosed
	default:
	}

	select {
	case o.ch <- sb:
		return bpa.SendSuccess
	default:
		return bpa.SendFull
	}
}

func (o *PeerOutbox) run() {
	for {
		select {
		case <-o.closed:
			return

		case sb := <-o.ch:
			if err := o.sender.Send(sb.Bundle); err != nil {
				log.WithError(err).WithField("bundle", sb.Bundle.ID().String()).
					WithField("peer", o.node.String()).Debug("outbound transfer failed")
				o.agent.OnBundleForwardingFailed(o.node, sb)
			} else {
				o.agent.OnBundleForwarded(o.node, sb)
			}
		}
	}
}

// Close stops this outbox's drain loop. Safe to call at most once.
func (o *PeerOutbox) Close() {
	close(o.closed)
}
