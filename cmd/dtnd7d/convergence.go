// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtnd7/agent"
	"github.com/dtn7/dtnd7/bpa"
	"github.com/dtn7/dtnd7/tcpcl"
)

// runListener starts la and, for as long as it runs, registers every
// accepted session as a forwarding peer and feeds every bundle it receives
// to convAgent, implementing spec.md section 4.E for the listening side.
func runListener(la *tcpcl.ListenerAdapter, convAgent *agent.ConvergenceAgent, agentImpl *bpa.Agent) {
	if err, _ := la.Start(); err != nil {
		log.WithError(err).WithField("cla", la.Address()).Error("listener failed to start")
		return
	}

	go func() {
		for sess := range la.Peers() {
			peer := sess.PeerNodeID()
			outbox := tcpcl.NewPeerOutbox(agentImpl, peer, tcpcl.SessionSender{Session: sess})

			if err := convAgent.RegisterPeer(peer, outbox); err != nil {
				log.WithError(err).WithField("peer", peer.String()).Warn("rejecting inbound session")
				outbox.Close()
				_ = sess.Close()
			}
		}
	}()

	go func() {
		for sess := range la.PeerClosed() {
			convAgent.UnregisterPeer(sess.PeerNodeID())
		}
	}()

	for rb := range la.Channel() {
		convAgent.InboundParsedBundle(rb.Bundle)
	}
}

// runPeer dials da in a loop — retrying on failure if da.IsPermanent() —
// registers it as a forwarding peer once established, and feeds every
// bundle it receives to convAgent, implementing spec.md section 4.E for the
// dialing side. Returns when the dial loop gives up, or once the established
// session ends, including through da.Close.
func runPeer(da *tcpcl.DialAdapter, convAgent *agent.ConvergenceAgent, agentImpl *bpa.Agent) {
	for {
		err, retry := da.Start()
		if err != nil {
			log.WithError(err).WithField("cla", da.Address()).Warn("failed to establish outbound session")
			if !retry {
				return
			}
			time.Sleep(tcpcl.RetryDelay)
			continue
		}
		break
	}

	peer := da.GetPeerEndpointID()
	outbox := tcpcl.NewPeerOutbox(agentImpl, peer, da)
	defer outbox.Close()

	if err := convAgent.RegisterPeer(peer, outbox); err != nil {
		log.WithError(err).WithField("peer", peer.String()).Error("dialed peer is not a node endpoint")
		da.Close()
		return
	}
	defer convAgent.UnregisterPeer(peer)

	for rb := range da.Channel() {
		convAgent.InboundParsedBundle(rb.Bundle)
	}
}
