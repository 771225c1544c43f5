// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtnd7/agent"
	"github.com/dtn7/dtnd7/bpa"
	"github.com/dtn7/dtnd7/bpv7"
	"github.com/dtn7/dtnd7/store/badger"
	"github.com/dtn7/dtnd7/tcpcl"
)

// waitSigint blocks the current goroutine until a SIGINT appears.
func waitSigint() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	<-sig
}

// deferredObserver forwards OnBundleStored to agent once it is set,
// breaking the construction cycle between a bpa.Store (which needs an
// Observer up front) and the bpa.Agent that will serve as one.
type deferredObserver struct {
	agent *bpa.Agent
}

func (o *deferredObserver) OnBundleStored(sb bpa.StoredBundle) {
	o.agent.OnBundleStored(sb)
}

func newStore(conf storeConf, obs bpa.Observer) (bpa.Store, func() error, error) {
	switch conf.Backend {
	case "", "memory":
		return bpa.NewMemoryStore(obs), func() error { return nil }, nil

	case "badger":
		st, err := badger.NewStore(conf.Directory, obs)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil

	default:
		log.WithField("backend", conf.Backend).Fatal("unknown store.backend")
		return nil, nil, nil
	}
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s configuration.toml", os.Args[0])
	}

	conf, err := loadConfig(os.Args[1])
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	parseLogging(conf.Logging)

	nodeID, err := bpv7.NewEndpointID(conf.Core.NodeId)
	if err != nil {
		log.WithError(err).Fatal("core.node-id does not parse")
	}

	obs := &deferredObserver{}
	store, closeStore, err := newStore(conf.Store, obs)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer closeStore()

	agentImpl := bpa.NewAgent(nodeID, store)
	obs.agent = agentImpl
	defer agentImpl.Close()

	convAgent := agent.NewConvergenceAgent(agentImpl, store, nodeID)
	routingAgent := agent.NewRoutingAgent(agentImpl)

	if routes, err := parseRouting(conf.Routing); err != nil {
		log.WithError(err).Fatal("failed to parse static routing table")
	} else {
		keyed := make(map[bpv7.EndpointID]bpa.Route, len(routes))
		for dest, r := range routes {
			keyed[dest] = bpa.Route{NextHop: r.nextHop, MaxSize: r.maxSize}
		}
		routingAgent.UpdateRoutes(keyed)
	}

	for _, l := range conf.Listen {
		tlsConfig, err := parseTLS(l.TLS)
		if err != nil {
			log.WithError(err).WithField("listen", l.Endpoint).Fatal("failed to load listener TLS config")
		}

		la := tcpcl.NewListenerAdapter(l.Endpoint, nodeID, tlsConfig, true)
		go runListener(la, convAgent, agentImpl)
	}

	for _, p := range conf.Peer {
		tlsConfig, err := parseTLS(p.TLS)
		if err != nil {
			log.WithError(err).WithField("peer", p.Endpoint).Fatal("failed to load peer TLS config")
		}

		// p.Node is advisory only; the peer's actual node ID is learned from
		// its SESS_INIT and that is what RegisterPeer uses.
		da := tcpcl.NewDialAdapter(p.Endpoint, nodeID, tlsConfig, p.Permanent)
		go runPeer(da, convAgent, agentImpl)
	}

	log.WithField("node-id", nodeID.String()).Info("dtnd7 started")
	waitSigint()
	log.Info("shutting down")
}
