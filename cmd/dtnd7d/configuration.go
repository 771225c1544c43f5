// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/dtnd7/bpv7"
)

// tomlConfig describes this daemon's standalone TOML configuration file.
// Config loading is named out of scope for the agent library itself
// (spec.md section 1); this struct and its parsing exist only at this
// binary's edge.
type tomlConfig struct {
	Core    coreConf
	Logging logConf
	Store   storeConf
	Listen  []listenConf
	Peer    []peerConf
	Routing []routeConf
}

// coreConf describes the Core-configuration block.
type coreConf struct {
	NodeId string `toml:"node-id"`
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// storeConf selects and configures the bpa.Store backend.
type storeConf struct {
	// Backend is "memory" (the default, if empty) or "badger".
	Backend string
	// Directory is the badgerhold database's parent directory, required
	// when Backend is "badger".
	Directory string
}

// tlsConf describes an optional in-band TLS upgrade for a Listen or Peer
// entry.
type tlsConf struct {
	Cert string
	Key  string
}

// listenConf describes one inbound TCPCLv4 Listener.
type listenConf struct {
	Endpoint string
	TLS      tlsConf
}

// peerConf describes one statically configured outbound TCPCLv4 peer.
type peerConf struct {
	Node      string
	Endpoint  string
	Permanent bool
	TLS       tlsConf
}

// routeConf describes one static routing-oracle entry, since spec.md names
// the routing oracle an external collaborator but this binary has none
// wired in by default; a static table keeps the daemon usable standalone.
type routeConf struct {
	Destination string
	NextHop     string
	MaxSize     int `toml:"max-size"`
}

func parseLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("failed to set log level, please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("unknown logging format")
	}
}

// parseTLS loads conf's certificate, or returns a nil *tls.Config if no
// certificate was configured.
func parseTLS(conf tlsConf) (*tls.Config, error) {
	if conf.Cert == "" && conf.Key == "" {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(conf.Cert, conf.Key)
	if err != nil {
		return nil, fmt.Errorf("loading TLS keypair: %w", err)
	}

	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// parseRouting turns a static routing table into the keyed map
// bpa.Agent.OnRoutingTableUpdate/agent.RoutingAgent.UpdateRoutes expects.
func parseRouting(conf []routeConf) (map[bpv7.EndpointID]routeEntry, error) {
	routes := make(map[bpv7.EndpointID]routeEntry, len(conf))

	for _, r := range conf {
		dest, err := bpv7.NewEndpointID(r.Destination)
		if err != nil {
			return nil, fmt.Errorf("routing.destination %q: %w", r.Destination, err)
		}
		nextHop, err := bpv7.NewEndpointID(r.NextHop)
		if err != nil {
			return nil, fmt.Errorf("routing.next-hop %q: %w", r.NextHop, err)
		}

		entry := routeEntry{nextHop: nextHop}
		if r.MaxSize > 0 {
			size := r.MaxSize
			entry.maxSize = &size
		}
		routes[dest] = entry
	}

	return routes, nil
}

// routeEntry is the parsed form of one routeConf, ahead of conversion into
// bpa.Route (which this package does not import directly to keep
// configuration.go free of the wiring it feeds).
type routeEntry struct {
	nextHop bpv7.EndpointID
	maxSize *int
}

// loadConfig decodes filename into a tomlConfig and validates the pieces
// this binary needs eagerly (node ID, store backend directory).
func loadConfig(filename string) (tomlConfig, error) {
	var conf tomlConfig
	if _, err := toml.DecodeFile(filename, &conf); err != nil {
		return tomlConfig{}, err
	}

	if conf.Core.NodeId == "" {
		return tomlConfig{}, fmt.Errorf("core.node-id is empty")
	}

	if conf.Store.Backend == "badger" && conf.Store.Directory == "" {
		return tomlConfig{}, fmt.Errorf("store.directory is required for the badger backend")
	}

	return conf, nil
}
