// Package dht implements the core Kademlia DHT engine: the identifier
// space and routing table, the pooled-TCP RPC transport, in-memory keyed
// storage with TTL, and the store/find_value/bootstrap/maintenance
// protocols. The CLI, REPL, and process startup that drive it live
// outside this package (see cmd/dht-node).
package dht

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/kaddht/node/pkg/config"
	"github.com/kaddht/node/pkg/logging"
)

// DhtNode is one participant in the overlay: it owns a routing table, a
// storage map, a connection pool, and a metrics object, all shared across
// concurrent inbound and outbound tasks.
type DhtNode struct {
	id     NodeId
	addr   string
	config *config.Config
	logger *logging.Logger

	routingTable *RoutingTable
	storage      *Storage
	pool         *ConnectionPool
	metrics      *Metrics

	listener net.Listener

	maintenanceOnce sync.Once
	stopMaintenance chan struct{}

	healthMu       sync.Mutex
	healthFailures map[NodeId]int
}

// New builds a node bound to addr (used both as the dial target peers
// will use and as the seed for this node's id), with cfg or
// config.Default() if nil.
func New(addr string, cfg *config.Config) *DhtNode {
	if cfg == nil {
		cfg = config.Default()
	}

	logger, err := logging.NewLogger("dht", logLevelFromString(cfg.Logging.Level), cfg.Logging.OutputFile)
	if err != nil {
		// Logging setup failure (e.g. an unwritable log path) should not
		// prevent the node from running; fall back to stdout.
		logger, _ = logging.NewLogger("dht", logging.INFO, "")
	}
	if cfg.Logging.MaxSizeMB > 0 {
		logger.SetMaxFileSize(int64(cfg.Logging.MaxSizeMB) * 1024 * 1024)
	}
	if cfg.Logging.MaxBackups > 0 {
		logger.SetMaxBackups(cfg.Logging.MaxBackups)
	}

	return &DhtNode{
		id:             NewNodeId([]byte(addr)),
		addr:           addr,
		config:         cfg,
		logger:         logger,
		routingTable:   NewRoutingTable(NewNodeId([]byte(addr)), cfg.KBucketSize),
		storage:        NewStorage(cfg.Storage.MaxEntries),
		pool:           NewConnectionPool(cfg.ConnectionPool.MaxConnectionsPerPeer, cfg.ConnectionPool.MaxIdleTime, cfg.ConnectionPool.ConnectTimeout),
		metrics:        NewMetrics(),
		stopMaintenance: make(chan struct{}),
		healthFailures: make(map[NodeId]int),
	}
}

func logLevelFromString(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.DEBUG
	case "warn":
		return logging.WARN
	case "error":
		return logging.ERROR
	default:
		return logging.INFO
	}
}

// Id returns this node's identifier.
func (n *DhtNode) Id() NodeId { return n.id }

// Addr returns this node's bind/dial address.
func (n *DhtNode) Addr() string { return n.addr }

// Serve binds a TCP listener at n.Addr() and runs the inbound
// request/response loop spec.md §4.6 describes: accept, read one frame,
// dispatch through handleRPC, write one frame, close. It blocks until ctx
// is cancelled or the listener errors.
func (n *DhtNode) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.addr)
	if err != nil {
		return fmt.Errorf("%w: listening on %s: %v", ErrIO, n.addr, err)
	}
	n.listener = ln
	n.logger.Info("listening", logging.Fields{"addr": n.addr, "id": n.id.String()})

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("%w: accept: %v", ErrIO, err)
			}
		}
		go n.serveConn(conn)
	}
}

func (n *DhtNode) serveConn(conn net.Conn) {
	defer conn.Close()

	req, err := readFrame(conn)
	if err != nil {
		n.logger.Debug("inbound frame read failed", logging.Fields{"error": err.Error()})
		return
	}

	resp := n.handleRPC(req)

	if err := writeFrame(conn, resp); err != nil {
		n.logger.Debug("inbound frame write failed", logging.Fields{"error": err.Error()})
	}
}

// Close stops the maintenance scheduler, the connection pool's cleaner,
// and the inbound listener.
func (n *DhtNode) Close() {
	select {
	case <-n.stopMaintenance:
	default:
		close(n.stopMaintenance)
	}
	n.pool.Stop()
	if n.listener != nil {
		n.listener.Close()
	}
}

// AddPeer files peer into the routing table and refreshes the
// known_peers metric.
func (n *DhtNode) AddPeer(peer PeerInfo) {
	n.routingTable.AddPeer(peer)
	n.metrics.setKnownPeers(uint64(n.routingTable.Size()))
}

// ListPeers returns every peer currently known, across all buckets.
func (n *DhtNode) ListPeers() []PeerInfo {
	return n.routingTable.AllPeers()
}

// GetStats returns a metrics snapshot including the live storage size.
func (n *DhtNode) GetStats() Stats {
	return n.metrics.Snapshot(n.storage.Len())
}

// Store writes key/value locally, then replicates to the replication
// factor's closest known peers. The operation succeeds iff the local
// write succeeds; replication outcomes are only observable via metrics.
func (n *DhtNode) Store(ctx context.Context, key, value []byte) error {
	sv := NewStoredValue(value, n.addr, false, n.config.Storage.DefaultTTL)
	err := n.storage.Put(string(key), sv)
	n.metrics.recordStoreAttempt(err == nil)
	if err != nil {
		return err
	}

	target := NewNodeId(key)
	peers := n.routingTable.ClosestPeers(target, n.config.Replication.Factor)
	n.replicateToPeers(ctx, key, value, peers)

	return nil
}

// replicateToPeers pushes a Store RPC to every peer, skipping self
// (counted as an automatic success since the local write already
// happened), bounded by operation_timeout per peer. It does not affect
// Store's return value — replication is eager-broadcast, best-effort.
func (n *DhtNode) replicateToPeers(ctx context.Context, key, value []byte, peers []PeerInfo) int {
	successes := 0
	for _, peer := range peers {
		if peer.Addr == n.addr {
			successes++
			continue
		}
		if _, err := n.sendRPC(ctx, peer.Addr, StoreRPC(key, value)); err == nil {
			successes++
		} else {
			n.logger.WithPeer(peer.Addr).Debug("replication store failed", logging.Fields{"error": err.Error()})
		}
	}
	return successes
}

// FindValue checks local storage first, then queries the replication
// factor's closest peers, returning the highest-version valid result.
func (n *DhtNode) FindValue(ctx context.Context, key []byte) ([]byte, bool) {
	if raw, ok := n.storage.Get(string(key)); ok {
		if sv, err := deserializeValue(raw); err == nil && sv.IsValid(nowUnix()) {
			n.metrics.recordFindAttempt(true)
			return sv.Data, true
		}
		n.storage.Remove(string(key))
	}

	target := NewNodeId(key)
	peers := n.routingTable.ClosestPeers(target, n.config.Replication.Factor)

	var best *StoredValue
	for _, peer := range peers {
		resp, err := n.sendRPC(ctx, peer.Addr, FindValueRPC(key))
		if err != nil {
			continue
		}
		if resp.Kind != KindFindValueResponse || !resp.Found {
			continue
		}
		sv, err := deserializeValue(resp.Value)
		if err != nil {
			n.logger.WithPeer(peer.Addr).Debug("find_value response deserialize failed", logging.Fields{"error": err.Error()})
			continue
		}
		if !sv.IsValid(nowUnix()) {
			continue
		}
		if best == nil || sv.Version > best.Version {
			best = &sv
		}
	}

	n.metrics.recordFindAttempt(best != nil)
	if best != nil {
		return best.Data, true
	}
	return nil, false
}

// Bootstrap pings each seed address; on a successful Pong it looks up
// this node's own id against the peer (FindNode) and files both the seed
// and every peer it returns into the routing table. Individual seed
// failures are logged and ignored; EmptyBootstrap is the only failure
// that stops the whole operation.
func (n *DhtNode) Bootstrap(ctx context.Context, seeds []string) error {
	if len(seeds) == 0 {
		return ErrEmptyBootstrap
	}

	for _, addr := range seeds {
		resp, err := n.sendRPC(ctx, addr, PingRPC())
		if err != nil || resp.Kind != KindPong {
			n.logger.WithPeer(addr).Warn("bootstrap ping failed")
			continue
		}

		seedID := NewNodeId([]byte(addr))
		n.AddPeer(NewPeerInfo(seedID, addr))

		resp, err = n.sendRPC(ctx, addr, FindNodeRPC(n.id))
		if err != nil || resp.Kind != KindFindNodeResponse {
			n.logger.WithPeer(addr).Warn("bootstrap find_node failed")
			continue
		}
		for _, peer := range resp.Peers {
			n.AddPeer(peer)
		}
	}

	return nil
}
