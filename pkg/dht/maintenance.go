package dht

import (
	"context"
	"time"

	"github.com/kaddht/node/pkg/logging"
)

// StartMaintenanceService launches the background ticker that drives
// expiry, health-checking, and replication refresh. It is idempotent —
// calling it more than once on the same node has no additional effect.
// Grounded on the teacher's cmd/discovery/main.go startCleanupTasks and
// original_source/src/dht/replication.rs's periodic refresh loop.
func (n *DhtNode) StartMaintenanceService() {
	n.maintenanceOnce.Do(func() {
		n.pool.StartCleaner(n.config.ConnectionPool.MaxIdleTime)
		go n.maintenanceLoop()
	})
}

func (n *DhtNode) maintenanceLoop() {
	ticker := time.NewTicker(n.config.MaintenanceInterval)
	defer ticker.Stop()

	lastReplication := time.Now()

	for {
		select {
		case <-n.stopMaintenance:
			return
		case <-ticker.C:
			n.runExpirySweep()
			n.runHealthCheck()

			if time.Since(lastReplication) >= n.config.Replication.CheckInterval {
				n.runReplicationRefresh()
				lastReplication = time.Now()
			}
		}
	}
}

// runExpirySweep removes every expired entry from local storage.
func (n *DhtNode) runExpirySweep() {
	removed := n.storage.RemoveExpired()
	if removed > 0 {
		n.logger.Debug("expired entries swept", logging.Fields{"count": removed})
	}
}

// runHealthCheck pings every known peer, evicting a peer from the routing
// table once its consecutive failure count reaches health_check.max_failures
// and resetting the counter (and touching LastSeen) on a successful Pong.
func (n *DhtNode) runHealthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), n.config.HealthCheck.Timeout)
	defer cancel()

	for _, peer := range n.routingTable.AllPeers() {
		resp, err := n.sendRPC(ctx, peer.Addr, PingRPC())

		n.healthMu.Lock()
		if err != nil || resp.Kind != KindPong {
			n.healthFailures[peer.Id]++
			failures := n.healthFailures[peer.Id]
			n.healthMu.Unlock()

			if failures >= n.config.HealthCheck.MaxFailures {
				n.routingTable.RemovePeer(peer.Id)
				n.healthMu.Lock()
				delete(n.healthFailures, peer.Id)
				n.healthMu.Unlock()
				n.logger.WithPeer(peer.Addr).Warn("peer evicted after repeated health-check failures", logging.Fields{"failures": failures})
			}
			continue
		}

		delete(n.healthFailures, peer.Id)
		n.healthMu.Unlock()
		n.routingTable.AddPeer(peer.Touch())
	}

	n.metrics.setKnownPeers(uint64(n.routingTable.Size()))
}

// runReplicationRefresh re-pushes every locally-originated (non-replica)
// key to its current replication_factor closest peers, so replicas stay
// current as the routing table's view of the network changes.
func (n *DhtNode) runReplicationRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), n.config.OperationTimeout)
	defer cancel()

	for _, key := range n.storage.Keys() {
		raw, ok := n.storage.Get(key)
		if !ok {
			continue
		}
		sv, err := deserializeValue(raw)
		if err != nil || sv.IsReplica {
			continue
		}

		target := NewNodeId([]byte(key))
		peers := n.routingTable.ClosestPeers(target, n.config.Replication.Factor)
		n.replicateToPeers(ctx, []byte(key), sv.Data, peers)
	}
}
