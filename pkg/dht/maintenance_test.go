package dht

import (
	"context"
	"testing"
	"time"
)

func TestRunExpirySweepRemovesExpiredEntries(t *testing.T) {
	n := startNode(t)
	n.storage.Put("expires", NewStoredValue([]byte("v"), n.addr, false, time.Nanosecond))
	time.Sleep(5 * time.Millisecond)

	n.runExpirySweep()

	if n.storage.Len() != 0 {
		t.Fatalf("expected expiry sweep to remove the expired entry, len=%d", n.storage.Len())
	}
}

func TestRunHealthCheckEvictsUnreachablePeer(t *testing.T) {
	n := startNode(t)
	n.config.HealthCheck.MaxFailures = 1
	n.config.HealthCheck.Timeout = 200 * time.Millisecond

	dead := NewPeerInfo(NewNodeId([]byte("dead-peer")), "127.0.0.1:1") // port 1: nothing listens
	n.AddPeer(dead)

	n.runHealthCheck()

	if _, err := n.routingTable.GetPeer(dead.Id); err != ErrPeerNotFound {
		t.Fatalf("expected unreachable peer to be evicted after max_failures, got err=%v", err)
	}
}

func TestRunHealthCheckKeepsLivePeer(t *testing.T) {
	a := startNode(t)
	b := startNode(t)
	a.config.HealthCheck.Timeout = time.Second

	a.AddPeer(NewPeerInfo(b.id, b.addr))
	a.runHealthCheck()

	if _, err := a.routingTable.GetPeer(b.id); err != nil {
		t.Fatalf("expected a live peer to remain in the routing table, got err=%v", err)
	}
}

func TestRunReplicationRefreshSkipsReplicaEntries(t *testing.T) {
	a := startNode(t)
	b := startNode(t)
	a.config.Replication.Factor = 1

	a.AddPeer(NewPeerInfo(b.id, b.addr))

	// A replica entry (as if received via inbound Store) must not be
	// re-pushed during refresh — only originals are.
	a.storage.Put("replica-key", NewStoredValue([]byte("v"), a.addr, true, time.Hour))
	a.runReplicationRefresh()

	if _, ok := b.FindValue(context.Background(), []byte("replica-key")); ok {
		t.Fatal("expected replication refresh to skip replica-owned entries")
	}
}

func TestRunReplicationRefreshPushesOriginalEntries(t *testing.T) {
	a := startNode(t)
	b := startNode(t)
	a.config.Replication.Factor = 1

	a.AddPeer(NewPeerInfo(b.id, b.addr))

	a.storage.Put("original-key", NewStoredValue([]byte("v"), a.addr, false, time.Hour))
	a.runReplicationRefresh()

	if _, ok := b.FindValue(context.Background(), []byte("original-key")); !ok {
		t.Fatal("expected replication refresh to push originally-owned entries to known peers")
	}
}

func TestStartMaintenanceServiceIsIdempotent(t *testing.T) {
	n := startNode(t)
	n.StartMaintenanceService()
	n.StartMaintenanceService() // must not panic or double-start
}
