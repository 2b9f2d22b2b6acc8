package dht

import "testing"

func TestKBucketUpdateInsertsNewPeer(t *testing.T) {
	kb := NewKBucket(3)
	p := NewPeerInfo(NewNodeId([]byte("peer-1")), "127.0.0.1:9001")
	kb.Update(p)

	if kb.Len() != 1 {
		t.Fatalf("expected 1 peer, got %d", kb.Len())
	}
	got, ok := kb.Get(p.Id)
	if !ok || got.Addr != p.Addr {
		t.Fatal("expected inserted peer to be retrievable")
	}
}

func TestKBucketUpdateMovesExistingToMostRecentEnd(t *testing.T) {
	kb := NewKBucket(3)
	p1 := NewPeerInfo(NewNodeId([]byte("peer-1")), "127.0.0.1:9001")
	p2 := NewPeerInfo(NewNodeId([]byte("peer-2")), "127.0.0.1:9002")
	kb.Update(p1)
	kb.Update(p2)
	kb.Update(p1) // refresh p1

	peers := kb.Peers()
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(peers))
	}
	if peers[len(peers)-1].Id != p1.Id {
		t.Fatal("expected refreshed peer to move to the most-recently-seen (last) position")
	}
}

func TestKBucketDropsNewPeerWhenFull(t *testing.T) {
	kb := NewKBucket(2)
	kb.Update(NewPeerInfo(NewNodeId([]byte("peer-1")), "127.0.0.1:9001"))
	kb.Update(NewPeerInfo(NewNodeId([]byte("peer-2")), "127.0.0.1:9002"))
	if !kb.IsFull() {
		t.Fatal("expected bucket to report full at capacity")
	}

	kb.Update(NewPeerInfo(NewNodeId([]byte("peer-3")), "127.0.0.1:9003"))
	if kb.Len() != 2 {
		t.Fatalf("expected a full bucket to drop a new peer, got %d entries", kb.Len())
	}
}

func TestKBucketRemove(t *testing.T) {
	kb := NewKBucket(3)
	p := NewPeerInfo(NewNodeId([]byte("peer-1")), "127.0.0.1:9001")
	kb.Update(p)

	if !kb.Remove(p.Id) {
		t.Fatal("expected Remove to report true for a present peer")
	}
	if !kb.IsEmpty() {
		t.Fatal("expected bucket to be empty after removing its only peer")
	}
	if kb.Remove(p.Id) {
		t.Fatal("expected Remove to report false for an already-removed peer")
	}
}
