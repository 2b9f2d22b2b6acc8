package dht

import "testing"

func TestRoutingTableAddAndGetPeer(t *testing.T) {
	self := NewNodeId([]byte("self"))
	rt := NewRoutingTable(self, 20)

	p := NewPeerInfo(NewNodeId([]byte("peer-1")), "127.0.0.1:9001")
	rt.AddPeer(p)

	got, err := rt.GetPeer(p.Id)
	if err != nil {
		t.Fatalf("expected peer to be found, got error: %v", err)
	}
	if got.Addr != p.Addr {
		t.Fatalf("expected addr %s, got %s", p.Addr, got.Addr)
	}
	if rt.Size() != 1 {
		t.Fatalf("expected table size 1, got %d", rt.Size())
	}
}

func TestRoutingTableIgnoresSelf(t *testing.T) {
	self := NewNodeId([]byte("self"))
	rt := NewRoutingTable(self, 20)

	rt.AddPeer(NewPeerInfo(self, "127.0.0.1:9000"))
	if rt.Size() != 0 {
		t.Fatalf("expected self to never be filed into the routing table, got size %d", rt.Size())
	}
}

func TestRoutingTableGetPeerNotFound(t *testing.T) {
	rt := NewRoutingTable(NewNodeId([]byte("self")), 20)
	if _, err := rt.GetPeer(NewNodeId([]byte("nope"))); err != ErrPeerNotFound {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestRoutingTableRemovePeer(t *testing.T) {
	rt := NewRoutingTable(NewNodeId([]byte("self")), 20)
	p := NewPeerInfo(NewNodeId([]byte("peer-1")), "127.0.0.1:9001")
	rt.AddPeer(p)

	if !rt.RemovePeer(p.Id) {
		t.Fatal("expected RemovePeer to report true")
	}
	if rt.Size() != 0 {
		t.Fatalf("expected size 0 after removal, got %d", rt.Size())
	}
}

func TestRoutingTableClosestPeersOrderedByDistance(t *testing.T) {
	self := NewNodeId([]byte("self"))
	rt := NewRoutingTable(self, 20)

	var peers []PeerInfo
	for i := 0; i < 10; i++ {
		p := NewPeerInfo(NewNodeId([]byte{byte(i), byte(i * 3), byte(i * 5)}), "127.0.0.1:900"+string(rune('0'+i)))
		peers = append(peers, p)
		rt.AddPeer(p)
	}

	target := NewNodeId([]byte("lookup-target"))
	closest := rt.ClosestPeers(target, 5)
	if len(closest) != 5 {
		t.Fatalf("expected 5 results, got %d", len(closest))
	}

	for i := 1; i < len(closest); i++ {
		if CompareDistance(target, closest[i-1].Id, closest[i].Id) > 0 {
			t.Fatalf("expected closest peers sorted ascending by distance to target, violated at index %d", i)
		}
	}
}

func TestRoutingTableClosestPeersBoundedByCount(t *testing.T) {
	rt := NewRoutingTable(NewNodeId([]byte("self")), 20)
	rt.AddPeer(NewPeerInfo(NewNodeId([]byte("only-peer")), "127.0.0.1:9001"))

	closest := rt.ClosestPeers(NewNodeId([]byte("target")), 5)
	if len(closest) != 1 {
		t.Fatalf("expected count to be bounded by available peers, got %d", len(closest))
	}
}
