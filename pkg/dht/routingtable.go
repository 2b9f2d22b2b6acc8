package dht

import "sync"

// RoutingTable is a node's view of the network: 160 k-buckets indexed by
// shared-prefix length relative to the owning node's id.
type RoutingTable struct {
	self    NodeId
	buckets [BucketCount]*KBucket

	mu        sync.RWMutex
	peerCount int
}

// NewRoutingTable builds an empty table for a node with the given id and
// per-bucket capacity k.
func NewRoutingTable(self NodeId, k int) *RoutingTable {
	rt := &RoutingTable{self: self}
	for i := range rt.buckets {
		rt.buckets[i] = NewKBucket(k)
	}
	return rt
}

// AddPeer files a peer into its bucket. Peers equal to self are ignored,
// since BucketIndex is undefined for self-distance.
func (rt *RoutingTable) AddPeer(peer PeerInfo) {
	idx := BucketIndex(rt.self, peer.Id)
	if idx < 0 {
		return
	}

	before := rt.buckets[idx].Len()
	rt.buckets[idx].Update(peer)
	after := rt.buckets[idx].Len()

	if after != before {
		rt.mu.Lock()
		rt.peerCount += after - before
		rt.mu.Unlock()
	}
}

// RemovePeer evicts a peer by id from its bucket, used by the maintenance
// scheduler's health-check phase.
func (rt *RoutingTable) RemovePeer(id NodeId) bool {
	idx := BucketIndex(rt.self, id)
	if idx < 0 {
		return false
	}

	removed := rt.buckets[idx].Remove(id)
	if removed {
		rt.mu.Lock()
		rt.peerCount--
		rt.mu.Unlock()
	}
	return removed
}

// GetPeer looks up a peer by id, returning ErrPeerNotFound if absent.
func (rt *RoutingTable) GetPeer(id NodeId) (PeerInfo, error) {
	idx := BucketIndex(rt.self, id)
	if idx < 0 {
		return PeerInfo{}, ErrPeerNotFound
	}
	if p, ok := rt.buckets[idx].Get(id); ok {
		return p, nil
	}
	return PeerInfo{}, ErrPeerNotFound
}

// ClosestPeers collects every known peer, sorts ascending by XOR distance
// to target, and returns up to count of them.
func (rt *RoutingTable) ClosestPeers(target NodeId, count int) []PeerInfo {
	all := rt.AllPeers()

	// Lock-ordering note: bucket snapshots above are taken independently
	// (ascending index, the order spec.md's concurrency model requires
	// when multiple buckets must be visited), so no bucket lock is held
	// while sorting here.
	insertionSort(all, target)

	if count > len(all) {
		count = len(all)
	}
	return all[:count]
}

// insertionSort orders peers ascending by distance to target. The
// candidate set per call is bounded by total peer count (<= 160*k), so a
// simple stable sort is sufficient and keeps the comparator legible.
func insertionSort(peers []PeerInfo, target NodeId) {
	for i := 1; i < len(peers); i++ {
		for j := i; j > 0 && CompareDistance(target, peers[j].Id, peers[j-1].Id) < 0; j-- {
			peers[j], peers[j-1] = peers[j-1], peers[j]
		}
	}
}

// AllPeers returns every peer across every bucket, in bucket-index order.
func (rt *RoutingTable) AllPeers() []PeerInfo {
	out := make([]PeerInfo, 0, rt.Size())
	for i := 0; i < BucketCount; i++ {
		out = append(out, rt.buckets[i].Peers()...)
	}
	return out
}

// Size returns the total number of peers across all buckets.
func (rt *RoutingTable) Size() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.peerCount
}
