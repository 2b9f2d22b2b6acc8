package dht

import "sync"

// KBucket holds up to maxSize peers that all share the same bucket index
// relative to the owning node, ordered least-recently-seen first (the
// most recently seen peer is the last element).
//
// Update's full-bucket behavior follows the teacher's and the original
// implementation's choice: a new peer is simply dropped rather than
// evicting the least-recently-seen entry. A production Kademlia would
// ping the LRU peer first and evict only if it is unresponsive — this
// node implements that path separately, in the maintenance scheduler's
// health-check phase (see maintenance.go), rather than inside Update.
type KBucket struct {
	mu    sync.RWMutex
	peers []PeerInfo
	max   int
}

// NewKBucket creates an empty bucket with the given capacity (k).
func NewKBucket(max int) *KBucket {
	return &KBucket{peers: make([]PeerInfo, 0, max), max: max}
}

// Update inserts or refreshes a peer. An existing entry (by Id) is removed
// and re-appended at the end (the most-recently-seen position); a new
// entry is appended only if the bucket has room.
func (kb *KBucket) Update(peer PeerInfo) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for i, p := range kb.peers {
		if p.Id == peer.Id {
			kb.peers = append(kb.peers[:i], kb.peers[i+1:]...)
			kb.peers = append(kb.peers, peer)
			return
		}
	}

	if len(kb.peers) >= kb.max {
		return
	}
	kb.peers = append(kb.peers, peer)
}

// Remove drops a peer by id, reporting whether it was present.
func (kb *KBucket) Remove(id NodeId) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for i, p := range kb.peers {
		if p.Id == id {
			kb.peers = append(kb.peers[:i], kb.peers[i+1:]...)
			return true
		}
	}
	return false
}

// Peers returns a snapshot of every peer currently in the bucket, ordered
// least-recently-seen first.
func (kb *KBucket) Peers() []PeerInfo {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]PeerInfo, len(kb.peers))
	copy(out, kb.peers)
	return out
}

// Get returns the peer with the given id, if present.
func (kb *KBucket) Get(id NodeId) (PeerInfo, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	for _, p := range kb.peers {
		if p.Id == id {
			return p, true
		}
	}
	return PeerInfo{}, false
}

// Len returns the number of peers currently held.
func (kb *KBucket) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.peers)
}

// IsEmpty reports whether the bucket holds no peers.
func (kb *KBucket) IsEmpty() bool {
	return kb.Len() == 0
}

// IsFull reports whether the bucket has reached its capacity.
func (kb *KBucket) IsFull() bool {
	return kb.Len() >= kb.max
}
