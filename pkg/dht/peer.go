package dht

import "time"

// PeerInfo describes a peer known to this node's routing table.
// Equality is by Id; LastSeen is the only field ever mutated in place.
type PeerInfo struct {
	Id       NodeId
	Addr     string // host:port, dialable with net.Dial("tcp", ...)
	LastSeen int64  // unix seconds
}

// NewPeerInfo builds a PeerInfo freshly observed at the current time.
func NewPeerInfo(id NodeId, addr string) PeerInfo {
	return PeerInfo{Id: id, Addr: addr, LastSeen: time.Now().Unix()}
}

// Touch returns a copy of p with LastSeen refreshed to now.
func (p PeerInfo) Touch() PeerInfo {
	p.LastSeen = time.Now().Unix()
	return p
}
