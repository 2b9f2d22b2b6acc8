package dht

import "sync/atomic"

// Metrics is a set of relaxed atomic counters tracking DHT activity.
// Snapshots are not atomic across fields — do not derive invariants from
// cross-field arithmetic taken at snapshot time (spec.md §9).
type Metrics struct {
	storeOps          uint64
	storeSuccess      uint64
	findValueOps      uint64
	findValueSuccess  uint64
	rpcRequests       uint64
	rpcFailures       uint64
	knownPeers        uint64
}

// NewMetrics returns a zeroed metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) incStoreOps()         { atomic.AddUint64(&m.storeOps, 1) }
func (m *Metrics) incStoreSuccess()     { atomic.AddUint64(&m.storeSuccess, 1) }
func (m *Metrics) incFindValueOps()     { atomic.AddUint64(&m.findValueOps, 1) }
func (m *Metrics) incFindValueSuccess() { atomic.AddUint64(&m.findValueSuccess, 1) }
func (m *Metrics) incRPCRequests()      { atomic.AddUint64(&m.rpcRequests, 1) }
func (m *Metrics) incRPCFailures()      { atomic.AddUint64(&m.rpcFailures, 1) }
func (m *Metrics) setKnownPeers(n uint64) { atomic.StoreUint64(&m.knownPeers, n) }

// recordStoreAttempt records a store operation and, if success, its
// success — mirroring the original's record_store_attempt helper so
// callers never increment one counter without the other.
func (m *Metrics) recordStoreAttempt(success bool) {
	m.incStoreOps()
	if success {
		m.incStoreSuccess()
	}
}

// recordFindAttempt is the find_value analogue of recordStoreAttempt.
func (m *Metrics) recordFindAttempt(success bool) {
	m.incFindValueOps()
	if success {
		m.incFindValueSuccess()
	}
}

// Stats is a point-in-time snapshot of Metrics plus the live storage size.
type Stats struct {
	StoreOps         uint64
	StoreSuccess     uint64
	FindValueOps     uint64
	FindValueSuccess uint64
	RPCRequests      uint64
	RPCFailures      uint64
	KnownPeers       uint64
	StorageSize      uint64
}

// Snapshot reads every counter independently; see the Metrics type doc
// note on cross-field consistency.
func (m *Metrics) Snapshot(storageSize int) Stats {
	return Stats{
		StoreOps:         atomic.LoadUint64(&m.storeOps),
		StoreSuccess:     atomic.LoadUint64(&m.storeSuccess),
		FindValueOps:     atomic.LoadUint64(&m.findValueOps),
		FindValueSuccess: atomic.LoadUint64(&m.findValueSuccess),
		RPCRequests:      atomic.LoadUint64(&m.rpcRequests),
		RPCFailures:      atomic.LoadUint64(&m.rpcFailures),
		KnownPeers:       atomic.LoadUint64(&m.knownPeers),
		StorageSize:      uint64(storageSize),
	}
}
