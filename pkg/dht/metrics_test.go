package dht

import "testing"

func TestMetricsRecordStoreAttempt(t *testing.T) {
	m := NewMetrics()
	m.recordStoreAttempt(true)
	m.recordStoreAttempt(false)

	s := m.Snapshot(0)
	if s.StoreOps != 2 {
		t.Fatalf("expected 2 store ops, got %d", s.StoreOps)
	}
	if s.StoreSuccess != 1 {
		t.Fatalf("expected 1 successful store, got %d", s.StoreSuccess)
	}
}

func TestMetricsRecordFindAttempt(t *testing.T) {
	m := NewMetrics()
	m.recordFindAttempt(true)

	s := m.Snapshot(0)
	if s.FindValueOps != 1 || s.FindValueSuccess != 1 {
		t.Fatalf("expected matching find op/success counters, got %+v", s)
	}
}

func TestMetricsSnapshotIncludesStorageSize(t *testing.T) {
	m := NewMetrics()
	s := m.Snapshot(42)
	if s.StorageSize != 42 {
		t.Fatalf("expected storage size 42, got %d", s.StorageSize)
	}
}

func TestMetricsKnownPeersTracksLatestSet(t *testing.T) {
	m := NewMetrics()
	m.setKnownPeers(3)
	m.setKnownPeers(7)
	if s := m.Snapshot(0); s.KnownPeers != 7 {
		t.Fatalf("expected known_peers to reflect the latest set value, got %d", s.KnownPeers)
	}
}
