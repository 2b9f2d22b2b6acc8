package dht

import (
	"context"
	"net"
	"testing"
	"time"
)

// echoListener accepts connections and holds them open, reading and
// discarding whatever arrives, until the listener is closed. Good enough
// to exercise pool dial/reuse/cap behavior without a real DHT peer.
func echoListener(t *testing.T) (addr string, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				buf := make([]byte, 4096)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestConnectionPoolDialsAndReleases(t *testing.T) {
	addr, closeFn := echoListener(t)
	defer closeFn()

	pool := NewConnectionPool(2, time.Minute, time.Second)
	defer pool.Stop()

	ctx := context.Background()
	conn, err := pool.GetConnection(ctx, addr)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	conn.Release()

	if pool.idleCount(addr) != 1 {
		t.Fatalf("expected 1 idle connection after release, got %d", pool.idleCount(addr))
	}
}

func TestConnectionPoolReusesIdleConnection(t *testing.T) {
	addr, closeFn := echoListener(t)
	defer closeFn()

	pool := NewConnectionPool(2, time.Minute, time.Second)
	defer pool.Stop()

	ctx := context.Background()
	first, err := pool.GetConnection(ctx, addr)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	underlying := first.Conn
	first.Release()

	second, err := pool.GetConnection(ctx, addr)
	if err != nil {
		t.Fatalf("GetConnection (reuse) failed: %v", err)
	}
	defer second.Release()

	if second.Conn != underlying {
		t.Fatal("expected the second GetConnection to reuse the released connection")
	}
}

func TestConnectionPoolDiscardClosesConnection(t *testing.T) {
	addr, closeFn := echoListener(t)
	defer closeFn()

	pool := NewConnectionPool(2, time.Minute, time.Second)
	defer pool.Stop()

	conn, err := pool.GetConnection(context.Background(), addr)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	conn.Discard()

	if pool.idleCount(addr) != 0 {
		t.Fatal("expected a discarded connection not to be parked as idle")
	}
}

func TestConnectionPoolBlocksAtCapacity(t *testing.T) {
	addr, closeFn := echoListener(t)
	defer closeFn()

	pool := NewConnectionPool(1, time.Minute, time.Second)
	defer pool.Stop()

	first, err := pool.GetConnection(context.Background(), addr)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := pool.GetConnection(ctx, addr); err == nil {
		t.Fatal("expected a second acquisition to block and fail when the pool is at capacity")
	}

	first.Release()
}

func TestConnectionPoolConnectTimeout(t *testing.T) {
	pool := NewConnectionPool(2, time.Minute, 10*time.Millisecond)
	defer pool.Stop()

	// 10.255.255.1 is a non-routable address chosen to force a dial timeout
	// rather than an immediate connection-refused.
	_, err := pool.GetConnection(context.Background(), "10.255.255.1:9")
	if err == nil {
		t.Fatal("expected dialing an unreachable address to fail")
	}
}
