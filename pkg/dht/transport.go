package dht

import (
	"context"
	"fmt"

	"github.com/kaddht/node/pkg/logging"
)

// sendRPC sends request to addr over a pooled connection and returns the
// peer's response, bounded by operation_timeout. Every error path
// increments rpc_failures and discards the connection instead of
// returning it to the pool, since its state after a failed call is
// indeterminate.
func (n *DhtNode) sendRPC(ctx context.Context, addr string, request Rpc) (Rpc, error) {
	n.metrics.incRPCRequests()
	peerLog := n.logger.WithPeer(addr)

	ctx, cancel := context.WithTimeout(ctx, n.config.OperationTimeout)
	defer cancel()

	pooled, err := n.pool.GetConnection(ctx, addr)
	if err != nil {
		n.metrics.incRPCFailures()
		if ctx.Err() != nil {
			peerLog.Debug("rpc connect timed out", logging.Fields{"kind": request.Kind.String()})
			return Rpc{}, fmt.Errorf("%w: %s", ErrRPCTimeout, addr)
		}
		peerLog.Debug("rpc connect failed", logging.Fields{"kind": request.Kind.String(), "error": err.Error()})
		return Rpc{}, err
	}

	type result struct {
		resp Rpc
		err  error
	}
	done := make(chan result, 1)
	go func() {
		if err := writeFrame(pooled, request); err != nil {
			done <- result{err: err}
			return
		}
		resp, err := readFrame(pooled)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			n.metrics.incRPCFailures()
			pooled.Discard()
			peerLog.Debug("rpc failed", logging.Fields{"kind": request.Kind.String(), "error": r.err.Error()})
			return Rpc{}, r.err
		}
		pooled.Release()
		return r.resp, nil
	case <-ctx.Done():
		n.metrics.incRPCFailures()
		pooled.Discard()
		peerLog.Debug("rpc timed out", logging.Fields{"kind": request.Kind.String()})
		return Rpc{}, fmt.Errorf("%w: %s", ErrRPCTimeout, addr)
	}
}

// handleRPC implements the inbound dispatch contract spec.md §4.6 defines
// for the inbound request/response listener run by Serve.
func (n *DhtNode) handleRPC(req Rpc) Rpc {
	switch req.Kind {
	case KindPing:
		return PongRPC()

	case KindFindNode:
		peers := n.routingTable.ClosestPeers(req.Target, n.config.KBucketSize)
		return FindNodeResponseRPC(peers)

	case KindFindValue:
		raw, ok := n.storage.Get(string(req.Key))
		if !ok {
			return FindValueResponseRPC(nil)
		}
		sv, err := deserializeValue(raw)
		if err != nil {
			return FindValueResponseRPC(nil)
		}
		if !sv.IsValid(nowUnix()) {
			n.storage.Remove(string(req.Key))
			return FindValueResponseRPC(nil)
		}
		return FindValueResponseRPC(raw)

	case KindStore:
		sv := NewStoredValue(req.Value, n.addr, true, n.config.Storage.DefaultTTL)
		_ = n.storage.Put(string(req.Key), sv) // storage-full on replica writes is silently absorbed, same as a dropped replica broadcast
		return PongRPC()

	default:
		return PongRPC()
	}
}
