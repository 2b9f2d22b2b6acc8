package dht

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// RpcKind discriminates the DhtRpc tagged union spec.md §4.6 defines.
type RpcKind uint8

const (
	KindPing RpcKind = iota
	KindPong
	KindFindNode
	KindFindNodeResponse
	KindFindValue
	KindFindValueResponse
	KindStore
)

func (k RpcKind) String() string {
	switch k {
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindFindNode:
		return "FindNode"
	case KindFindNodeResponse:
		return "FindNodeResponse"
	case KindFindValue:
		return "FindValue"
	case KindFindValueResponse:
		return "FindValueResponse"
	case KindStore:
		return "Store"
	default:
		return "Unknown"
	}
}

// Rpc is the wire message exchanged between DHT nodes. It models the
// Rust original's seven-variant enum as one struct with a Kind
// discriminant; only the fields relevant to Kind are meaningful, the
// same way a tagged union's unused variant payloads are absent.
type Rpc struct {
	Kind RpcKind

	// FindNode
	Target NodeId
	// FindNodeResponse
	Peers []PeerInfo
	// FindValue, Store
	Key []byte
	// Store, FindValueResponse (when Found)
	Value []byte
	// FindValueResponse
	Found bool
}

func PingRPC() Rpc  { return Rpc{Kind: KindPing} }
func PongRPC() Rpc  { return Rpc{Kind: KindPong} }
func FindNodeRPC(target NodeId) Rpc { return Rpc{Kind: KindFindNode, Target: target} }
func FindNodeResponseRPC(peers []PeerInfo) Rpc {
	return Rpc{Kind: KindFindNodeResponse, Peers: peers}
}
func FindValueRPC(key []byte) Rpc { return Rpc{Kind: KindFindValue, Key: key} }
func FindValueResponseRPC(value []byte) Rpc {
	if value == nil {
		return Rpc{Kind: KindFindValueResponse, Found: false}
	}
	return Rpc{Kind: KindFindValueResponse, Found: true, Value: value}
}
func StoreRPC(key, value []byte) Rpc { return Rpc{Kind: KindStore, Key: key, Value: value} }

// maxFrameSize bounds a single RPC frame, mirroring the teacher's own
// sanity check in pkg/p2p/connection.go against a malicious or corrupt
// length prefix.
const maxFrameSize = 10 * 1024 * 1024

// encodeRPC serializes an Rpc with gob. gob (not the teacher's JSON) is
// used here because Rpc is a tagged union and gob's struct encoding
// handles the "only some fields are meaningful" shape directly — see
// DESIGN.md.
func encodeRPC(rpc Rpc) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rpc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialize, err)
	}
	return buf.Bytes(), nil
}

// decodeRPC deserializes an Rpc previously produced by encodeRPC.
func decodeRPC(data []byte) (Rpc, error) {
	var rpc Rpc
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rpc); err != nil {
		return Rpc{}, fmt.Errorf("%w: %v", ErrDeserialize, err)
	}
	return rpc, nil
}

// writeFrame writes one length-prefixed RPC frame: a 4-byte big-endian
// length followed by the gob-encoded payload. This is the framing
// strategy spec.md §6 normatively fixes, lifted directly from the
// teacher's SendMessage (pkg/p2p/connection.go).
func writeFrame(w io.Writer, rpc Rpc) error {
	payload, err := encodeRPC(rpc)
	if err != nil {
		return err
	}

	var lengthPrefix [4]byte
	binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(payload)))

	if _, err := w.Write(lengthPrefix[:]); err != nil {
		return fmt.Errorf("%w: writing frame length: %v", ErrIO, err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("%w: writing frame payload: %v", ErrIO, err)
	}
	return nil
}

// readFrame reads one length-prefixed RPC frame, mirroring the teacher's
// ReceiveMessage: read the 4-byte length, sanity-check it, then read
// exactly that many bytes with io.ReadFull.
func readFrame(r io.Reader) (Rpc, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(r, lengthPrefix[:]); err != nil {
		return Rpc{}, fmt.Errorf("%w: reading frame length: %v", ErrIO, err)
	}

	length := binary.BigEndian.Uint32(lengthPrefix[:])
	if length > maxFrameSize {
		return Rpc{}, fmt.Errorf("%w: frame of %d bytes exceeds maximum", ErrDeserialize, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Rpc{}, fmt.Errorf("%w: reading frame payload: %v", ErrIO, err)
	}

	return decodeRPC(payload)
}
