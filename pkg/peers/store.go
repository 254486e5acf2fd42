// Package peers keeps per-peer metadata and traffic counters in the
// in-memory KV. Records describe what the engine learned from each peer:
// hello identity, negotiation outcome, cached model descriptor, exchange
// stats. Entries expire after a period of inactivity.
package peers

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/navedmerchant/mydeviceai-link/pkg/channel"
	"github.com/navedmerchant/mydeviceai-link/pkg/memkv"
	"github.com/navedmerchant/mydeviceai-link/pkg/protocol/codec"
)

// defaultPeerTTL is the inactivity TTL for peer records.
const defaultPeerTTL = 5 * time.Minute

// PeerRecord is the stored view of one peer.
type PeerRecord struct {
	ID       channel.PeerID `cbor:"id"`
	ClientID string         `cbor:"client_id,omitempty"`
	Impl     string         `cbor:"impl,omitempty"`
	Version  string         `cbor:"version,omitempty"`

	Negotiation        string `cbor:"negotiation,omitempty"` // init/negotiating/compatible/incompatible
	ProtocolVersion    string `cbor:"protocol_version,omitempty"`
	IncompatibleReason string `cbor:"incompatible_reason,omitempty"`

	ModelID        string `cbor:"model_id,omitempty"`
	ModelName      string `cbor:"model_name,omitempty"`
	ModelInstalled bool   `cbor:"model_installed,omitempty"`

	LastSeen int64  `cbor:"last_seen_unix_ms"`
	MsgsIn   uint64 `cbor:"msgs_in"`
	MsgsOut  uint64 `cbor:"msgs_out"`
	BytesIn  uint64 `cbor:"bytes_in"`
	BytesOut uint64 `cbor:"bytes_out"`
}

// Store persists peer records in the in-memory KV using the CBOR codec.
type Store struct {
	kv *memkv.Store
	c  codec.Codec

	idxMu sync.RWMutex
	index map[string]struct{}
}

func NewStore(kv *memkv.Store) *Store {
	return &Store{kv: kv, c: codec.MustCBOR(), index: make(map[string]struct{})}
}

func keyPeer(id channel.PeerID) string { return "peer:" + string(id) }

// Upsert replaces the stored record for rec.ID.
func (s *Store) Upsert(rec PeerRecord) {
	b, err := s.c.Marshal(rec)
	if err != nil {
		zap.L().Warn("peer record encode", zap.Error(err))
		return
	}
	s.kv.Set(keyPeer(rec.ID), b, defaultPeerTTL)
	s.idxMu.Lock()
	s.index[string(rec.ID)] = struct{}{}
	s.idxMu.Unlock()
	zap.L().Debug("peer upsert", zap.String("peer", string(rec.ID)))
}

// Get returns the stored record for id.
func (s *Store) Get(id channel.PeerID) (PeerRecord, bool) {
	b, ok := s.kv.Get(keyPeer(id))
	if !ok {
		return PeerRecord{}, false
	}
	var rec PeerRecord
	if err := s.c.Unmarshal(b, &rec); err != nil {
		return PeerRecord{}, false
	}
	return rec, true
}

// mutate applies fn to the record for id, creating it when absent, and
// refreshes the inactivity TTL.
func (s *Store) mutate(id channel.PeerID, fn func(rec *PeerRecord)) {
	updated := s.kv.Update(keyPeer(id), func(old []byte) []byte {
		var rec PeerRecord
		_ = s.c.Unmarshal(old, &rec)
		rec.ID = id
		fn(&rec)
		b, _ := s.c.Marshal(rec)
		return b
	})
	if !updated {
		rec := PeerRecord{ID: id}
		fn(&rec)
		s.Upsert(rec)
		return
	}
	_ = s.kv.Expire(keyPeer(id), defaultPeerTTL)
	s.idxMu.Lock()
	s.index[string(id)] = struct{}{}
	s.idxMu.Unlock()
}

// Touch refreshes last-seen.
func (s *Store) Touch(id channel.PeerID, when time.Time) {
	if when.IsZero() {
		when = time.Now()
	}
	s.mutate(id, func(rec *PeerRecord) { rec.LastSeen = when.UnixMilli() })
}

// SetHello records the identity announced by the peer.
func (s *Store) SetHello(id channel.PeerID, clientID, impl, version string) {
	s.mutate(id, func(rec *PeerRecord) {
		rec.ClientID = clientID
		rec.Impl = impl
		rec.Version = version
	})
	zap.L().Debug("peer hello recorded", zap.String("peer", string(id)), zap.String("impl", impl))
}

// SetNegotiation records the negotiation outcome for the peer.
func (s *Store) SetNegotiation(id channel.PeerID, state, protocolVersion, reason string) {
	s.mutate(id, func(rec *PeerRecord) {
		rec.Negotiation = state
		rec.ProtocolVersion = protocolVersion
		rec.IncompatibleReason = reason
	})
}

// SetModel replaces the peer's model descriptor wholesale.
func (s *Store) SetModel(id channel.PeerID, modelID, name string, installed bool) {
	s.mutate(id, func(rec *PeerRecord) {
		rec.ModelID = modelID
		rec.ModelName = name
		rec.ModelInstalled = installed
	})
}

// RecordExchange bumps message/byte counters.
func (s *Store) RecordExchange(id channel.PeerID, inBytes, outBytes, inMsgs, outMsgs uint64) {
	s.mutate(id, func(rec *PeerRecord) {
		rec.MsgsIn += inMsgs
		rec.MsgsOut += outMsgs
		rec.BytesIn += inBytes
		rec.BytesOut += outBytes
	})
}

// Delete removes the record for id.
func (s *Store) Delete(id channel.PeerID) {
	_ = s.kv.Delete(keyPeer(id))
	s.idxMu.Lock()
	delete(s.index, string(id))
	s.idxMu.Unlock()
	zap.L().Debug("peer deleted", zap.String("peer", string(id)))
}

// ListPeerIDs returns a snapshot of known peer ids.
func (s *Store) ListPeerIDs() []channel.PeerID {
	s.idxMu.RLock()
	defer s.idxMu.RUnlock()
	out := make([]channel.PeerID, 0, len(s.index))
	for id := range s.index {
		out = append(out, channel.PeerID(id))
	}
	return out
}
