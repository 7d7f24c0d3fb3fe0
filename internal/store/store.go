// Package store implements the durable channel store (C4): the
// system-of-record for channel state across restarts, backed by bbolt, the
// same embedded key-value engine the wider payment-channel ecosystem in
// this retrieval pack (lnd's kvdb, breez's lightning-lib) builds its
// channel databases on.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"gitlab.com/warrant1/connector/internal/errs"
	"gitlab.com/warrant1/connector/internal/ledger"
	"gitlab.com/warrant1/connector/internal/proof"
)

var (
	bucketChannels = []byte("channels")
	bucketProofs   = []byte("proofs")
)

// ChannelState is the persisted view of a single channel the Channel
// Manager restores on startup and updates on every transition.
type ChannelState struct {
	ChannelID    proof.ChannelID
	AgentID      string
	Family       ledger.Family
	PeerID       string
	Token        string
	Status       Status
	Deposit      string // decimal big.Int string; see Encode/Decode on BalanceProof for the wire form used elsewhere
	LatestProof  *proof.BalanceProof
	SettledPhase ledger.SettlementPhase
}

// isOpen reports whether cs should still appear in the agent's active index
// — the store-level equivalent of "closed-at IS NULL".
func (cs ChannelState) isOpen() bool {
	switch cs.Status {
	case StatusIntentOpen, StatusActive, StatusClosing:
		return true
	default:
		return false
	}
}

// Status is the Channel Manager's own lifecycle tag, distinct from the
// ledger's SettlementPhase: it additionally captures the pre-chain
// INTENT_OPEN stage and the manager's terminal FAILED outcome.
type Status string

const (
	StatusIntentOpen Status = "INTENT_OPEN"
	StatusActive     Status = "ACTIVE"
	StatusClosing    Status = "CLOSING"
	StatusSettled    Status = "SETTLED"
	StatusFailed     Status = "FAILED"
)

// record is the on-disk encoding of a ChannelState; BalanceProof's own
// [32]byte/big.Int fields don't round-trip through encoding/json directly; the
// rest of the fields do.
type record struct {
	ChannelID    proof.ChannelID
	AgentID      string
	Family       ledger.Family
	PeerID       string
	Token        string
	Status       Status
	Deposit      string
	SettledPhase ledger.SettlementPhase
	ProofWire    []byte
}

// Store is the bbolt-backed channel store.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt database at path and ensures
// its buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistenceFailure, "open channel store", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketChannels); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketProofs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindPersistenceFailure, "init channel store buckets", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.Wrap(errs.KindPersistenceFailure, "close channel store", err)
	}
	return nil
}

// Put persists cs, keyed by its channel id. The channel id is globally
// unique (chain-assigned), so keying the bucket by it alone also satisfies
// the (agent-id, channel-id) uniqueness invariant: a channel id can only
// ever belong to the one agent recorded in its first Put.
func (s *Store) Put(ctx context.Context, cs ChannelState) error {
	rec := record{
		ChannelID:    cs.ChannelID,
		AgentID:      cs.AgentID,
		Family:       cs.Family,
		PeerID:       cs.PeerID,
		Token:        cs.Token,
		Status:       cs.Status,
		Deposit:      cs.Deposit,
		SettledPhase: cs.SettledPhase,
	}
	if cs.LatestProof != nil {
		wire, err := proof.Encode(*cs.LatestProof)
		if err != nil {
			return errs.Wrap(errs.KindPersistenceFailure, "encode latest proof", err)
		}
		rec.ProofWire = wire
	}

	buf, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap(errs.KindPersistenceFailure, "marshal channel record", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChannels)
		if prev := b.Get(cs.ChannelID[:]); prev != nil {
			var owner struct{ AgentID string }
			if err := json.Unmarshal(prev, &owner); err != nil {
				return err
			}
			if owner.AgentID != cs.AgentID {
				return errs.New(errs.KindPersistenceFailure, "channel id already belongs to another agent")
			}
		}
		return b.Put(cs.ChannelID[:], buf)
	})
	if err != nil {
		return errs.Wrap(errs.KindPersistenceFailure, "put channel record", err)
	}
	return nil
}

// Get looks up the persisted state for channelID.
func (s *Store) Get(ctx context.Context, channelID proof.ChannelID) (ChannelState, error) {
	var rec record
	err := s.db.View(func(tx *bbolt.Tx) error {
		buf := tx.Bucket(bucketChannels).Get(channelID[:])
		if buf == nil {
			return errs.New(errs.KindChannelNotFound, channelID.Hex())
		}
		return json.Unmarshal(buf, &rec)
	})
	if err != nil {
		if _, ok := errs.As(err); ok {
			return ChannelState{}, err
		}
		return ChannelState{}, errs.Wrap(errs.KindPersistenceFailure, "get channel record", err)
	}
	return rec.toState()
}

// GetForAgent looks up channelID and additionally enforces that it belongs
// to agentID, the primary-key check (agent-id, channel-id) the channel
// manager's per-agent operations require.
func (s *Store) GetForAgent(ctx context.Context, agentID string, channelID proof.ChannelID) (ChannelState, error) {
	cs, err := s.Get(ctx, channelID)
	if err != nil {
		return ChannelState{}, err
	}
	if cs.AgentID != agentID {
		return ChannelState{}, errs.New(errs.KindChannelNotFound, channelID.Hex())
	}
	return cs, nil
}

// ListActive returns every channel owned by agentID that is not yet closed
// — the secondary (agent-id, closed-at IS NULL) index.
func (s *Store) ListActive(ctx context.Context, agentID string) ([]ChannelState, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ChannelState, 0, len(all))
	for _, cs := range all {
		if cs.AgentID == agentID && cs.isOpen() {
			out = append(out, cs)
		}
	}
	return out, nil
}

// List returns every persisted channel, in bbolt's key (channel id) order.
func (s *Store) List(ctx context.Context) ([]ChannelState, error) {
	var out []ChannelState
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChannels).ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			cs, err := rec.toState()
			if err != nil {
				return err
			}
			out = append(out, cs)
			return nil
		})
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistenceFailure, "list channel records", err)
	}
	return out, nil
}

// AppendProofHistory records p in the append-only per-channel proof log,
// keyed by channelID||nonce so history stays in strictly increasing order.
// Nothing in the connector reads this history back.
func (s *Store) AppendProofHistory(ctx context.Context, channelID proof.ChannelID, p proof.BalanceProof) error {
	wire, err := proof.Encode(p)
	if err != nil {
		return errs.Wrap(errs.KindPersistenceFailure, "encode proof history entry", err)
	}
	key := append(append([]byte{}, channelID[:]...), []byte(fmt.Sprintf(":%020s", p.Nonce.String()))...)

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProofs).Put(key, wire)
	})
	if err != nil {
		return errs.Wrap(errs.KindPersistenceFailure, "append proof history", err)
	}
	return nil
}

func (rec record) toState() (ChannelState, error) {
	cs := ChannelState{
		ChannelID:    rec.ChannelID,
		AgentID:      rec.AgentID,
		Family:       rec.Family,
		PeerID:       rec.PeerID,
		Token:        rec.Token,
		Status:       rec.Status,
		Deposit:      rec.Deposit,
		SettledPhase: rec.SettledPhase,
	}
	if len(rec.ProofWire) > 0 {
		p, err := proof.Decode(rec.ProofWire)
		if err != nil {
			return ChannelState{}, errs.Wrap(errs.KindPersistenceFailure, "decode stored proof", err)
		}
		cs.LatestProof = &p
	}
	return cs, nil
}
