// Package wallet implements the Wallet Lifecycle Authority (C8): the
// in-memory source of truth for every agent wallet's lifecycle state,
// gating mutating operations elsewhere in the connector. Concrete
// persistence is out of scope — the authority accepts an optional
// PersistHook and otherwise lives entirely in memory.
package wallet

import (
	"context"
	"math/big"
	"sync"
	"time"

	"gitlab.com/warrant1/connector/internal/errs"
	"gitlab.com/warrant1/connector/internal/telemetry"
)

// State is one of the four lifecycle states an agent wallet can occupy.
type State string

const (
	StatePending   State = "PENDING"
	StateActive    State = "ACTIVE"
	StateSuspended State = "SUSPENDED"
	StateArchived  State = "ARCHIVED"
)

// Record is the authority's view of one agent wallet.
type Record struct {
	AgentID       string
	State         State
	SuspendReason string
	LastActivity  time.Time
	TxCount       uint64
	VolumeByToken map[string]*big.Int
}

// PersistHook lets a caller mirror lifecycle records to durable storage.
// The authority calls it best-effort on every transition; a failing hook
// does not roll back the in-memory state change.
type PersistHook interface {
	Save(ctx context.Context, rec Record) error
}

// Authority is the Wallet Lifecycle Authority.
type Authority struct {
	mu      sync.RWMutex
	active  map[string]*Record
	archive map[string]*Record
	persist PersistHook
	bus     *telemetry.Bus
}

// NewAuthority constructs an empty Authority. persist and bus may both be
// nil.
func NewAuthority(persist PersistHook, bus *telemetry.Bus) *Authority {
	return &Authority{
		active:  make(map[string]*Record),
		archive: make(map[string]*Record),
		persist: persist,
		bus:     bus,
	}
}

// CreateWallet registers a new agent wallet in PENDING.
func (a *Authority) CreateWallet(ctx context.Context, agentID string) error {
	a.mu.Lock()
	if _, ok := a.active[agentID]; ok {
		a.mu.Unlock()
		return errs.New(errs.KindUnsupported, "wallet already exists for agent "+agentID)
	}
	rec := &Record{AgentID: agentID, State: StatePending, VolumeByToken: make(map[string]*big.Int)}
	a.active[agentID] = rec
	a.mu.Unlock()

	return a.transitioned(ctx, *rec)
}

// ConfirmFunding moves agentID from PENDING to ACTIVE once its initial
// funding has been observed on-chain.
func (a *Authority) ConfirmFunding(ctx context.Context, agentID string) error {
	return a.transition(ctx, agentID, StatePending, StateActive, "")
}

// Suspend moves agentID from ACTIVE to SUSPENDED, recording reason.
func (a *Authority) Suspend(ctx context.Context, agentID, reason string) error {
	return a.transition(ctx, agentID, StateActive, StateSuspended, reason)
}

// Reactivate moves agentID from SUSPENDED back to ACTIVE.
func (a *Authority) Reactivate(ctx context.Context, agentID string) error {
	return a.transition(ctx, agentID, StateSuspended, StateActive, "")
}

// Archive moves agentID to the terminal ARCHIVED state from either ACTIVE
// or SUSPENDED, removing it from the active cache but keeping the record
// retrievable via ArchivedRecord.
func (a *Authority) Archive(ctx context.Context, agentID string) error {
	a.mu.Lock()
	rec, ok := a.active[agentID]
	if !ok {
		a.mu.Unlock()
		return errs.New(errs.KindWalletNotActive, "no wallet record for agent "+agentID)
	}
	if rec.State != StateActive && rec.State != StateSuspended {
		a.mu.Unlock()
		return errs.New(errs.KindWalletNotActive, "wallet not in a state archive can apply to")
	}
	rec.State = StateArchived
	delete(a.active, agentID)
	a.archive[agentID] = rec
	snapshot := *rec
	a.mu.Unlock()

	return a.transitioned(ctx, snapshot)
}

// transition performs a guarded state change, rejecting the call unless
// the wallet is currently in from.
func (a *Authority) transition(ctx context.Context, agentID string, from, to State, reason string) error {
	a.mu.Lock()
	rec, ok := a.active[agentID]
	if !ok {
		a.mu.Unlock()
		return errs.New(errs.KindWalletNotActive, "no wallet record for agent "+agentID)
	}
	if rec.State != from {
		a.mu.Unlock()
		return errs.New(errs.KindWalletNotActive, "wallet not in expected state for this transition")
	}
	rec.State = to
	rec.SuspendReason = reason
	snapshot := *rec
	a.mu.Unlock()

	return a.transitioned(ctx, snapshot)
}

func (a *Authority) transitioned(ctx context.Context, rec Record) error {
	if a.persist != nil {
		_ = a.persist.Save(ctx, rec)
	}
	if a.bus != nil {
		a.bus.Publish(telemetry.Event{
			Kind: telemetry.KindAgentWalletStateChanged,
			Attrs: telemetry.Attr(
				"agent_id", rec.AgentID,
				"state", string(rec.State),
				"reason", rec.SuspendReason,
			),
		})
	}
	return nil
}

// RecordTransaction updates agentID's activity counters after a mutating
// operation completes, used by the Channel Manager after every
// successful channel open and applied payment.
func (a *Authority) RecordTransaction(ctx context.Context, agentID, token string, amount *big.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.active[agentID]
	if !ok {
		return errs.New(errs.KindWalletNotActive, "no wallet record for agent "+agentID)
	}
	rec.LastActivity = time.Now()
	rec.TxCount++
	cum, ok := rec.VolumeByToken[token]
	if !ok {
		cum = big.NewInt(0)
	}
	rec.VolumeByToken[token] = new(big.Int).Add(cum, amount)
	return nil
}

// State is the synchronous gate the Channel Manager (and anything else
// mutating wallet-scoped state) calls before every operation.
func (a *Authority) State(ctx context.Context, agentID string) (State, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.active[agentID]
	if !ok {
		if arch, ok := a.archive[agentID]; ok {
			return arch.State, nil
		}
		return "", errs.New(errs.KindWalletNotActive, "no wallet record for agent "+agentID)
	}
	return rec.State, nil
}

// ArchivedRecord retrieves an archived agent's historical record.
func (a *Authority) ArchivedRecord(agentID string) (Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.archive[agentID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}
