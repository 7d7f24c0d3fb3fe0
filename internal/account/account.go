// Package account implements the Account Manager (C6): a per-(peer, token)
// double-entry ledger, kept in decimal.Decimal rather than the raw big.Int
// the channel/proof layers use, since account balances carry a currency's
// fractional denomination while on-chain amounts are always whole base
// units (wei, drops).
package account

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"gitlab.com/warrant1/connector/internal/errs"
	"gitlab.com/warrant1/connector/internal/telemetry"
)

// Entry is one bilateral double-entry record for a single (peer, token)
// pair: how much this node owes the peer (DebitBalance) and how much the
// peer owes this node (CreditBalance), kept as separate non-negative
// figures rather than collapsed into one signed number, so a settlement
// can unwind exactly the credit side without disturbing the debit side.
type Entry struct {
	PeerID      string
	Token       string
	DebitBalance  decimal.Decimal
	CreditBalance decimal.Decimal
	CreditLimit   decimal.Decimal
}

// NetBalance is DebitBalance minus CreditBalance: positive means this node
// owes the peer, negative means the peer owes this node.
func (e Entry) NetBalance() decimal.Decimal {
	return e.DebitBalance.Sub(e.CreditBalance)
}

type entryKey struct {
	peerID string
	token  string
}

// Manager is the Account Manager. It holds one Entry per (peer, token) and
// serializes every mutation on that pair's own mutex, so unrelated pairs'
// balance updates never contend.
type Manager struct {
	mu       sync.RWMutex
	entries  map[entryKey]*Entry
	pairLock map[entryKey]*sync.Mutex
	bus      *telemetry.Bus
}

// NewManager returns an empty Manager. bus may be nil, in which case
// balance mutations are not published (used by tests that don't care
// about telemetry).
func NewManager(bus *telemetry.Bus) *Manager {
	return &Manager{
		entries:  make(map[entryKey]*Entry),
		pairLock: make(map[entryKey]*sync.Mutex),
		bus:      bus,
	}
}

// publishBalance emits ACCOUNT_BALANCE for e, the event the Settlement
// Monitor watches for its trigger condition. Must be called with m.mu held
// for reading at least.
func (m *Manager) publishBalance(e *Entry) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(telemetry.Event{
		Kind: telemetry.KindAccountBalance,
		Attrs: telemetry.Attr(
			"peer_id", e.PeerID,
			"token", e.Token,
			"balance", e.NetBalance().String(),
			"credit_limit", e.CreditLimit.String(),
			"settled_up_to", decimal.Zero.String(),
		),
	})
}

// Open registers a (peerID, token) pair with the given credit limit.
// Calling Open twice for the same pair is a no-op if the entry already
// exists.
func (m *Manager) Open(peerID, token string, creditLimit decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entryKey{peerID, token}
	if _, ok := m.entries[key]; ok {
		return
	}
	m.entries[key] = &Entry{PeerID: peerID, Token: token, CreditLimit: creditLimit}
	m.pairLock[key] = &sync.Mutex{}
}

func (m *Manager) lockFor(peerID, token string) (*sync.Mutex, entryKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := entryKey{peerID, token}
	lock, ok := m.pairLock[key]
	if !ok {
		return nil, key, errs.New(errs.KindPeerUnknown, fmt.Sprintf("peer %s token %s", peerID, token))
	}
	return lock, key, nil
}

// Balance returns the (peerID, token) entry's current net balance.
func (m *Manager) Balance(ctx context.Context, peerID, token string) (decimal.Decimal, error) {
	lock, key, err := m.lockFor(peerID, token)
	if err != nil {
		return decimal.Zero, err
	}
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[key].NetBalance(), nil
}

// RecordPacketTransfers applies a single packet forward's effect on a
// (peer, token) pair: debitDelta increases what this node owes the peer,
// creditDelta increases what the peer owes this node. Either may be zero.
// The update is rejected, and neither side applied, if it would push
// CreditBalance past CreditLimit (a CreditLimit of zero means no limit is
// enforced).
func (m *Manager) RecordPacketTransfers(ctx context.Context, peerID, token string, debitDelta, creditDelta decimal.Decimal) error {
	lock, key, err := m.lockFor(peerID, token)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	nextCredit := e.CreditBalance.Add(creditDelta)
	if !e.CreditLimit.IsZero() && nextCredit.GreaterThan(e.CreditLimit) {
		return errs.New(errs.KindCreditLimitExceeded, fmt.Sprintf("peer %s token %s: credit balance %s exceeds limit %s", peerID, token, nextCredit, e.CreditLimit))
	}
	e.DebitBalance = e.DebitBalance.Add(debitDelta)
	e.CreditBalance = nextCredit
	m.publishBalance(e)
	return nil
}

// RecordSettlement reduces a (peer, token) pair's CreditBalance by
// settledAmount, the amount a channel settlement just paid out to this
// node on the peer's behalf, clamping at zero rather than going negative —
// a settlement never creates a debit, it only ever retires credit.
func (m *Manager) RecordSettlement(ctx context.Context, peerID, token string, settledAmount decimal.Decimal) error {
	lock, key, err := m.lockFor(peerID, token)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	next := e.CreditBalance.Sub(settledAmount)
	if next.IsNegative() {
		next = decimal.Zero
	}
	e.CreditBalance = next
	m.publishBalance(e)
	return nil
}
