// Package ledger defines the closed two-variant ledger adapter contract
// (EVM family, XRP family) the Channel Manager drives. Concrete adapters
// live in ledger/evm and ledger/xrp; this package only fixes the interface
// and the shared value types both must agree on.
package ledger

import (
	"context"
	"math/big"

	"gitlab.com/warrant1/connector/internal/proof"
)

// Family identifies which adapter variant a channel belongs to.
type Family string

const (
	FamilyEVM Family = "evm"
	FamilyXRP Family = "xrp"
)

// SettlementPhase mirrors the on-chain settlement state for a channel.
type SettlementPhase string

const (
	PhaseOpen            SettlementPhase = "OPEN"
	PhaseClosedChallenge SettlementPhase = "CLOSED_CHALLENGE"
	PhaseSettled         SettlementPhase = "SETTLED"
)

// OnChainChannelState is the materialized view of what the ledger believes
// about a channel, used for rebalance decisions and dispute detection.
type OnChainChannelState struct {
	TotalDeposit          *big.Int
	TotalWithdrawn        *big.Int
	CumulativeTransferred *big.Int
	LatestNonce           *big.Int
	Phase                 SettlementPhase
}

// Receipt is returned by every mutating call that confirms on-chain.
type Receipt struct {
	TxID  string
	Block uint64
}

// EventKind enumerates the channel lifecycle events an adapter watches for.
type EventKind string

const (
	EventChannelOpened             EventKind = "ChannelOpened"
	EventChannelClosed             EventKind = "ChannelClosed"
	EventChannelSettled            EventKind = "ChannelSettled"
	EventChannelCooperativeSettled EventKind = "ChannelCooperativeSettled"
)

// Event is a single channel lifecycle event surfaced by watch.
type Event struct {
	Kind      EventKind
	ChannelID proof.ChannelID
	Nonce     *big.Int
	Amounts   map[string]*big.Int
}

// OpenParams bundles the arguments to Open, since EVM and XRP give the
// fields different native names but the same meaning: who gets the channel,
// what token, how long the dispute window is, and the opening deposit.
type OpenParams struct {
	PeerAddress       string
	Token             string
	SettlementTimeout uint64
	InitialDeposit    *big.Int
}

// Adapter is the chain-family-agnostic contract the Channel Manager drives.
// Both ledger/evm and ledger/xrp implement it; the manager never branches on
// family beyond picking which Adapter to call.
type Adapter interface {
	Family() Family

	// Open submits an on-chain (or ledger-native) channel-open and returns
	// its assigned channel id.
	Open(ctx context.Context, params OpenParams) (proof.ChannelID, *Receipt, error)

	// SetTotalDeposit increases the signer's deposit in an existing channel.
	// newTotal must exceed the channel's current total deposit.
	SetTotalDeposit(ctx context.Context, channelID proof.ChannelID, newTotal *big.Int) (*Receipt, error)

	// Close starts a unilateral close using the counterparty's latest
	// signed proof, opening the challenge period.
	Close(ctx context.Context, channelID proof.ChannelID, peerProof proof.BalanceProof) (*Receipt, error)

	// UpdateNonClosingBalanceProof submits a later proof during the
	// challenge period to override a stale closing proof.
	UpdateNonClosingBalanceProof(ctx context.Context, channelID proof.ChannelID, closing, nonClosing proof.BalanceProof) (*Receipt, error)

	// Settle finalizes payout after the challenge period has elapsed.
	Settle(ctx context.Context, channelID proof.ChannelID, selfProof, peerProof proof.BalanceProof) (*Receipt, error)

	// CooperativeSettle immediately pays out both sides using matching,
	// mutually signed proofs, bypassing the challenge period.
	CooperativeSettle(ctx context.Context, channelID proof.ChannelID, selfProof, peerProof proof.BalanceProof) (*Receipt, error)

	// Withdraw reduces the signer's on-chain obligation without closing.
	Withdraw(ctx context.Context, channelID proof.ChannelID, withdraw proof.WithdrawProof) (*Receipt, error)

	// ForceCloseExpired permissionlessly closes a channel past its maximum
	// lifetime.
	ForceCloseExpired(ctx context.Context, channelID proof.ChannelID) (*Receipt, error)

	// State reads the current on-chain view of a channel.
	State(ctx context.Context, channelID proof.ChannelID) (OnChainChannelState, error)

	// Watch streams lifecycle events for channelID until ctx is cancelled.
	Watch(ctx context.Context, channelID proof.ChannelID) (<-chan Event, error)
}
