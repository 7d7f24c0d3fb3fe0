// Package channel implements the Channel Manager (C5): the orchestration
// core that drives a channel through INTENT_OPEN -> ACTIVE -> {SETTLED,
// FAILED}, serializing nonce-bearing operations per channel while letting
// unrelated channels proceed in parallel.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"gitlab.com/warrant1/connector/internal/errs"
	"gitlab.com/warrant1/connector/internal/ledger"
	"gitlab.com/warrant1/connector/internal/proof"
	"gitlab.com/warrant1/connector/internal/store"
	"gitlab.com/warrant1/connector/internal/telemetry"
	"gitlab.com/warrant1/connector/internal/transport"
	"gitlab.com/warrant1/connector/internal/wallet"
)

// Signer produces an agent's half of a balance proof, resolving signing
// identity per call so one Manager can serve many agents concurrently. It
// is satisfied by the signer service; kept as a narrow interface here so
// the manager never imports key material directly.
type Signer interface {
	SignBalanceProof(ctx context.Context, agentID string, family ledger.Family, p proof.BalanceProof) ([]byte, error)
}

// WalletGate is the narrow view of the Wallet Lifecycle Authority the
// manager needs: the synchronous ACTIVE gate every mutating operation must
// pass, and the activity counters recorded once it has.
type WalletGate interface {
	State(ctx context.Context, agentID string) (wallet.State, error)
	RecordTransaction(ctx context.Context, agentID, token string, amount *big.Int) error
}

// AccountSettler is the narrow view of the Account Manager the manager
// needs to reconcile a ledger settlement back into bilateral balances. The
// reference runs one way only — the Account Manager never holds a
// reference back to the Channel Manager.
type AccountSettler interface {
	RecordSettlement(ctx context.Context, peerID, token string, settledAmount decimal.Decimal) error
}

// RebalanceConfig tunes the automatic close+reopen sweep of depleted
// channels.
type RebalanceConfig struct {
	Enabled     bool
	MinBalance  *big.Int
	MaxBalance  *big.Int
}

// Manager is the Channel Manager. One Manager instance drives every
// channel across every configured ledger family; per-channel exclusivity
// comes from chanLocks, not from separate Manager instances.
type Manager struct {
	store     *store.Store
	adapters  map[ledger.Family]ledger.Adapter
	signer    Signer
	logger    *slog.Logger
	bus       *telemetry.Bus
	wallet    WalletGate
	transport transport.Transport
	account   AccountSettler
	rebalance RebalanceConfig

	chanLocks sync.Map // proof.ChannelID -> *sync.Mutex
	openGroup singleflight.Group
	cache     sync.Map // proof.ChannelID -> store.ChannelState
	recovered atomic.Bool
}

// NewManager wires a Manager from its store, the ledger adapters it can
// drive (keyed by family), and the signer it asks for balance-proof
// signatures. bus, wallet, transportIn, account may all be nil, in which
// case the corresponding gating/side effect is skipped — used by tests
// that only care about a narrow slice of behavior.
func NewManager(
	st *store.Store,
	adapters map[ledger.Family]ledger.Adapter,
	signer Signer,
	logger *slog.Logger,
	bus *telemetry.Bus,
	walletGate WalletGate,
	transportIn transport.Transport,
	account AccountSettler,
	rebalance RebalanceConfig,
) *Manager {
	return &Manager{
		store:     st,
		adapters:  adapters,
		signer:    signer,
		logger:    logger,
		bus:       bus,
		wallet:    walletGate,
		transport: transportIn,
		account:   account,
		rebalance: rebalance,
	}
}

func (m *Manager) publish(ev telemetry.Event) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(ev)
}

func (m *Manager) adapterFor(family ledger.Family) (ledger.Adapter, error) {
	a, ok := m.adapters[family]
	if !ok {
		return nil, errs.New(errs.KindUnsupported, fmt.Sprintf("no adapter configured for family %s", family))
	}
	return a, nil
}

// lockFor returns the exclusive advisory lock serializing every
// nonce-bearing operation on channelID. Locks are created lazily and never
// removed, since channel ids are never reused.
func (m *Manager) lockFor(channelID proof.ChannelID) *sync.Mutex {
	v, _ := m.chanLocks.LoadOrStore(channelID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// requireActive queries the wallet gate, if one is wired, and fails
// WalletNotActive unless agentID is currently ACTIVE.
func (m *Manager) requireActive(ctx context.Context, agentID string) error {
	if m.wallet == nil {
		return nil
	}
	state, err := m.wallet.State(ctx, agentID)
	if err != nil {
		return err
	}
	if state != wallet.StateActive {
		return errs.New(errs.KindWalletNotActive, fmt.Sprintf("agent %s wallet state is %s, not ACTIVE", agentID, state))
	}
	return nil
}

func (m *Manager) recordWalletActivity(ctx context.Context, agentID, token string, amount *big.Int) {
	if m.wallet == nil {
		return
	}
	if err := m.wallet.RecordTransaction(ctx, agentID, token, amount); err != nil {
		m.logger.Warn("failed to record wallet activity", "agent_id", agentID, "error", err)
	}
}

func (m *Manager) storeAndCache(ctx context.Context, cs store.ChannelState) error {
	if err := m.store.Put(ctx, cs); err != nil {
		return err
	}
	m.cache.Store(cs.ChannelID, cs)
	return nil
}

// isActiveStatus reports whether cs should still be treated as open —
// matching store.ChannelState's own notion of "closed-at IS NULL" so the
// manager's cache and the store's ListActive index never disagree.
func isActiveStatus(s store.Status) bool {
	switch s {
	case store.StatusIntentOpen, store.StatusActive, store.StatusClosing:
		return true
	default:
		return false
	}
}

// OpenChannel opens a new channel with a peer, collapsing concurrent
// identical requests (same agent, family, peer, token) into a single on-chain
// open via singleflight — the idempotency behavior spec'd for open_channel.
func (m *Manager) OpenChannel(ctx context.Context, agentID string, family ledger.Family, peerID string, params ledger.OpenParams) (proof.ChannelID, error) {
	if err := m.requireActive(ctx, agentID); err != nil {
		return proof.ChannelID{}, err
	}

	adapter, err := m.adapterFor(family)
	if err != nil {
		return proof.ChannelID{}, err
	}

	key := fmt.Sprintf("%s:%s:%s:%s", agentID, family, peerID, params.Token)
	result, err, _ := m.openGroup.Do(key, func() (any, error) {
		channelID, _, err := adapter.Open(ctx, params)
		if err != nil {
			return nil, err
		}

		cs := store.ChannelState{
			ChannelID: channelID,
			AgentID:   agentID,
			Family:    family,
			PeerID:    peerID,
			Token:     params.Token,
			Status:    store.StatusActive,
			Deposit:   params.InitialDeposit.String(),
		}
		if err := m.storeAndCache(ctx, cs); err != nil {
			return nil, err
		}
		m.recordWalletActivity(ctx, agentID, params.Token, params.InitialDeposit)
		m.publish(telemetry.Event{
			Kind:  telemetry.KindAgentChannelOpened,
			Attrs: telemetry.Attr("agent_id", agentID, "channel_id", channelID.String(), "peer_id", peerID, "family", string(family)),
		})
		m.publish(telemetry.Event{
			Kind:  telemetry.KindPaymentChannelOpened,
			Attrs: telemetry.Attr("channel_id", channelID.String(), "peer_id", peerID, "family", string(family)),
		})
		return channelID, nil
	})
	if err != nil {
		return proof.ChannelID{}, err
	}
	return result.(proof.ChannelID), nil
}

// ApplyPayment advances channelID's local balance proof by amount,
// re-signs it, and persists the result, then hands the signed proof to the
// Peer Transport. It holds the channel's exclusive lock for the full
// read-modify-write so concurrent payments on the same channel cannot race
// past each other's nonce.
func (m *Manager) ApplyPayment(ctx context.Context, agentID string, channelID proof.ChannelID, family ledger.Family, amount *big.Int) (proof.BalanceProof, error) {
	if err := m.requireActive(ctx, agentID); err != nil {
		return proof.BalanceProof{}, err
	}

	lock := m.lockFor(channelID)
	lock.Lock()
	defer lock.Unlock()

	cs, err := m.store.GetForAgent(ctx, agentID, channelID)
	if err != nil {
		return proof.BalanceProof{}, err
	}
	if cs.Status != store.StatusActive {
		return proof.BalanceProof{}, errs.New(errs.KindChannelNotFound, "channel is not active")
	}

	next := nextProof(cs.LatestProof, channelID, amount)

	sig, err := m.signer.SignBalanceProof(ctx, agentID, family, next)
	if err != nil {
		return proof.BalanceProof{}, errs.Wrap(errs.KindInvalidSignature, "sign balance proof", err)
	}
	next.Signature = sig

	cs.LatestProof = &next
	if err := m.storeAndCache(ctx, cs); err != nil {
		return proof.BalanceProof{}, err
	}
	if err := m.store.AppendProofHistory(ctx, channelID, next); err != nil {
		return proof.BalanceProof{}, err
	}
	m.recordWalletActivity(ctx, agentID, cs.Token, amount)
	m.publish(telemetry.Event{
		Kind: telemetry.KindAgentChannelPaymentSent,
		Attrs: telemetry.Attr(
			"agent_id", agentID, "channel_id", channelID.String(), "peer_id", cs.PeerID,
			"nonce", next.Nonce.String(), "transferred_amount", next.TransferredAmount.String(),
		),
	})
	m.publish(telemetry.Event{
		Kind: telemetry.KindPaymentChannelBalanceUpd,
		Attrs: telemetry.Attr(
			"channel_id", channelID.String(), "peer_id", cs.PeerID,
			"nonce", next.Nonce.String(), "transferred_amount", next.TransferredAmount.String(),
		),
	})

	// The nonce has already advanced and been persisted above, so a
	// transport failure here never needs a rollback: the proof stays the
	// channel's latest, and the next payment builds its successor on top of
	// it. This proof is not resent.
	if m.transport != nil {
		wireBytes, encErr := proof.Encode(next)
		if encErr != nil {
			return next, errs.Wrap(errs.KindInvalidSignature, "encode balance proof for transport", encErr)
		}
		ack, sendErr := m.transport.SendBalanceProof(ctx, cs.PeerID, wireBytes, next.Signature)
		if sendErr != nil {
			return next, errs.Wrap(errs.KindTransportRejected, "send balance proof", sendErr)
		}
		if !ack.Accepted {
			return next, errs.New(errs.KindTransportRejected, ack.Reason)
		}
	}

	go m.rebalanceAsync(agentID)

	return next, nil
}

// rebalanceAsync runs the rebalance sweep detached from the caller's
// context, per the spec'd "non-blocking, failure logged but not
// propagated" contract for send_payment's follow-on check.
func (m *Manager) rebalanceAsync(agentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	m.CheckChannelRebalancing(ctx, agentID)
}

// ReceivePeerProof validates and records a counterparty-signed proof
// arriving over the peer transport. It enforces the two core invariants
// spec'd for incoming proofs: nonce must strictly increase and transferred
// amount must never decrease.
func (m *Manager) ReceivePeerProof(ctx context.Context, channelID proof.ChannelID, incoming proof.BalanceProof) error {
	lock := m.lockFor(channelID)
	lock.Lock()
	defer lock.Unlock()

	cs, err := m.store.Get(ctx, channelID)
	if err != nil {
		return err
	}

	if cs.LatestProof != nil {
		if incoming.Nonce.Cmp(cs.LatestProof.Nonce) <= 0 {
			return errs.New(errs.KindNonceNotMonotonic, "incoming proof nonce does not exceed current")
		}
		if incoming.TransferredAmount.Cmp(cs.LatestProof.TransferredAmount) < 0 {
			return errs.New(errs.KindTransferredExceedsDeposit, "incoming proof transferred amount decreased")
		}
	}

	cs.LatestProof = &incoming
	if err := m.storeAndCache(ctx, cs); err != nil {
		return err
	}
	if err := m.store.AppendProofHistory(ctx, channelID, incoming); err != nil {
		return err
	}
	m.publish(telemetry.Event{
		Kind: telemetry.KindPaymentChannelBalanceUpd,
		Attrs: telemetry.Attr(
			"channel_id", channelID.String(), "peer_id", cs.PeerID,
			"nonce", incoming.Nonce.String(), "transferred_amount", incoming.TransferredAmount.String(),
		),
	})
	return nil
}

// Close settles channelID, preferring the cooperative path when
// counterSignedPeerProof is supplied (both sides' signatures, immediate
// payout, no challenge period) and falling back to a unilateral close
// otherwise. A unilateral close starts a dispute watch so that if the peer
// later surfaces an on-chain close with a stale nonce, we submit our
// newer proof before the challenge period elapses.
func (m *Manager) Close(ctx context.Context, agentID string, channelID proof.ChannelID, counterSignedPeerProof *proof.BalanceProof) (*ledger.Receipt, error) {
	lock := m.lockFor(channelID)
	lock.Lock()
	defer lock.Unlock()

	cs, err := m.store.GetForAgent(ctx, agentID, channelID)
	if err != nil {
		return nil, err
	}
	if cs.LatestProof == nil {
		return nil, errs.New(errs.KindChannelNotFound, "no balance proof recorded for channel")
	}

	adapter, err := m.adapterFor(cs.Family)
	if err != nil {
		return nil, err
	}

	var receipt *ledger.Receipt
	cooperative := false
	if counterSignedPeerProof != nil {
		receipt, err = adapter.CooperativeSettle(ctx, channelID, *cs.LatestProof, *counterSignedPeerProof)
		cooperative = err == nil
	}
	if !cooperative {
		receipt, err = adapter.Close(ctx, channelID, *cs.LatestProof)
	}
	if err != nil {
		m.publish(telemetry.Event{
			Kind:  telemetry.KindAgentChannelClosed,
			Attrs: telemetry.Attr("agent_id", agentID, "channel_id", channelID.String(), "peer_id", cs.PeerID, "success", "false", "error_message", err.Error()),
		})
		return nil, err
	}

	cs.Status = store.StatusClosing
	if cooperative {
		cs.Status = store.StatusSettled
		cs.SettledPhase = ledger.PhaseSettled
	}
	if err := m.storeAndCache(ctx, cs); err != nil {
		return nil, err
	}
	m.publish(telemetry.Event{
		Kind:  telemetry.KindAgentChannelClosed,
		Attrs: telemetry.Attr("agent_id", agentID, "channel_id", channelID.String(), "peer_id", cs.PeerID, "success", "true"),
	})
	if cooperative {
		m.publish(telemetry.Event{
			Kind:  telemetry.KindPaymentChannelSettled,
			Attrs: telemetry.Attr("channel_id", channelID.String(), "peer_id", cs.PeerID, "success", "true"),
		})
	} else {
		go m.watchForDispute(cs, adapter)
	}

	if m.account != nil {
		settled := decimal.NewFromBigInt(cs.LatestProof.TransferredAmount, 0)
		if err := m.account.RecordSettlement(ctx, cs.PeerID, cs.Token, settled); err != nil {
			m.logger.Warn("failed to record settlement against account balance", "channel_id", channelID.Hex(), "error", err)
		}
	}

	return receipt, nil
}

// watchForDispute observes adapter's event stream for cs after a unilateral
// close and, if the ledger's closing proof turns out to carry a lower nonce
// than the one we hold, submits an update before the challenge period
// elapses. If we miss the window, the on-chain outcome stands — the
// trust-minimization boundary the design accepts.
func (m *Manager) watchForDispute(cs store.ChannelState, adapter ledger.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	events, err := adapter.Watch(ctx, cs.ChannelID)
	if err != nil {
		m.logger.Warn("cannot watch channel for disputes", "channel_id", cs.ChannelID.Hex(), "error", err)
		return
	}
	for ev := range events {
		if ev.Kind != ledger.EventChannelClosed || ev.Nonce == nil {
			continue
		}
		lock := m.lockFor(cs.ChannelID)
		lock.Lock()
		latest, err := m.store.Get(ctx, cs.ChannelID)
		lock.Unlock()
		if err != nil || latest.LatestProof == nil {
			continue
		}
		if ev.Nonce.Cmp(latest.LatestProof.Nonce) >= 0 {
			continue
		}
		m.logger.Warn("disputed close observed with stale nonce, submitting update",
			"channel_id", cs.ChannelID.Hex(), "onchain_nonce", ev.Nonce.String(), "our_nonce", latest.LatestProof.Nonce.String())
		stale := proof.BalanceProof{ChannelID: cs.ChannelID, Nonce: ev.Nonce}
		if _, err := adapter.UpdateNonClosingBalanceProof(ctx, cs.ChannelID, stale, *latest.LatestProof); err != nil {
			m.logger.Error("failed to submit non-closing balance proof update", "channel_id", cs.ChannelID.Hex(), "error", err)
		}
	}
}

// Settle finalizes payout for channelID once its challenge period has
// elapsed, using both sides' latest proofs.
func (m *Manager) Settle(ctx context.Context, channelID proof.ChannelID, peerProof proof.BalanceProof) (*ledger.Receipt, error) {
	lock := m.lockFor(channelID)
	lock.Lock()
	defer lock.Unlock()

	cs, err := m.store.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if cs.LatestProof == nil {
		return nil, errs.New(errs.KindChannelNotFound, "no balance proof recorded for channel")
	}

	adapter, err := m.adapterFor(cs.Family)
	if err != nil {
		return nil, err
	}
	receipt, err := adapter.Settle(ctx, channelID, *cs.LatestProof, peerProof)
	if err != nil {
		m.publish(telemetry.Event{
			Kind:  telemetry.KindPaymentChannelSettled,
			Attrs: telemetry.Attr("channel_id", channelID.String(), "peer_id", cs.PeerID, "success", "false", "error_message", err.Error()),
		})
		return nil, err
	}

	cs.Status = store.StatusSettled
	cs.SettledPhase = ledger.PhaseSettled
	if err := m.storeAndCache(ctx, cs); err != nil {
		return nil, err
	}
	m.publish(telemetry.Event{
		Kind:  telemetry.KindPaymentChannelSettled,
		Attrs: telemetry.Attr("channel_id", channelID.String(), "peer_id", cs.PeerID, "success", "true"),
	})
	if m.account != nil {
		settled := decimal.NewFromBigInt(cs.LatestProof.TransferredAmount, 0)
		if err := m.account.RecordSettlement(ctx, cs.PeerID, cs.Token, settled); err != nil {
			m.logger.Warn("failed to record settlement against account balance", "channel_id", channelID.Hex(), "error", err)
		}
	}
	return receipt, nil
}

// GetAgentChannels returns agentID's active channels, cache-first once the
// manager has run its startup recovery (LoadActiveChannels); before that it
// falls back to the durable store directly.
func (m *Manager) GetAgentChannels(ctx context.Context, agentID string) ([]store.ChannelState, error) {
	if !m.recovered.Load() {
		return m.store.ListActive(ctx, agentID)
	}
	var out []store.ChannelState
	m.cache.Range(func(_, v any) bool {
		cs := v.(store.ChannelState)
		if cs.AgentID == agentID && isActiveStatus(cs.Status) {
			out = append(out, cs)
		}
		return true
	})
	return out, nil
}

// LoadActiveChannels performs startup recovery: it loads every persisted
// channel, reconciles the ones still open against the ledger's own view,
// and primes the in-memory cache GetAgentChannels reads from thereafter.
func (m *Manager) LoadActiveChannels(ctx context.Context) error {
	rows, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	for _, cs := range rows {
		if isActiveStatus(cs.Status) {
			m.reconcileOnStartup(ctx, cs)
		} else {
			m.cache.Store(cs.ChannelID, cs)
		}
	}
	m.recovered.Store(true)
	return nil
}

// reconcileOnStartup compares cs against the ledger's materialized state and
// marks the channel settled in the store if the ledger reports SETTLED. An
// on-chain nonce ahead of the persisted proof is logged only; the local
// proof and store record are kept as they are.
func (m *Manager) reconcileOnStartup(ctx context.Context, cs store.ChannelState) {
	adapter, err := m.adapterFor(cs.Family)
	if err != nil {
		m.logger.Warn("startup reconciliation: no adapter for channel family", "channel_id", cs.ChannelID.Hex(), "error", err)
		m.cache.Store(cs.ChannelID, cs)
		return
	}
	onchain, err := adapter.State(ctx, cs.ChannelID)
	if err != nil {
		m.logger.Warn("startup reconciliation: ledger unavailable", "channel_id", cs.ChannelID.Hex(), "error", err)
		m.cache.Store(cs.ChannelID, cs)
		return
	}
	if onchain.LatestNonce != nil && (cs.LatestProof == nil || onchain.LatestNonce.Cmp(cs.LatestProof.Nonce) > 0) {
		m.logger.Warn("startup reconciliation: on-chain nonce ahead of local state; keeping local state",
			"channel_id", cs.ChannelID.Hex(), "onchain_nonce", onchain.LatestNonce.String())
	}
	if onchain.Phase == ledger.PhaseSettled && cs.Status != store.StatusSettled {
		cs.Status = store.StatusSettled
		cs.SettledPhase = ledger.PhaseSettled
		if err := m.store.Put(ctx, cs); err != nil {
			m.logger.Error("startup reconciliation: failed to persist settled channel", "channel_id", cs.ChannelID.Hex(), "error", err)
		}
	}
	m.cache.Store(cs.ChannelID, cs)
}

// CheckChannelRebalancing sweeps agentID's active channels and closes+
// reopens any whose remaining on-chain balance has fallen below
// MinBalance, funding the replacement at MaxBalance. Per-channel failures
// are logged and never stop the sweep.
func (m *Manager) CheckChannelRebalancing(ctx context.Context, agentID string) {
	if !m.rebalance.Enabled {
		return
	}
	channels, err := m.GetAgentChannels(ctx, agentID)
	if err != nil {
		m.logger.Warn("rebalance sweep: failed to list agent channels", "agent_id", agentID, "error", err)
		return
	}
	for _, cs := range channels {
		if cs.Status != store.StatusActive {
			continue
		}
		if err := m.rebalanceOne(ctx, agentID, cs); err != nil {
			m.logger.Warn("rebalance failed for channel, continuing with others", "channel_id", cs.ChannelID.Hex(), "error", err)
		}
	}
}

func (m *Manager) rebalanceOne(ctx context.Context, agentID string, cs store.ChannelState) error {
	adapter, err := m.adapterFor(cs.Family)
	if err != nil {
		return err
	}
	state, err := adapter.State(ctx, cs.ChannelID)
	if err != nil {
		return err
	}
	if state.TotalDeposit == nil || state.CumulativeTransferred == nil {
		return nil
	}
	remaining := new(big.Int).Sub(state.TotalDeposit, state.CumulativeTransferred)
	if remaining.Cmp(m.rebalance.MinBalance) >= 0 {
		return nil
	}

	if _, err := m.Close(ctx, agentID, cs.ChannelID, nil); err != nil {
		return errs.Wrap(errs.KindUnknown, "rebalance: close depleted channel", err)
	}
	if _, err := m.OpenChannel(ctx, agentID, cs.Family, cs.PeerID, ledger.OpenParams{
		PeerAddress:    cs.PeerID,
		Token:          cs.Token,
		InitialDeposit: m.rebalance.MaxBalance,
	}); err != nil {
		return errs.Wrap(errs.KindUnknown, "rebalance: open replacement channel", err)
	}
	return nil
}

// Run subscribes to SETTLEMENT_TRIGGERED and drives a settling close for
// every active channel open to the triggering peer, completing the
// trigger/consume loop the settlement monitor starts when a peer's
// unsettled balance crosses its threshold.
func (m *Manager) Run(ctx context.Context) error {
	if m.bus == nil {
		<-ctx.Done()
		return nil
	}

	sub := m.bus.Subscribe(telemetry.KindSettlementTriggered)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			m.handleSettlementTrigger(ctx, ev)
		}
	}
}

func (m *Manager) handleSettlementTrigger(ctx context.Context, ev telemetry.Event) {
	peerID := ev.Attrs["peer_id"]
	if peerID == "" {
		return
	}
	for _, cs := range m.activeChannelsForPeer(peerID) {
		if _, err := m.Close(ctx, cs.AgentID, cs.ChannelID, nil); err != nil {
			m.logger.Warn("settlement-triggered close failed", "peer_id", peerID, "channel_id", cs.ChannelID.Hex(), "error", err)
		}
	}
}

func (m *Manager) activeChannelsForPeer(peerID string) []store.ChannelState {
	var out []store.ChannelState
	m.cache.Range(func(_, v any) bool {
		cs := v.(store.ChannelState)
		if cs.PeerID == peerID && isActiveStatus(cs.Status) {
			out = append(out, cs)
		}
		return true
	})
	return out
}

// nextProof builds the successor to prev (or a fresh nonce-1 proof if prev
// is nil), incrementing the nonce and adding amount to the cumulative
// transferred total.
func nextProof(prev *proof.BalanceProof, channelID proof.ChannelID, amount *big.Int) proof.BalanceProof {
	if prev == nil {
		return proof.BalanceProof{
			ChannelID:         channelID,
			Nonce:             big.NewInt(1),
			TransferredAmount: new(big.Int).Set(amount),
			LockedAmount:      big.NewInt(0),
		}
	}
	return proof.BalanceProof{
		ChannelID:         channelID,
		Nonce:             new(big.Int).Add(prev.Nonce, big.NewInt(1)),
		TransferredAmount: new(big.Int).Add(prev.TransferredAmount, amount),
		LockedAmount:      prev.LockedAmount,
		LocksRoot:         prev.LocksRoot,
	}
}
