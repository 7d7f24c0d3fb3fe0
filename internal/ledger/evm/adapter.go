package evm

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"gitlab.com/warrant1/connector/internal/errs"
	"gitlab.com/warrant1/connector/internal/ledger"
	"gitlab.com/warrant1/connector/internal/proof"
)

func hexDecodeWord(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, errs.Wrap(errs.KindLedgerUnavailable, "decode log topic", err)
	}
	return b, nil
}

// Signer is the narrow capability the adapter needs from the signer
// service: produce an EIP-712/legacy-tx signature over a digest without
// ever handing the private key itself across the package boundary.
type Signer interface {
	SignEVM(ctx context.Context, digest [32]byte) ([]byte, error)
	EVMAddress(ctx context.Context) ([20]byte, error)
}

// Config bundles the fixed parameters an Adapter is constructed with.
type Config struct {
	RPCURL            string
	Timeout           time.Duration
	ChainID           *big.Int
	ContractAddress   [20]byte
	ConfirmationDepth uint64
	DomainName        string
	DomainVersion     string
}

// Adapter implements ledger.Adapter against an EVM-family payment-channel
// contract over a plain JSON-RPC connection.
type Adapter struct {
	client *Client
	signer Signer
	cfg    Config
	domain proof.Domain
}

// NewAdapter wires an Adapter from cfg and signer.
func NewAdapter(cfg Config, signer Signer) *Adapter {
	return &Adapter{
		client: NewClient(cfg.RPCURL, cfg.Timeout),
		signer: signer,
		cfg:    cfg,
		domain: proof.Domain{
			Name:              cfg.DomainName,
			Version:           cfg.DomainVersion,
			ChainID:           cfg.ChainID,
			VerifyingContract: cfg.ContractAddress,
		},
	}
}

func (a *Adapter) Family() ledger.Family { return ledger.FamilyEVM }

// sendTx is the shared submit path for every mutating call: resolve the
// signer's nonce and the network gas price, sign the resulting legacy
// transaction, and broadcast it.
func (a *Adapter) sendTx(ctx context.Context, data []byte, gasLimit uint64) (*ledger.Receipt, error) {
	from, err := a.signer.EVMAddress(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindLedgerUnavailable, "resolve signer address", err)
	}

	nonce, err := a.fetchNonce(ctx, from)
	if err != nil {
		return nil, err
	}
	gasPrice, err := a.fetchGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	tx := legacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		To:       a.cfg.ContractAddress,
		Value:    big.NewInt(0),
		Data:     data,
		ChainID:  a.cfg.ChainID,
	}

	sig, err := a.signer.SignEVM(ctx, tx.signingHash())
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidSignature, "sign transaction", err)
	}

	raw := tx.encodeSigned(sig)
	var txHash string
	if err := a.client.Call(ctx, "eth_sendRawTransaction", []any{hexEncode(raw)}, &txHash); err != nil {
		return nil, errs.Wrap(errs.KindLedgerUnavailable, "broadcast transaction", err)
	}

	return a.waitForReceipt(ctx, txHash)
}

func (a *Adapter) fetchNonce(ctx context.Context, from [20]byte) (uint64, error) {
	var result string
	if err := a.client.Call(ctx, "eth_getTransactionCount", []any{hexEncode(from[:]), "pending"}, &result); err != nil {
		return 0, errs.Wrap(errs.KindLedgerUnavailable, "fetch nonce", err)
	}
	return parseHexUint(result)
}

func (a *Adapter) fetchGasPrice(ctx context.Context) (*big.Int, error) {
	var result string
	if err := a.client.Call(ctx, "eth_gasPrice", nil, &result); err != nil {
		return nil, errs.Wrap(errs.KindLedgerUnavailable, "fetch gas price", err)
	}
	v, err := parseHexUint(result)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetUint64(v), nil
}

func (a *Adapter) waitForReceipt(ctx context.Context, txHash string) (*ledger.Receipt, error) {
	type receipt struct {
		BlockNumber     string `json:"blockNumber"`
		Status          string `json:"status"`
		TransactionHash string `json:"transactionHash"`
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		var r *receipt
		if err := a.client.Call(ctx, "eth_getTransactionReceipt", []any{txHash}, &r); err != nil {
			return nil, errs.Wrap(errs.KindLedgerUnavailable, "fetch receipt", err)
		}
		if r != nil {
			if r.Status == "0x0" {
				return nil, errs.New(errs.KindReverted, fmt.Sprintf("transaction %s reverted", txHash))
			}
			block, err := parseHexUint(r.BlockNumber)
			if err != nil {
				return nil, err
			}
			return &ledger.Receipt{TxID: txHash, Block: block}, nil
		}
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.KindTimeout, "waiting for receipt", ctx.Err())
		case <-ticker.C:
		}
	}
}

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errs.Wrap(errs.KindLedgerUnavailable, "parse hex quantity", err)
	}
	return v, nil
}

const defaultGasLimit = 250_000

func (a *Adapter) Open(ctx context.Context, params ledger.OpenParams) (proof.ChannelID, *ledger.Receipt, error) {
	var peer [20]byte
	copy(peer[:], []byte(params.PeerAddress))

	data := encodeCall(
		"openChannel(address,uint256,uint256)",
		packAddress(peer),
		uint64ToWord(params.SettlementTimeout),
		packUint256(params.InitialDeposit),
	)

	receipt, err := a.sendTx(ctx, data, defaultGasLimit)
	if err != nil {
		return proof.ChannelID{}, nil, err
	}

	channelID, err := a.channelIDFromReceipt(ctx, receipt.TxID)
	if err != nil {
		return proof.ChannelID{}, nil, err
	}
	return channelID, receipt, nil
}

// channelIDFromReceipt reads back the ChannelOpened log emitted by the
// transaction just mined and returns its channel id, carried as the log's
// first indexed topic.
func (a *Adapter) channelIDFromReceipt(ctx context.Context, txHash string) (proof.ChannelID, error) {
	var r struct {
		Logs []struct {
			Topics []string `json:"topics"`
		} `json:"logs"`
	}
	if err := a.client.Call(ctx, "eth_getTransactionReceipt", []any{txHash}, &r); err != nil {
		return proof.ChannelID{}, errs.Wrap(errs.KindLedgerUnavailable, "fetch open receipt", err)
	}
	if len(r.Logs) == 0 || len(r.Logs[0].Topics) < 2 {
		return proof.ChannelID{}, errs.New(errs.KindLedgerUnavailable, "open receipt missing channel id topic")
	}
	raw, err := hexDecodeWord(r.Logs[0].Topics[1])
	if err != nil {
		return proof.ChannelID{}, err
	}
	var channelID proof.ChannelID
	copy(channelID[:], raw)
	return channelID, nil
}

func (a *Adapter) SetTotalDeposit(ctx context.Context, channelID proof.ChannelID, newTotal *big.Int) (*ledger.Receipt, error) {
	data := encodeCall("setTotalDeposit(bytes32,uint256)", [32]byte(channelID), packUint256(newTotal))
	return a.sendTx(ctx, data, defaultGasLimit)
}

func (a *Adapter) Close(ctx context.Context, channelID proof.ChannelID, peerProof proof.BalanceProof) (*ledger.Receipt, error) {
	data, err := a.encodeProofCall("closeChannel", channelID, peerProof)
	if err != nil {
		return nil, err
	}
	return a.sendTx(ctx, data, defaultGasLimit)
}

func (a *Adapter) UpdateNonClosingBalanceProof(ctx context.Context, channelID proof.ChannelID, closing, nonClosing proof.BalanceProof) (*ledger.Receipt, error) {
	// The contract call needs the stale closing proof's nonce to locate the
	// dispute record, then overrides it with the newer non-closing proof.
	data, err := a.encodeProofCall("updateNonClosingBalanceProof", channelID, nonClosing)
	if err != nil {
		return nil, err
	}
	data = append(data, packUint256(closing.Nonce)[:]...)
	return a.sendTx(ctx, data, defaultGasLimit)
}

func (a *Adapter) Settle(ctx context.Context, channelID proof.ChannelID, selfProof, peerProof proof.BalanceProof) (*ledger.Receipt, error) {
	data, err := a.encodeProofCall("settleChannel", channelID, peerProof)
	if err != nil {
		return nil, err
	}
	return a.sendTx(ctx, data, defaultGasLimit)
}

func (a *Adapter) CooperativeSettle(ctx context.Context, channelID proof.ChannelID, selfProof, peerProof proof.BalanceProof) (*ledger.Receipt, error) {
	data, err := a.encodeProofCall("cooperativeSettle", channelID, peerProof)
	if err != nil {
		return nil, err
	}
	return a.sendTx(ctx, data, defaultGasLimit)
}

func (a *Adapter) Withdraw(ctx context.Context, channelID proof.ChannelID, withdraw proof.WithdrawProof) (*ledger.Receipt, error) {
	data := encodeCall(
		"withdraw(bytes32,uint256,uint256,uint256,bytes)",
		[32]byte(channelID),
		packUint256(withdraw.Amount),
		packUint256(withdraw.Nonce),
		uint64ToWord(uint64(withdraw.Expiry)),
		uint64ToWord(5*32),
		uint64ToWord(uint64(len(withdraw.Signature))),
	)
	sigTail := make([]byte, (len(withdraw.Signature)+31)/32*32)
	copy(sigTail, withdraw.Signature)
	data = append(data, sigTail...)
	return a.sendTx(ctx, data, defaultGasLimit)
}

func (a *Adapter) ForceCloseExpired(ctx context.Context, channelID proof.ChannelID) (*ledger.Receipt, error) {
	data := encodeCall("forceCloseExpired(bytes32)", [32]byte(channelID))
	return a.sendTx(ctx, data, defaultGasLimit)
}

// encodeProofCall builds calldata for a method taking a channel id, a
// balance proof's canonical fields, and its signature.
func (a *Adapter) encodeProofCall(method string, channelID proof.ChannelID, p proof.BalanceProof) ([]byte, error) {
	if p.Nonce == nil || p.TransferredAmount == nil || p.LockedAmount == nil {
		return nil, errs.New(errs.KindInvalidSignature, "proof missing required amount field")
	}
	sig := p.Signature
	sigWord := [32]byte{}
	if len(sig) >= 32 {
		copy(sigWord[:], sig[:32])
	}
	return encodeCall(
		method+"(bytes32,uint256,uint256,uint256,bytes32)",
		[32]byte(channelID),
		packUint256(p.Nonce),
		packUint256(p.TransferredAmount),
		packUint256(p.LockedAmount),
		sigWord,
	), nil
}

func (a *Adapter) State(ctx context.Context, channelID proof.ChannelID) (ledger.OnChainChannelState, error) {
	data := encodeCall("channelState(bytes32)", [32]byte(channelID))
	var result string
	if err := a.client.Call(ctx, "eth_call", []any{
		map[string]any{"to": hexEncode(a.cfg.ContractAddress[:]), "data": hexEncode(data)},
		"latest",
	}, &result); err != nil {
		return ledger.OnChainChannelState{}, errs.Wrap(errs.KindLedgerUnavailable, "read channel state", err)
	}
	return decodeChannelState(result)
}

func (a *Adapter) Watch(ctx context.Context, channelID proof.ChannelID) (<-chan ledger.Event, error) {
	out := make(chan ledger.Event, 16)
	go a.pollLogs(ctx, channelID, out)
	return out, nil
}

// pollLogs polls eth_getLogs for the contract address on an interval
// instead of opening a persistent subscription; the RPC client here speaks
// plain JSON-RPC, not the websocket eth_subscribe extension.
func (a *Adapter) pollLogs(ctx context.Context, channelID proof.ChannelID, out chan<- ledger.Event) {
	defer close(out)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, err := a.fetchLogs(ctx, channelID)
			if err != nil {
				continue
			}
			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (a *Adapter) fetchLogs(ctx context.Context, channelID proof.ChannelID) ([]ledger.Event, error) {
	var logs []struct {
		Topics []string `json:"topics"`
		Data   string   `json:"data"`
	}
	filter := map[string]any{
		"address": hexEncode(a.cfg.ContractAddress[:]),
		"topics":  []any{nil, hexEncode(channelID[:])},
	}
	if err := a.client.Call(ctx, "eth_getLogs", []any{filter}, &logs); err != nil {
		return nil, errs.Wrap(errs.KindLedgerUnavailable, "fetch logs", err)
	}

	events := make([]ledger.Event, 0, len(logs))
	for _, l := range logs {
		if len(l.Topics) == 0 {
			continue
		}
		events = append(events, ledger.Event{
			Kind:      eventKindFromTopic(l.Topics[0]),
			ChannelID: channelID,
			Amounts:   map[string]*big.Int{},
		})
	}
	return events, nil
}

func eventKindFromTopic(topic string) ledger.EventKind {
	switch {
	case strings.HasPrefix(topic, "0x01"):
		return ledger.EventChannelOpened
	case strings.HasPrefix(topic, "0x02"):
		return ledger.EventChannelClosed
	case strings.HasPrefix(topic, "0x03"):
		return ledger.EventChannelCooperativeSettled
	default:
		return ledger.EventChannelSettled
	}
}
