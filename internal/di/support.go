package di

import (
	"encoding/hex"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gitlab.com/warrant1/connector/internal/channel"
	"gitlab.com/warrant1/connector/internal/config"
	"gitlab.com/warrant1/connector/internal/errs"
	"gitlab.com/warrant1/connector/internal/ledger"
	"gitlab.com/warrant1/connector/internal/ledger/evm"
	"gitlab.com/warrant1/connector/internal/ledger/xrp"
	"gitlab.com/warrant1/connector/internal/settlement"
	"gitlab.com/warrant1/connector/internal/signer"
	"gitlab.com/warrant1/connector/internal/telemetry"
)

const (
	// telemetryBufferSize is the per-subscriber channel depth on the
	// Telemetry Bus. A subscriber that falls this far behind starts
	// dropping events rather than stalling a publisher.
	telemetryBufferSize = 256

	// localAgentID is the agent id the signer service derives this
	// node's own operating keys under, distinct from any remote peer's
	// agent id.
	localAgentID = "local"
)

// buildLedgerAdapters constructs one ledger.Adapter per configured ledger,
// keyed by family, failing closed on an unrecognized family or malformed
// address/chain-id fields.
func buildLedgerAdapters(cfg *config.Config, sv *signer.Service) (map[ledger.Family]ledger.Adapter, error) {
	adapters := make(map[ledger.Family]ledger.Adapter, len(cfg.Ledgers))
	agent := sv.ForAgent(localAgentID)

	for _, lc := range cfg.Ledgers {
		timeout := time.Duration(lc.Timeout) * time.Second

		switch ledger.Family(lc.Family) {
		case ledger.FamilyEVM:
			chainID, ok := new(big.Int).SetString(lc.ChainID, 10)
			if !ok {
				return nil, errs.New(errs.KindUnsupported, "invalid evm chain id: "+lc.ChainID)
			}
			contract, err := hexDecodeAddress20(lc.ContractAddress)
			if err != nil {
				return nil, err
			}
			adapters[ledger.FamilyEVM] = evm.NewAdapter(evm.Config{
				RPCURL:            lc.RPCURL,
				Timeout:           timeout,
				ChainID:           chainID,
				ContractAddress:   contract,
				ConfirmationDepth: lc.ConfirmationDepth,
				DomainName:        "connector",
				DomainVersion:     "1",
			}, agent)

		case ledger.FamilyXRP:
			a, err := xrp.NewAdapter(xrp.Config{RPCURL: lc.RPCURL, Timeout: timeout}, agent)
			if err != nil {
				return nil, errs.Wrap(errs.KindLedgerUnavailable, "build xrp adapter", err)
			}
			adapters[ledger.FamilyXRP] = a

		default:
			return nil, errs.New(errs.KindUnsupported, "unknown ledger family: "+lc.Family)
		}
	}

	return adapters, nil
}

func hexDecodeAddress20(s string) ([20]byte, error) {
	var out [20]byte
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return out, errs.Wrap(errs.KindUnsupported, "decode contract address", err)
	}
	if len(b) != 20 {
		return out, errs.New(errs.KindUnsupported, "contract address must be 20 bytes, got "+strconv.Itoa(len(b)))
	}
	copy(out[:], b)
	return out, nil
}

// buildSettlementMonitor parses the configured trigger threshold and
// returns a Monitor subscribed to bus.
func buildSettlementMonitor(cfg *config.Config, bus *telemetry.Bus, log *slog.Logger) (*settlement.Monitor, error) {
	threshold, err := decimal.NewFromString(cfg.Settlement.TriggerThreshold)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnsupported, "parse settlement trigger threshold", err)
	}
	return settlement.NewMonitor(bus, threshold, log), nil
}

// buildRebalanceConfig parses the configured min/max channel balance
// figures into the big.Int form the Channel Manager's rebalance sweep
// operates on; a zero value for either is only meaningful when
// RebalanceEnabled is false.
func buildRebalanceConfig(cfg *config.Config) (channel.RebalanceConfig, error) {
	if !cfg.Channel.RebalanceEnabled {
		return channel.RebalanceConfig{Enabled: false}, nil
	}
	minBal, ok := new(big.Int).SetString(cfg.Channel.MinChannelBalance, 10)
	if !ok {
		return channel.RebalanceConfig{}, errs.New(errs.KindUnsupported, "invalid channel.min_channel_balance: "+cfg.Channel.MinChannelBalance)
	}
	maxBal, ok := new(big.Int).SetString(cfg.Channel.MaxChannelBalance, 10)
	if !ok {
		return channel.RebalanceConfig{}, errs.New(errs.KindUnsupported, "invalid channel.max_channel_balance: "+cfg.Channel.MaxChannelBalance)
	}
	return channel.RebalanceConfig{
		Enabled:    true,
		MinBalance: minBal,
		MaxBalance: maxBal,
	}, nil
}
