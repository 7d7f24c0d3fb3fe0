//go:build wireinject
// +build wireinject

// Package di provides dependency injection providers for the connector
// using Google Wire. It defines the dependency graph — logger, telemetry
// bus, channel store, signer service, ledger adapters, account and channel
// managers, settlement monitor, and the process supervisor that runs them —
// and wires them together at build time rather than runtime.
package di

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/google/wire"

	"gitlab.com/warrant1/connector/internal/account"
	"gitlab.com/warrant1/connector/internal/channel"
	"gitlab.com/warrant1/connector/internal/config"
	"gitlab.com/warrant1/connector/internal/ledger"
	"gitlab.com/warrant1/connector/internal/logger"
	"gitlab.com/warrant1/connector/internal/proof"
	"gitlab.com/warrant1/connector/internal/server"
	"gitlab.com/warrant1/connector/internal/settlement"
	"gitlab.com/warrant1/connector/internal/signer"
	"gitlab.com/warrant1/connector/internal/store"
	"gitlab.com/warrant1/connector/internal/telemetry"
	"gitlab.com/warrant1/connector/internal/transport"
	"gitlab.com/warrant1/connector/internal/wallet"
)

// ProvideLogger returns a new slog.Logger instance using the logger package
// and the provided LogConfig.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	return logger.NewLogger(cfg.LoggerConfig())
}

// ProvideTelemetryBus returns the connector's Telemetry Bus, buffered per
// subscriber so a slow consumer never blocks a publisher.
func ProvideTelemetryBus(log *slog.Logger) *telemetry.Bus {
	return telemetry.NewBus(telemetryBufferSize, log)
}

// ProvideStoreOrPanic returns the durable channel store. It panics if the
// backing bbolt database cannot be opened, which is appropriate at startup:
// the connector cannot recover channel state without it.
func ProvideStoreOrPanic(cfg *config.Config) *store.Store {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		panic(err)
	}
	return st
}

// ProvideSignerService returns the Signer Service, the single source of
// every derived signing key the connector uses, local and per-agent alike.
func ProvideSignerService(cfg *config.Config) *signer.Service {
	return signer.NewService(cfg.Signer.MasterSeedHex, proof.Domain{
		Name:    "connector",
		Version: "1",
		ChainID: big.NewInt(0),
	})
}

// ProvideLedgerAdapters builds one ledger.Adapter per configured ledger,
// keyed by family, each backed by the connector's own operating identity
// from the signer service.
func ProvideLedgerAdapters(cfg *config.Config, sv *signer.Service) (map[ledger.Family]ledger.Adapter, error) {
	return buildLedgerAdapters(cfg, sv)
}

// ProvideWalletAuthority returns the Wallet Lifecycle Authority, publishing
// state transitions onto the telemetry bus. Persistence is out of scope, so
// no PersistHook is wired in.
func ProvideWalletAuthority(bus *telemetry.Bus) *wallet.Authority {
	return wallet.NewAuthority(nil, bus)
}

// ProvideAccountManager returns the Account Manager, publishing balance
// updates onto the telemetry bus.
func ProvideAccountManager(bus *telemetry.Bus) *account.Manager {
	return account.NewManager(bus)
}

// ProvideRebalanceConfig returns the Channel Manager's rebalance tuning,
// parsed from decimal-string configuration into the big.Int form the
// rebalance sweep compares on-chain balances against.
func ProvideRebalanceConfig(cfg *config.Config) (channel.RebalanceConfig, error) {
	return buildRebalanceConfig(cfg)
}

// ProvideChannelManager returns the Channel Manager, wired to the store,
// the ledger adapters, the signer service (resolving signing identity per
// agent rather than binding one at construction time), the Wallet
// Lifecycle Authority gate, the Peer Transport, the Account Manager, and
// the telemetry bus. It is itself a server.Worker: it consumes
// SETTLEMENT_TRIGGERED and drives the corresponding channel close.
func ProvideChannelManager(
	st *store.Store,
	adapters map[ledger.Family]ledger.Adapter,
	sv *signer.Service,
	log *slog.Logger,
	bus *telemetry.Bus,
	walletAuthority *wallet.Authority,
	tr *transport.Loopback,
	accountManager *account.Manager,
	rebalanceCfg channel.RebalanceConfig,
) (*channel.Manager, error) {
	mgr := channel.NewManager(st, adapters, sv, log, bus, walletAuthority, tr, accountManager, rebalanceCfg)
	if err := mgr.LoadActiveChannels(context.Background()); err != nil {
		return nil, err
	}
	return mgr, nil
}

// ProvideSettlementMonitor returns the Settlement Monitor, subscribed to
// the telemetry bus with no direct reference to the account or channel
// managers.
func ProvideSettlementMonitor(cfg *config.Config, bus *telemetry.Bus, log *slog.Logger) (*settlement.Monitor, error) {
	return buildSettlementMonitor(cfg, bus, log)
}

// ProvideTransport returns the Peer Transport. The in-memory Loopback
// stands in until a wire-level transport is configured.
func ProvideTransport() *transport.Loopback {
	return transport.NewLoopback()
}

// ProvideAppServer returns the process supervisor running every background
// worker the connector owns: the Settlement Monitor and the Channel
// Manager.
func ProvideAppServer(log *slog.Logger, mon *settlement.Monitor, mgr *channel.Manager) *server.Server {
	return server.NewServer(log, mon, mgr)
}

// InitializeServer builds the complete connector dependency graph from cfg
// and returns the process supervisor ready to run.
func InitializeServer(cfg *config.Config) (*server.Server, error) {
	wire.Build(
		ProvideLogger,
		ProvideTelemetryBus,
		ProvideStoreOrPanic,
		ProvideSignerService,
		ProvideLedgerAdapters,
		ProvideWalletAuthority,
		ProvideAccountManager,
		ProvideTransport,
		ProvideRebalanceConfig,
		ProvideChannelManager,
		ProvideSettlementMonitor,
		ProvideAppServer,
	)
	return &server.Server{}, nil
}
