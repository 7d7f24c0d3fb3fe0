//go:build !wireinject
// +build !wireinject

// This file is maintained by hand to match the provider set in wire.go; it
// is not Wire output.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire gen ./internal/di

package di

import (
	"context"
	"math/big"

	"gitlab.com/warrant1/connector/internal/account"
	"gitlab.com/warrant1/connector/internal/channel"
	"gitlab.com/warrant1/connector/internal/config"
	"gitlab.com/warrant1/connector/internal/logger"
	"gitlab.com/warrant1/connector/internal/proof"
	"gitlab.com/warrant1/connector/internal/server"
	"gitlab.com/warrant1/connector/internal/signer"
	"gitlab.com/warrant1/connector/internal/store"
	"gitlab.com/warrant1/connector/internal/telemetry"
	"gitlab.com/warrant1/connector/internal/transport"
	"gitlab.com/warrant1/connector/internal/wallet"
)

// InitializeServer builds the complete connector dependency graph from cfg
// and returns the process supervisor ready to run. This is the hand-wired
// equivalent of what `wire gen` would emit from wire.go's injector; it must
// be kept in lockstep with wire.go's provider set by hand, since this
// module does not run code generation as part of its build.
func InitializeServer(cfg *config.Config) (*server.Server, error) {
	log := logger.NewLogger(cfg.LoggerConfig())

	bus := telemetry.NewBus(telemetryBufferSize, log)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	sv := signer.NewService(cfg.Signer.MasterSeedHex, proof.Domain{
		Name:    "connector",
		Version: "1",
		ChainID: big.NewInt(0),
	})

	adapters, err := buildLedgerAdapters(cfg, sv)
	if err != nil {
		return nil, err
	}

	walletAuthority := wallet.NewAuthority(nil, bus)
	accountManager := account.NewManager(bus)
	tr := transport.NewLoopback()

	rebalanceCfg, err := buildRebalanceConfig(cfg)
	if err != nil {
		return nil, err
	}

	mgr := channel.NewManager(st, adapters, sv, log, bus, walletAuthority, tr, accountManager, rebalanceCfg)
	if err := mgr.LoadActiveChannels(context.Background()); err != nil {
		return nil, err
	}

	mon, err := buildSettlementMonitor(cfg, bus, log)
	if err != nil {
		return nil, err
	}

	return server.NewServer(log, mon, mgr), nil
}
