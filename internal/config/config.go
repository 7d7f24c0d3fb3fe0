// Package config provides configuration management for the connector service.
// It handles loading and parsing of configuration files, environment variables,
// and provides structured access to application settings.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/viper"
	"github.com/ucarion/redact"
)

// LogConfig holds configuration for logging. Used by logger implementations.
// It specifies the log level and output format for the application.
type LogConfig struct {
	// Level specifies the minimum log level to output.
	// Valid values: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`

	// Format specifies the output format for log messages.
	// Valid values: "logfmt" (default), "json"
	Format string `mapstructure:"format"`
}

// LedgerConfig holds configuration for a single backing ledger, EVM or XRP
// family, selected by Family. ChainID and ContractAddress apply only to the
// EVM family.
type LedgerConfig struct {
	// Family selects the adapter implementation: "evm" or "xrp".
	Family string `mapstructure:"family"`

	// ChainRef is the connector-internal identifier for this ledger
	// (e.g. "eip155:8453" or "xrpl:mainnet").
	ChainRef string `mapstructure:"chain_ref"`

	// RPCURL is the JSON-RPC (EVM) or xrpl-go client (XRP) endpoint.
	RPCURL string `mapstructure:"rpc_url"`

	// Timeout specifies the network request timeout in seconds.
	Timeout int64 `mapstructure:"timeout"`

	// ConfirmationDepth is the number of blocks/ledgers required before a
	// channel event is considered final.
	ConfirmationDepth uint64 `mapstructure:"confirmation_depth"`

	// ChainID is the EIP-155 chain id, decimal string. Only meaningful
	// when Family is "evm".
	ChainID string `mapstructure:"chain_id"`

	// ContractAddress is the hex-encoded payment-channel contract address.
	// Only meaningful when Family is "evm".
	ContractAddress string `mapstructure:"contract_address"`
}

// SignerConfig holds the master-seed derivation settings used by the signer
// service. The seed itself is always supplied out of band (env var or a
// secrets file referenced here), never generated by the connector.
type SignerConfig struct {
	// MasterSeedHex is the hex-encoded seed the signer derives per-agent,
	// per-chain keys from. Redacted from logs.
	MasterSeedHex string `mapstructure:"master_seed_hex"`

	// EVMDerivationPath is the BIP-32 path prefix used for EVM keys,
	// e.g. "m/44'/60'/0'/0".
	EVMDerivationPath string `mapstructure:"evm_derivation_path"`

	// XRPDerivationPath is the BIP-32 path prefix used for XRPL keys,
	// e.g. "m/44'/144'/0'/0".
	XRPDerivationPath string `mapstructure:"xrp_derivation_path"`
}

// StoreConfig holds configuration for the durable channel store.
type StoreConfig struct {
	// Path is the filesystem path of the bbolt database file.
	Path string `mapstructure:"path"`
}

// SettlementConfig holds configuration for the settlement monitor's
// threshold-driven triggers.
type SettlementConfig struct {
	// TriggerThreshold is the minimum decimal-string balance magnitude
	// that causes a SETTLEMENT_TRIGGERED event to be emitted.
	TriggerThreshold string `mapstructure:"trigger_threshold"`
}

// ChannelConfig holds the Channel Manager's tuning knobs: rebalance
// thresholds and the timing parameters bounding settlement and dispute
// handling.
type ChannelConfig struct {
	// MinChannelBalance is the decimal-string remaining-balance floor that
	// triggers a close+reopen rebalance.
	MinChannelBalance string `mapstructure:"min_channel_balance"`

	// MaxChannelBalance is the decimal-string deposit a rebalanced
	// channel's replacement is opened with.
	MaxChannelBalance string `mapstructure:"max_channel_balance"`

	// RebalanceEnabled toggles the automatic rebalance sweep.
	RebalanceEnabled bool `mapstructure:"rebalance_enabled"`

	// SettlementTimeoutSeconds bounds how long a triggered settlement may
	// remain in flight before it is considered stalled.
	SettlementTimeoutSeconds uint64 `mapstructure:"settlement_timeout_seconds"`

	// ChallengePeriodSlackSeconds is the safety margin subtracted from a
	// ledger's reported challenge period when deciding whether there is
	// still time to submit a dispute update.
	ChallengePeriodSlackSeconds uint64 `mapstructure:"challenge_period_slack_seconds"`

	// MaxChannelLifetimeSeconds bounds how long a channel may remain open
	// before it becomes eligible for a permissionless force-close.
	MaxChannelLifetimeSeconds uint64 `mapstructure:"max_channel_lifetime_seconds"`
}

// Config contains all configuration parameters for the application.
// It aggregates settings from multiple sources and provides a unified interface.
type Config struct {
	// Log contains logging configuration settings.
	Log LogConfig `mapstructure:"log"`

	// Ledgers contains one entry per backing ledger the connector talks to.
	Ledgers []LedgerConfig `mapstructure:"ledgers"`

	// Signer contains master-seed derivation configuration.
	Signer SignerConfig `mapstructure:"signer"`

	// Store contains durable channel-store configuration.
	Store StoreConfig `mapstructure:"store"`

	// Settlement contains settlement-monitor tuning.
	Settlement SettlementConfig `mapstructure:"settlement"`

	// Channel contains channel-manager rebalance and timing tuning.
	Channel ChannelConfig `mapstructure:"channel"`
}

// LoadConfig loads configuration from Viper into the Config structure.
// It reads from configuration files, environment variables, and command line flags.
//
// Returns a populated Config instance or an error if loading fails.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoggerConfig returns a LogConfig constructed from the config values.
func (c *Config) LoggerConfig() LogConfig {
	return c.Log
}

// LedgerByRef returns the ledger configuration matching chainRef, or false
// if none is configured.
func (c *Config) LedgerByRef(chainRef string) (LedgerConfig, bool) {
	for _, l := range c.Ledgers {
		if l.ChainRef == chainRef {
			return l, true
		}
	}
	return LedgerConfig{}, false
}

// RedactedConfigLog returns a string representation of the config with sensitive fields redacted.
// Uses github.com/ucarion/redact for redaction to prevent logging of sensitive information
// like private keys, passwords, and API tokens.
//
// Returns a JSON string representation of the configuration with sensitive fields redacted.
// If marshaling fails, returns an error message string.
func (c *Config) RedactedConfigLog() string {
	sensitiveFields := [][]string{
		{"Signer", "MasterSeedHex"},
	}
	cfgCopy := *c
	for _, path := range sensitiveFields {
		redact.Redact(path, &cfgCopy)
	}
	b, err := json.Marshal(cfgCopy)
	if err != nil {
		return "<failed to marshal config>"
	}
	return string(b)
}
