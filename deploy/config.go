package deploy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/hoffmabc/arch-deploy/wallet"
)

// Config consolidates every deployment tunable. Zero values are filled from
// defaults, so a partial YAML file or override set is enough.
type Config struct {
	// RPCURL is the ledger node's JSON-RPC endpoint.
	RPCURL string `yaml:"rpcurl"`
	// Network selects address encoding and faucet expectations.
	Network wallet.Network `yaml:"network"`

	// BatchSize caps how many Write transactions go into one batch.
	BatchSize int `yaml:"batchsize"`
	// BlockhashEvery is how many transactions are built against one recent
	// blockhash before it is refreshed.
	BlockhashEvery int `yaml:"blockhashevery"`

	// ConfirmInterval and ConfirmTimeout bound per-transaction polling.
	ConfirmInterval time.Duration `yaml:"confirminterval"`
	ConfirmTimeout  time.Duration `yaml:"confirmtimeout"`
	// FundingTimeout bounds how long to wait for fee payer funds to land.
	FundingTimeout time.Duration `yaml:"fundingtimeout"`
	// BatchDelay is the pause between batches, letting the node breathe.
	BatchDelay time.Duration `yaml:"batchdelay"`

	// TransportCeiling is the node's serialized-payload limit in bytes.
	TransportCeiling int `yaml:"transportceiling"`
	// InflationFactor estimates how much larger the JSON form of a
	// transaction is than its binary form.
	InflationFactor int `yaml:"inflationfactor"`
	// MinChunkSize is the floor under the planned chunk size, guaranteeing
	// upload progress even under conservative overhead estimates.
	MinChunkSize int `yaml:"minchunksize"`

	// StrictConfirmations, when >0, escalates to a fatal error after that
	// many consecutive confirmation timeouts instead of proceeding
	// optimistically. 0 preserves the permissive behavior.
	StrictConfirmations int `yaml:"strictconfirmations"`
}

// Overrides carries optional CLI/runtime overrides for config values.
type Overrides struct {
	RPCURL  string
	Network string
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() *Config {
	return &Config{
		RPCURL:           "http://127.0.0.1:9002",
		Network:          wallet.Regtest,
		BatchSize:        100,
		BlockhashEvery:   5,
		ConfirmInterval:  time.Second,
		ConfirmTimeout:   30 * time.Second,
		FundingTimeout:   2 * time.Minute,
		BatchDelay:       500 * time.Millisecond,
		TransportCeiling: 10240,
		InflationFactor:  8,
		MinChunkSize:     1000,
	}
}

// LoadConfig reads path (when non-empty), fills defaults for anything the
// file leaves unset, and applies overrides last.
func LoadConfig(path string, ov Overrides) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		mergeConfig(cfg, &fileCfg)
	}

	if ov.RPCURL != "" {
		cfg.RPCURL = ov.RPCURL
	}
	if ov.Network != "" {
		cfg.Network = wallet.Network(ov.Network)
	}

	switch cfg.Network {
	case wallet.Regtest, wallet.Testnet, wallet.Mainnet:
	default:
		return nil, fmt.Errorf("unknown network %q", cfg.Network)
	}
	if cfg.InflationFactor < 1 {
		return nil, fmt.Errorf("inflation factor must be >= 1, got %d", cfg.InflationFactor)
	}
	return cfg, nil
}

// mergeConfig copies set fields of src over dst.
func mergeConfig(dst, src *Config) {
	if src.RPCURL != "" {
		dst.RPCURL = src.RPCURL
	}
	if src.Network != "" {
		dst.Network = src.Network
	}
	if src.BatchSize > 0 {
		dst.BatchSize = src.BatchSize
	}
	if src.BlockhashEvery > 0 {
		dst.BlockhashEvery = src.BlockhashEvery
	}
	if src.ConfirmInterval > 0 {
		dst.ConfirmInterval = src.ConfirmInterval
	}
	if src.ConfirmTimeout > 0 {
		dst.ConfirmTimeout = src.ConfirmTimeout
	}
	if src.FundingTimeout > 0 {
		dst.FundingTimeout = src.FundingTimeout
	}
	if src.BatchDelay > 0 {
		dst.BatchDelay = src.BatchDelay
	}
	if src.TransportCeiling > 0 {
		dst.TransportCeiling = src.TransportCeiling
	}
	if src.InflationFactor > 0 {
		dst.InflationFactor = src.InflationFactor
	}
	if src.MinChunkSize > 0 {
		dst.MinChunkSize = src.MinChunkSize
	}
	if src.StrictConfirmations > 0 {
		dst.StrictConfirmations = src.StrictConfirmations
	}
}
