// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads node configuration from flags, environment, and an
// optional config file via viper/pflag/cast, mirroring the config stack
// luxfi-evm's go.mod carries.
package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of knobs the server binary needs. Load fills each
// field explicitly from the viper key named after its flag (for example
// "listen-addr"), not through the mapstructure tags.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	// JWTSecret is the hex-decoded bearer-token secret for the engine_*
	// namespace (spec §6).
	JWTSecret []byte `mapstructure:"-"`
	JWTSecretHex string `mapstructure:"jwt_secret"`

	// L1RPCURL / L2RPCURL are opaque strings consumed only by integration
	// harnesses; the core never dials them itself (spec §1).
	L1RPCURL string `mapstructure:"l1_rpc_url"`
	L2RPCURL string `mapstructure:"l2_rpc_url"`

	GenesisPath string `mapstructure:"genesis_path"`
	DataDir     string `mapstructure:"data_dir"`

	ChainID *big.Int `mapstructure:"-"`
	ChainIDUint uint64 `mapstructure:"chain_id"`

	// Fee-model constants, spec §4.3.
	ElasticityMultiplier uint64 `mapstructure:"elasticity_multiplier"`
	BaseFeeDenominator   uint64 `mapstructure:"base_fee_denominator"`

	MempoolCapacity int `mapstructure:"mempool_capacity"`

	Development bool `mapstructure:"development"`
}

// Defaults mirrors the constants named in spec.md §3/§4/§6.
func Defaults() *Config {
	return &Config{
		ListenAddr:           ":8545",
		ChainIDUint:          1337,
		ElasticityMultiplier: 2,
		BaseFeeDenominator:   8,
		MempoolCapacity:      10_000,
	}
}

// RegisterFlags wires pflag definitions mirroring the Config fields, for use
// by cmd/opmoved's urfave/cli flag set or a standalone flag.Parse path.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("listen-addr", d.ListenAddr, "JSON-RPC / Engine-API listen address")
	fs.String("jwt-secret", "", "hex-encoded JWT secret for Engine-API bearer auth")
	fs.String("l1-rpc-url", "", "L1 RPC URL (integration harness only)")
	fs.String("l2-rpc-url", "", "L2 RPC URL (integration harness only)")
	fs.String("genesis-path", "", "path to the genesis snapshot file")
	fs.String("data-dir", "", "data directory for the trie-node and index KV store")
	fs.Uint64("chain-id", d.ChainIDUint, "chain id")
	fs.Uint64("elasticity-multiplier", d.ElasticityMultiplier, "EIP-1559 elasticity multiplier")
	fs.Uint64("base-fee-denominator", d.BaseFeeDenominator, "EIP-1559 base-fee change denominator")
	fs.Int("mempool-capacity", d.MempoolCapacity, "max pending transactions held in the mempool")
	fs.Bool("development", false, "enable human-readable console logging")
}

// Load reads bound flags and OPMOVE_-prefixed environment variables into a
// Config, the way viper.AutomaticEnv + BindPFlags is used across the pack.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OPMOVE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	// JWT_SECRET and L1_RPC_URL / L2_RPC_URL are named without the OPMOVE_
	// prefix in spec §6 (they are shared with the consensus-layer client's
	// own conventions), so bind them explicitly.
	_ = v.BindEnv("jwt-secret", "JWT_SECRET")
	_ = v.BindEnv("l1-rpc-url", "L1_RPC_URL")
	_ = v.BindEnv("l2-rpc-url", "L2_RPC_URL")

	cfg := Defaults()
	cfg.ListenAddr = v.GetString("listen-addr")
	cfg.JWTSecretHex = v.GetString("jwt-secret")
	cfg.L1RPCURL = v.GetString("l1-rpc-url")
	cfg.L2RPCURL = v.GetString("l2-rpc-url")
	cfg.GenesisPath = v.GetString("genesis-path")
	cfg.DataDir = v.GetString("data-dir")
	cfg.ChainIDUint = cast.ToUint64(v.Get("chain-id"))
	cfg.ElasticityMultiplier = cast.ToUint64(v.Get("elasticity-multiplier"))
	cfg.BaseFeeDenominator = cast.ToUint64(v.Get("base-fee-denominator"))
	cfg.MempoolCapacity = cast.ToInt(v.Get("mempool-capacity"))
	cfg.Development = v.GetBool("development")

	if cfg.ElasticityMultiplier == 0 || cfg.BaseFeeDenominator == 0 {
		return nil, fmt.Errorf("elasticity multiplier and base fee denominator must be > 0")
	}
	cfg.ChainID = new(big.Int).SetUint64(cfg.ChainIDUint)

	if cfg.JWTSecretHex != "" {
		secret, err := decodeHex(cfg.JWTSecretHex)
		if err != nil {
			return nil, fmt.Errorf("decode JWT_SECRET: %w", err)
		}
		cfg.JWTSecret = secret
	}
	return cfg, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}
