// Copyright (c) 2024 op-move contributors. All rights reserved.
// See the file LICENSE for licensing terms.

// Command opmoved is the node binary: it loads configuration, opens the
// pebble-backed trie store, starts the command actor (C9) and its reader
// view (C8), and serves the JSON-RPC/Engine-API surface (C10) until
// interrupted, mirroring the flag/config/logger wiring of
// luxfi-evm/cmd/evm-node's main, generalized from a single standalone VM
// process to this node's actor+reader split.
package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/luxfi/opmove/internal/actor"
	"github.com/luxfi/opmove/internal/blockchain"
	"github.com/luxfi/opmove/internal/config"
	"github.com/luxfi/opmove/internal/evmext"
	"github.com/luxfi/opmove/internal/feemodel"
	"github.com/luxfi/opmove/internal/logging"
	"github.com/luxfi/opmove/internal/mempool"
	"github.com/luxfi/opmove/internal/metrics"
	"github.com/luxfi/opmove/internal/movevm"
	"github.com/luxfi/opmove/internal/query"
	"github.com/luxfi/opmove/internal/rpc"
	"github.com/luxfi/opmove/internal/trie"
)

// shutdownGrace bounds how long the HTTP server waits for in-flight
// requests to finish on SIGINT/SIGTERM before forcing the listener closed.
const shutdownGrace = 5 * time.Second

func main() {
	fs := pflag.NewFlagSet("opmoved", pflag.ContinueOnError)
	config.RegisterFlags(fs)

	app := &cli.App{
		Name:  "opmoved",
		Usage: "op-move execution node: MoveVM + embedded EVM, JSON-RPC and Engine-API surface",
		Flags: pflagsToCliFlags(fs),
		Action: func(c *cli.Context) error {
			return run(fs)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// pflagsToCliFlags exposes the pflag.FlagSet's definitions as urfave/cli
// string flags so the cli app accepts the same flag names; run then parses
// os.Args into fs itself before config.Load reads the final values, matching the
// teacher's two-layer flag-registration idiom (cli for the binary's own
// subcommand surface, pflag/viper for config.Load itself).
func pflagsToCliFlags(fs *pflag.FlagSet) []cli.Flag {
	var flags []cli.Flag
	fs.VisitAll(func(f *pflag.Flag) {
		flags = append(flags, &cli.StringFlag{Name: f.Name, Usage: f.Usage, Value: f.DefValue})
	})
	return flags
}

func run(fs *pflag.FlagSet) error {
	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.Development)
	defer func() { _ = log.Sync() }()

	if cfg.DataDir == "" {
		return fmt.Errorf("data-dir must be set")
	}
	kv, err := trie.OpenPebble(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open pebble store at %s: %w", cfg.DataDir, err)
	}
	defer func() { _ = kv.Close() }()

	store, err := trie.Open(kv)
	if err != nil {
		return fmt.Errorf("open trie store: %w", err)
	}
	reg := metrics.NewRegistry()
	store = store.WithMetrics(reg.TrieCommitLatency)
	resolver := evmext.NewStoreResolver(store, kv)
	repo := blockchain.NewRepository(kv)

	pool := mempool.NewWithMetrics(mempool.Config{MaxGlobal: cfg.MempoolCapacity, MaxPerAccount: cfg.MempoolCapacity / 10}, reg.MempoolDepth)

	// The MoveVM itself lives outside this repository's scope (spec §1):
	// movevm.FakeVM is the only concrete Session/Accounts/BaseToken this
	// tree carries, standing in for the real out-of-process VM binding
	// until that boundary is wired (see DESIGN.md).
	vm := movevm.NewFakeVM()

	view := query.NewView(&query.Snapshot{Height: 0, Store: store, KV: kv, Repo: repo, Accounts: vm, BaseToken: vm})

	actorCfg := actor.Config{
		ChainID:       cfg.ChainIDUint,
		GasMultiplier: 1,
		L1:            feemodel.L1Config{BaseFee: uint256.NewInt(0), BlobBaseFee: uint256.NewInt(0)},
		FeeParams: feemodel.Params{
			ElasticityMultiplier: cfg.ElasticityMultiplier,
			Denominator:          cfg.BaseFeeDenominator,
		},
		InitialBaseFee:  big.NewInt(1_000_000_000),
		DefaultGasLimit: 30_000_000,
	}
	a := actor.New(vm, vm, vm, store, kv, resolver, repo, pool, view, actorCfg, 64).WithMetrics(reg.BlockBuildDuration)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	if _, _, err := repo.Latest(); err != nil {
		genesisHeader := blockchain.AssembleHeader(blockchain.HeaderInput{
			Number:    0,
			GasLimit:  actorCfg.DefaultGasLimit,
			BaseFee:   actorCfg.InitialBaseFee,
			StateRoot: store.Root(),
		}, nil, nil, 0)
		genesisBlock := &blockchain.Block{Header: genesisHeader, Value: new(big.Int)}
		if err := a.Send(ctx, actor.GenesisUpdate{Block: genesisBlock}); err != nil {
			return fmt.Errorf("seed genesis: %w", err)
		}
		log.Info("seeded genesis block", zap.Stringer("hash", genesisBlock.Hash()))
	}

	reader := query.NewReader(view)
	api := actor.NewAPI(a, reader)

	server := rpc.NewServer(logging.Component(log, "rpc"), cfg.JWTSecret).WithMetrics(reg.RPCRequestsTotal)
	server.RegisterAll(reader, a, api, cfg.ChainIDUint)

	mux := http.NewServeMux()
	mux.Handle("/", server)
	mux.HandleFunc("/ws", server.ServeWS)
	mux.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
