// Package main provides ntvswapd, the cross-chain HTLC settlement daemon. It
// runs either the LP orchestrator or the taker orchestrator (spec §4.6,
// §4.7) against a native-chain RPC proxy and a fan-out of EVM quote chains,
// following the teacher's cmd/klingond/main.go load-config / wire-services /
// wait-for-signal shape, generalized from a libp2p node bootstrap to this
// settlement core's chain-adapter bootstrap.
package main

import (
	"context"
	"flag"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/ntvswap/internal/alerts"
	"github.com/klingon-exchange/ntvswap/internal/config"
	"github.com/klingon-exchange/ntvswap/internal/evmchain"
	"github.com/klingon-exchange/ntvswap/internal/lp"
	"github.com/klingon-exchange/ntvswap/internal/nativechain"
	"github.com/klingon-exchange/ntvswap/internal/persistence"
	"github.com/klingon-exchange/ntvswap/internal/reorg"
	"github.com/klingon-exchange/ntvswap/internal/registry"
	"github.com/klingon-exchange/ntvswap/internal/swap"
	"github.com/klingon-exchange/ntvswap/internal/taker"
	"github.com/klingon-exchange/ntvswap/internal/timelock"
	"github.com/klingon-exchange/ntvswap/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.ntvswap", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		role        = flag.String("role", "", "Orchestrator role: lp or taker, overrides config")
		apiAddr     = flag.String("api", "127.0.0.1:8090", "Alerts WebSocket listen address")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("ntvswapd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	dataDirPath := *dataDir
	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadConfig(filepath.Dir(*configFile))
	} else {
		cfg, err = config.LoadConfig(dataDirPath)
	}
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	if *role != "" {
		cfg.Role = config.Role(*role)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if cfg.PersistencePath == "" {
		cfg.PersistencePath = filepath.Join(dataDirPath, "state.db")
	}
	if cfg.SnapshotPath == "" {
		cfg.SnapshotPath = filepath.Join(dataDirPath, "snapshot.json")
	}

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}
	if err := timelock.ValidateAtInit(cfg.Timelock); err != nil {
		log.Fatal("timelock policy violates invariant I3", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persistence.Open(cfg.PersistencePath)
	if err != nil {
		log.Fatal("failed to open persistence store", "error", err)
	}
	defer store.Close()
	log.Info("persistence store opened", "path", cfg.PersistencePath)

	snap, err := persistence.ImportSnapshot(cfg.SnapshotPath)
	if err != nil {
		log.Error("persistence snapshot is corrupt or from an unsupported future schema", "path", cfg.SnapshotPath, "error", err)
		os.Exit(3)
	}
	manager := swap.NewManager()
	if err := persistence.Restore(manager, snap); err != nil {
		log.Error("failed to restore swap state from snapshot", "path", cfg.SnapshotPath, "error", err)
		os.Exit(3)
	}
	if lastSeq, err := persistence.ReplayTail(store, manager, snap.LastSeq); err != nil {
		log.Warn("failed to replay write-ahead log tail onto restored snapshot", "error", err)
	} else if lastSeq > snap.LastSeq {
		log.Info("replayed write-ahead log tail onto restored snapshot", "from_seq", snap.LastSeq, "to_seq", lastSeq)
	}
	log.Info("swap state restored", "swaps", len(manager.All()))

	native, err := nativechain.NewClient(cfg.NativeRPCEndpoint, cfg.NativeRPCUser, cfg.NativeRPCPassword, cfg.NativeCLIOrDaemonPath, cfg.RPCTimeout(), cfg.AllowLoopbackEndpoints)
	if err != nil {
		log.Fatal("failed to build native chain client", "error", err)
	}
	log.Info("native chain RPC proxy configured", "endpoint", cfg.NativeRPCEndpoint)

	reg, err := registry.NewClient(cfg.RegistryURL, cfg.RPCTimeout(), cfg.AllowLoopbackEndpoints)
	if err != nil {
		log.Fatal("failed to build registry client", "error", err)
	}

	hub := alerts.NewHub()
	go hub.Run()

	quotes := make(map[string]*evmchain.Client, len(cfg.EVMNetworks))
	trackers := make([]*reorg.Tracker, 0, len(cfg.EVMNetworks)+1)
	trackers = append(trackers, reorg.NewTracker("native", native, 2*uint64(cfg.Timelock.TNativeBlocks)))

	for _, net := range cfg.EVMNetworks {
		contract := common.HexToAddress(net.HTLCContract)
		client, err := evmchain.NewClient(ctx, net.Name, net.RPCURL, contract, net.ReorgDepth, cfg.AllowLoopbackEndpoints)
		if err != nil {
			log.Fatal("failed to dial EVM chain", "chain", net.Name, "error", err)
		}
		defer client.Close()
		quotes[net.Name] = client
		trackers = append(trackers, reorg.NewTracker(net.Name, client, 4*net.ReorgDepth))
		log.Info("EVM chain connected", "chain", net.Name, "chain_id", net.ChainID)
	}

	var orchestrator *lp.Orchestrator
	if cfg.Role == config.RoleLP {
		orchestrator = buildLPOrchestrator(ctx, log, cfg, native, quotes, reg, store, manager, hub)
	}

	go runReorgWatch(ctx, log, trackers, orchestrator, cfg.ChainFailureBudget())

	mux := http.NewServeMux()
	mux.HandleFunc("/alerts", hub.ServeWS)
	httpServer := &http.Server{Addr: *apiAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("alerts server stopped", "error", err)
		}
	}()
	log.Info("alerts WebSocket listening", "addr", *apiAddr)

	var wg sync.WaitGroup
	switch cfg.Role {
	case config.RoleLP:
		wg.Add(1)
		go func() {
			defer wg.Done()
			orchestrator.Run(ctx)
		}()
	case config.RoleTaker:
		log.Info("taker role configured; awaiting an explicit swap request is out of scope for this process entrypoint")
	default:
		log.Fatal("unknown role, expected lp or taker", "role", cfg.Role)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	cancel()
	wg.Wait()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error stopping alerts server", "error", err)
	}
	log.Info("goodbye")
}

// buildLPOrchestrator wires up each quote chain's transactor and ERC-20
// handle and constructs the LP orchestrator. It does not start the
// orchestrator's poll loop; the caller runs that in its own goroutine so
// main can still reach its signal-wait (see the shutdown-deadlock note on
// the role switch in main).
func buildLPOrchestrator(ctx context.Context, log *logging.Logger, cfg *config.Config, native *nativechain.Client, quotes map[string]*evmchain.Client, reg *registry.Client, store *persistence.Store, manager *swap.Manager, hub *alerts.Hub) *lp.Orchestrator {
	lpQuotes := make(map[string]*lp.QuoteChain, len(quotes))
	for name, client := range quotes {
		keyHex := cfg.LPClaimSigningKey
		if keyHex == "" {
			keyHex = cfg.LPRefundSigningKey
		}
		privKey, err := evmchain.ParsePrivateKey(keyHex)
		if err != nil {
			log.Fatal("failed to parse LP signing key", "chain", name, "error", err)
		}
		auth, err := client.NewTransactor(ctx, privKey)
		if err != nil {
			log.Fatal("failed to build transactor", "chain", name, "error", err)
		}
		tokenAddr := common.HexToAddress(tokenAddressForChain(cfg, name))
		erc20, err := evmchain.NewERC20(client, tokenAddr)
		if err != nil {
			log.Fatal("failed to bind ERC-20 token", "chain", name, "error", err)
		}
		lpQuotes[name] = &lp.QuoteChain{Client: client, ERC20: erc20, Auth: auth}
	}

	return lp.New(cfg, native, lpQuotes, reg, store, manager, hub)
}

func tokenAddressForChain(cfg *config.Config, name string) string {
	for _, n := range cfg.EVMNetworks {
		if n.Name == name {
			return n.QuoteToken
		}
	}
	return ""
}

// runReorgWatch polls every configured chain's tip on a fixed cadence. On a
// detected fork it calls the LP orchestrator's InvalidateReorg so in-memory
// swap state is actually rolled back for the orphaned range (spec §5:
// "invalidates any swap-state transitions observed in orphaned blocks") —
// lp.Orchestrator.respond switches purely on the last-applied in-memory
// status, it never re-queries the chain itself, so that invalidation has to
// happen here. orchestrator is nil for the taker role, which owns no
// long-lived swap state in this process; forks are just logged for it.
//
// A chain whose tip poll fails more than failureBudget times in a row is
// treated as connectivity lost beyond retry budget (spec.md:177, exit code 2).
func runReorgWatch(ctx context.Context, log *logging.Logger, trackers []*reorg.Tracker, orchestrator *lp.Orchestrator, failureBudget int) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	failures := make(map[string]int, len(trackers))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range trackers {
				res, err := t.Poll(ctx)
				if err != nil {
					failures[t.ChainName()]++
					log.Warn("reorg poll failed", "chain", t.ChainName(), "consecutive_failures", failures[t.ChainName()], "error", err)
					if failures[t.ChainName()] > failureBudget {
						log.Error("chain connectivity lost beyond retry budget", "chain", t.ChainName(), "consecutive_failures", failures[t.ChainName()])
						os.Exit(2)
					}
					continue
				}
				failures[t.ChainName()] = 0
				if res.ForkDetected {
					log.Warn("chain reorg detected", "chain", t.ChainName(), "fork_point", res.ForkPoint, "invalidated_from", res.InvalidatedFrom)
					if orchestrator != nil {
						orchestrator.InvalidateReorg(t.ChainName(), res.InvalidatedFrom)
					}
				}
			}
		}
	}
}

// buildTakerRequest is a reference helper showing how a CLI/RPC-driven taker
// invocation would size a swap request from a published offer's price (spec
// §4.5 "amount >= offer x price"); ntvswapd itself only runs the LP
// orchestrator as a long-lived daemon; a taker swap is a one-shot operation
// left to a thin client built on internal/taker.
func buildTakerRequest(offer *registry.Offer, quoteAmount *big.Int, quoteChain string, token, lpAddr common.Address, takerNativeAddr string) taker.Request {
	nativeAmount := uint64(0)
	if offer != nil && offer.PriceQuotePerUnit > 0 {
		nativeAmount = quoteAmount.Uint64() / offer.PriceQuotePerUnit
	}
	return taker.Request{
		QuoteChain:        quoteChain,
		QuoteTokenAddress: token,
		LPQuoteAddr:       lpAddr,
		QuoteAmount:       quoteAmount,
		NativeAmount:      nativeAmount,
		TakerNativeAddr:   takerNativeAddr,
	}
}
