// Command kongd is the KongSwap core process: it owns the swap, liquidity,
// market, and mining engines in a single address space and fronts them with
// an admin HTTP surface, grounded on the teacher's kaspad.go "wrapper for
// all services" pattern (a single process struct with atomic started/
// shutdown guards).
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/KongSwap/kong-sub000/kongd/adminrpc"
	"github.com/KongSwap/kong-sub000/kongd/config"
	"github.com/KongSwap/kong-sub000/kongd/etl"
	"github.com/KongSwap/kong-sub000/kongd/identity"
	"github.com/KongSwap/kong-sub000/kongd/journal"
	"github.com/KongSwap/kong-sub000/kongd/ledgerclient"
	"github.com/KongSwap/kong-sub000/kongd/liquidity"
	"github.com/KongSwap/kong-sub000/kongd/logger"
	"github.com/KongSwap/kong-sub000/kongd/market"
	"github.com/KongSwap/kong-sub000/kongd/mining"
	"github.com/KongSwap/kong-sub000/kongd/pool"
	"github.com/KongSwap/kong-sub000/kongd/swap"
	"github.com/KongSwap/kong-sub000/kongd/tokens"
)

var log = logger.Get(logger.SubsystemTags.KOND)

// kongd wraps every long-lived service this process owns, mirroring the
// teacher's kaspad struct.
type kongd struct {
	cfg *config.Config

	tokens    *tokens.Store
	pools     *pool.Store
	poolOps   *pool.Engine
	identity  *identity.Registry
	journal   *journal.Journal
	swap      *swap.Engine
	executor  *swap.Executor
	liquidity *liquidity.Engine
	markets   *market.Engine
	mining    *mining.State
	rpc       *adminrpc.Server
	archiver  *etl.Archiver // nil unless Settings.ArchiveToKongData

	httpServer *http.Server

	started, shutdown int32
}

func nowNs() uint64 { return uint64(time.Now().UnixNano()) }
func nowSec() uint64 { return uint64(time.Now().Unix()) }

// newKongd wires every engine against a shared ledger client, identity
// registry, and journal, following the teacher's newKaspad constructor
// shape (build every subsystem up front, return the assembled wrapper).
func newKongd(cfg *config.Config, ledgerClient ledgerclient.Client) (*kongd, error) {
	tokStore := tokens.NewStore()
	poolStore := pool.NewStore()
	ident := identity.NewRegistry(cfg.Settings.RewriteDuplicatePrincipals)
	jrnl := journal.New()

	poolEngine := pool.NewEngine(poolStore, tokStore, ledgerClient, jrnl, ident, nowNs, cfg.Settings.DefaultLPFeeBps, cfg.Settings.DefaultKongFeeBps)
	swapEngine := swap.NewEngine(poolStore, tokStore, []string{cfg.Hubs.Hub1, cfg.Hubs.Hub2})
	executor := swap.NewExecutor(swapEngine, ledgerClient, jrnl, ident, nowNs)
	liquidityEngine := liquidity.NewEngine(poolStore, tokStore, ledgerClient, jrnl, ident, nowNs)
	marketEngine := market.NewEngine(market.NewStore(), ledgerClient, jrnl, ident, nowNs, uint16(cfg.Settings.DefaultKongFeeBps))

	miningState := mining.NewState(1, cfg.Mining.TargetTimeSec, mining.RewardSchedule{
		InitialReward:   cfg.Mining.InitialReward,
		HalvingInterval: cfg.Mining.HalvingInterval,
	})
	if _, err := miningState.CreateGenesisBlock(nowSec()); err != nil {
		return nil, err
	}

	rpcServer := adminrpc.NewServer(marketEngine, miningState, jrnl)

	var archiver *etl.Archiver
	if cfg.Settings.ArchiveToKongData {
		a, err := etl.Connect(cfg.Etl.DSN)
		if err != nil {
			return nil, err
		}
		archiver = a
		jrnl.SetArchiveFunc(func(e *journal.Entry) {
			if err := archiver.ArchiveEntry(e); err != nil {
				log.Errorf("archiving request %d: %+v", e.RequestID, err)
			}
		})
	}

	return &kongd{
		cfg:       cfg,
		tokens:    tokStore,
		pools:     poolStore,
		poolOps:   poolEngine,
		identity:  ident,
		journal:   jrnl,
		swap:      swapEngine,
		executor:  executor,
		liquidity: liquidityEngine,
		markets:   marketEngine,
		mining:    miningState,
		rpc:       rpcServer,
		archiver:  archiver,
	}, nil
}

// start launches the admin RPC listener and the mining heartbeat ticker,
// guarded the same way the teacher's kaspad.start() guards against a
// double start.
func (k *kongd) start() {
	if atomic.AddInt32(&k.started, 1) != 1 {
		return
	}
	log.Info("starting kongd")

	k.httpServer = &http.Server{Addr: k.cfg.RPC.ListenAddr, Handler: k.rpc}
	go func() {
		if err := k.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("admin rpc server stopped: %+v", err)
		}
	}()

	go k.runMiningHeartbeat()
}

// runMiningHeartbeat applies spec.md §4.6's stall-relief tick once per
// target block time, grounded on the teacher's cmd/kaspaminer polling loop.
func (k *kongd) runMiningHeartbeat() {
	interval := time.Duration(k.cfg.Mining.TargetTimeSec) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if atomic.LoadInt32(&k.shutdown) != 0 {
			return
		}
		k.mining.Heartbeat(nowSec())
	}
}

// stop gracefully shuts down every owned service, guarded against a double
// stop the same way the teacher's kaspad.stop() is.
func (k *kongd) stop() error {
	if atomic.AddInt32(&k.shutdown, 1) != 1 {
		log.Info("kongd is already shutting down")
		return nil
	}
	log.Warn("kongd shutting down")

	if k.httpServer != nil {
		if err := k.httpServer.Close(); err != nil {
			log.Errorf("error closing admin rpc server: %+v", err)
		}
	}
	if k.archiver != nil {
		if err := k.archiver.Close(); err != nil {
			log.Errorf("error closing archive database: %+v", err)
		}
	}
	return nil
}

func main() {
	opts, err := parseCLI()
	if err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %+v\n", err)
		os.Exit(1)
	}
	if opts.RPCListen != "" {
		cfg.RPC.ListenAddr = opts.RPCListen
	}

	if err := logger.Init(cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %+v\n", err)
		os.Exit(1)
	}
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if level != "" {
		logger.SetLogLevels(level)
	}

	// ledgerClient is the external host-chain collaborator (spec.md §1); no
	// implementation lives in this repo, so the process would be wired
	// against a concrete IC/Solana client supplied at deploy time.
	var ledgerClient ledgerclient.Client

	k, err := newKongd(cfg, ledgerClient)
	if err != nil {
		log.Errorf("failed to initialize kongd: %+v", err)
		os.Exit(1)
	}
	k.start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	if err := k.stop(); err != nil {
		log.Errorf("error during shutdown: %+v", err)
	}
}
