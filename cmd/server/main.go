package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"passport/internal/allowlist"
	"passport/internal/chain"
	"passport/internal/funds"
	"passport/internal/governance"
	govhandler "passport/internal/governance/handler"
	jwttoken "passport/internal/jwt_token"
	ledgerhandler "passport/internal/ledger/handler"
	ledgermetrics "passport/internal/ledger/metrics"
	ledgermodels "passport/internal/ledger/models"
	ledgersvc "passport/internal/ledger/service"
	"passport/internal/ledger/store"
	"passport/internal/platform/config"
	"passport/internal/platform/httpserver"
	"passport/internal/platform/kafka"
	"passport/internal/platform/logger"
	"passport/internal/platform/metrics"
	"passport/internal/platform/postgres"
	"passport/internal/platform/redis"
	"passport/internal/platform/tracing"
	queryhandler "passport/internal/query/handler"
	querymetrics "passport/internal/query/metrics"
	querysvc "passport/internal/query/service"
	"passport/internal/receipts"
	"passport/internal/signature"
	"passport/pkg/platform/circuit"
	"passport/pkg/platform/httputil"
)

// main wires the ledger, the query router and governance behind one HTTP
// server. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("passport exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	admin, err := address("GOVERNANCE_ADMIN", cfg.Governance.AdminAddress)
	if err != nil {
		return err
	}
	ledgerAddr, err := address("LEDGER_ADDRESS", cfg.Chain.LedgerAddress)
	if err != nil {
		return err
	}
	routerAddr, err := address("ROUTER_ADDRESS", cfg.Chain.RouterAddress)
	if err != nil {
		return err
	}
	allowListAddr, err := address("ALLOWLIST_ADDRESS", cfg.Chain.AllowListAddress)
	if err != nil {
		return err
	}

	// Redis backs the replay set and the allow-list when configured.
	var (
		used     signature.UsedSet  = signature.NewMemoryUsedSet()
		registry allowlist.Registry = allowlist.NewMemoryRegistry()
	)
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		used = signature.NewRedisUsedSet(redisClient)
		registry = allowlist.NewRedisRegistry(redisClient)
	} else {
		log.Warn("REDIS_URL not set, replay protection and allow-list are in memory")
	}

	// Receipts go to the Postgres outbox and from there to Kafka. Without a
	// database they are kept in memory.
	var (
		sink   receipts.Sink = receipts.NewMemoryLog()
		worker *receipts.OutboxWorker
	)
	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		outbox := receipts.NewPostgresOutbox(db)
		if err := outbox.EnsureSchema(ctx); err != nil {
			return err
		}
		sink = outbox

		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		if producer != nil {
			defer producer.Close()
			if err := kafka.EnsureTopic(ctx, producer, cfg.Kafka.Topic, cfg.Kafka.Partitions); err != nil {
				return err
			}
			worker = receipts.NewOutboxWorker(outbox, receipts.NewKafkaPublisher(producer, cfg.Kafka.Topic),
				receipts.WithPollInterval(cfg.Kafka.PollInterval),
				receipts.WithBatchSize(cfg.Kafka.BatchSize),
				receipts.WithWorkerLogger(log),
			)
		}
	} else {
		log.Warn("DATABASE_URL not set, receipts are kept in memory")
	}

	env := chain.New(
		chain.WithChainID(cfg.Chain.ChainID),
		chain.WithSink(sink),
		chain.WithLogger(log),
		chain.WithTracer(tracing.Tracer()),
	)
	env.RegisterContract(ledgerAddr)
	env.RegisterContract(routerAddr)
	env.RegisterContract(allowListAddr)
	for _, raw := range cfg.Chain.ContractAddresses {
		addr, err := address("CONTRACT_ADDRESSES", raw)
		if err != nil {
			return err
		}
		env.RegisterContract(addr)
	}

	govOpts := []governance.Option{
		governance.WithAMLThreshold(cfg.Governance.AMLThreshold),
		governance.WithLogger(log),
	}
	if cfg.Governance.TreasuryAddress != "" {
		treasury, err := address("PROTOCOL_TREASURY", cfg.Governance.TreasuryAddress)
		if err != nil {
			return err
		}
		govOpts = append(govOpts, governance.WithTreasury(treasury))
	}
	policy := governance.New(admin, govOpts...)

	authority, err := signature.New(cfg.Chain.ChainID, ledgerAddr, routerAddr, used,
		signature.WithValidity(cfg.Chain.SignatureValidity))
	if err != nil {
		return err
	}

	// The bridge reads AML results back from the ledger it is attached to.
	var ledger *ledgersvc.Service
	bridge, err := allowlist.NewBridge(
		allowlist.AMLReaderFunc(func(ctx context.Context, did common.Hash) ([]ledgermodels.AttributeRecord, error) {
			return ledger.AMLRecords(ctx, did)
		}),
		policy,
		registry,
		allowlist.WithLogger(log),
		allowlist.WithBreaker(circuit.New("allowlist-registry",
			circuit.WithFailureThreshold(cfg.Chain.BridgeFailThreshold))),
	)
	if err != nil {
		return err
	}

	balances := funds.New()
	ledger, err = ledgersvc.New(env, store.New(), policy, authority, balances,
		ledgersvc.WithAddress(ledgerAddr),
		ledgersvc.WithAllowListSyncer(bridge),
		ledgersvc.WithLogger(log),
		ledgersvc.WithMetrics(ledgermetrics.New(nil)),
	)
	if err != nil {
		return err
	}
	router, err := querysvc.New(env, ledger, policy, authority, balances, chain.NewPayoutBank(),
		querysvc.WithAddress(routerAddr),
		querysvc.WithLogger(log),
		querysvc.WithMetrics(querymetrics.New(nil)),
	)
	if err != nil {
		return err
	}

	// The router reads the ledger as itself and needs READER_ROLE.
	bootstrap := chain.WithMsg(ctx, chain.Msg{Caller: admin})
	if err := env.Execute(bootstrap, "governance.Bootstrap", func(ctx context.Context) error {
		return policy.GrantRole(ctx, governance.RoleReader, routerAddr)
	}); err != nil {
		return fmt.Errorf("bootstrap governance: %w", err)
	}

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	validator := jwttoken.NewJWTServiceAdapter(tokens)
	httpMetrics := metrics.New(nil)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status":          "ok",
			"paused":          ledger.Paused(),
			"allowlist_retry": bridge.Pending(),
		})
	})
	ledgerhandler.New(ledger, log, httpMetrics, validator).Register(r)
	queryhandler.New(router, log, httpMetrics, validator).Register(r)
	govhandler.New(policy, env, log, httpMetrics, validator).Register(r)

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting passport", "addr", cfg.Addr, "chain_id", cfg.Chain.ChainID.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if worker != nil {
		g.Go(func() error {
			if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("receipt outbox worker: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Chain.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down passport")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func address(name, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s must be a hex address, got %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}
