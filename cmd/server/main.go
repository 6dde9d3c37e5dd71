package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/sheikh-saqib/household-funds-ledger/internal/clients/accountsvc"
	"github.com/sheikh-saqib/household-funds-ledger/internal/config"
	"github.com/sheikh-saqib/household-funds-ledger/internal/events"
	"github.com/sheikh-saqib/household-funds-ledger/internal/events/kafka"
	redispub "github.com/sheikh-saqib/household-funds-ledger/internal/events/redis"
	"github.com/sheikh-saqib/household-funds-ledger/internal/fanout"
	"github.com/sheikh-saqib/household-funds-ledger/internal/funds"
	"github.com/sheikh-saqib/household-funds-ledger/internal/httpapi"
	interfaces "github.com/sheikh-saqib/household-funds-ledger/internal/interfaces"
	"github.com/sheikh-saqib/household-funds-ledger/internal/ledger"
	"github.com/sheikh-saqib/household-funds-ledger/internal/metrics"
	modelevents "github.com/sheikh-saqib/household-funds-ledger/internal/models/events"
	"github.com/sheikh-saqib/household-funds-ledger/internal/notify"
	"github.com/sheikh-saqib/household-funds-ledger/internal/saga"
	"github.com/sheikh-saqib/household-funds-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/household-funds-ledger/internal/storage/postgres"
)

const remoteTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func run(cfg config.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewCollector("funds")

	policy, err := fanout.ParsePolicy(cfg.FanoutPolicy)
	if err != nil {
		return err
	}
	hub := fanout.NewHub(cfg.FanoutBuffer, policy, m)

	stores, closeStores, err := openStores(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	retrier := ledger.NewRetrier(stores.Ledger, logger.Named("retrier"), ledger.WithMetrics(m))

	var notifier interfaces.Notifier
	var dispatcher *notify.Dispatcher
	if cfg.NotificationServiceURL != "" {
		target := notify.NewHTTPNotifier(cfg.NotificationServiceURL, remoteTimeout)
		dispatcher = notify.NewDispatcher(target, cfg.NotifyQueueSize, cfg.NotifyWorkers, remoteTimeout, logger.Named("notify"), m)
		notifier = dispatcher
	} else {
		logger.Warn("NOTIFICATION_SERVICE_URL not set, notifications disabled")
	}
	directory := notify.NewDirectory(cfg.DirectoryURL, remoteTimeout, stores.Accounts, logger.Named("directory"))

	svc := funds.Assemble(stores, funds.Options{
		Hub:       hub,
		Retrier:   retrier,
		Notifier:  notifier,
		Directory: directory,
		Logger:    logger,
		Metrics:   m,
		Config: funds.Config{
			OpeningBalanceParent: cfg.OpeningBalanceParent,
			OpeningBalanceChild:  cfg.OpeningBalanceChild,
			StepTimeout:          cfg.StepTimeout,
		},
		Saga: saga.Config{
			StepTimeout:          cfg.StepTimeout,
			CompensationAttempts: saga.DefaultConfig().CompensationAttempts,
			CompensationInterval: saga.DefaultConfig().CompensationInterval,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(svc, stores.Accounts, m, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return retrier.Run(gctx) })
	if dispatcher != nil {
		g.Go(func() error { return dispatcher.Run(gctx) })
	}

	topics := []string{modelevents.TopicRequestLifecycle, modelevents.TopicTransfers}

	if len(cfg.KafkaBrokers) > 0 {
		pub := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer pub.Close()
		relay := events.NewRelay("kafka", hub, pub, topics, logger.Named("relay"), m)
		g.Go(func() error { return relay.Run(gctx) })
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
		})
		defer rdb.Close()
		relay := events.NewRelay("redis", hub, redispub.NewPublisher(rdb, cfg.RedisChannel), topics, logger.Named("relay"), m)
		g.Go(func() error { return relay.Run(gctx) })
	}

	return g.Wait()
}

// openStores picks postgres when DATABASE_URL is set and memory otherwise.
// Accounts may live in a separate account service.
func openStores(cfg config.AppConfig, logger *zap.Logger) (funds.Stores, func(), error) {
	var st funds.Stores
	closeFn := func() {}

	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory stores")
		st = funds.Stores{
			Accounts: memory.NewMemoryAccountStore(),
			Ledger:   memory.NewMemoryLedgerStore(),
			Requests: memory.NewMemoryRequestStore(),
		}
	} else {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return st, closeFn, err
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return st, closeFn, err
		}
		closeFn = func() { db.Close() }
		st = funds.Stores{
			Accounts: postgres.NewPostgresAccountStore(db),
			Ledger:   postgres.NewPostgresLedgerStore(db),
			Requests: postgres.NewPostgresRequestStore(db),
		}
	}

	if cfg.AccountServiceURL != "" {
		logger.Info("using remote account service", zap.String("url", cfg.AccountServiceURL))
		st.Accounts = accountsvc.New(cfg.AccountServiceURL, remoteTimeout)
	}
	return st, closeFn, nil
}
