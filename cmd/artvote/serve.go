package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artvote/internal/api"
	"artvote/internal/config"
	dbpkg "artvote/internal/db"
	"artvote/internal/holdership"
	"artvote/internal/ledger"
	"artvote/internal/logger"
	"artvote/internal/metrics"
	"artvote/internal/signature"
	"artvote/internal/vote"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// openStore opens the storage engine selected by DATABASE_URL. SQL engines
// are migrated before use.
func openStore(cfg config.Config, log *logger.Logger) (ledger.Store, func(), error) {
	if cfg.DBDialect == config.DatabaseSchemeBadger {
		bs, err := ledger.OpenBadger(cfg.DBDsn)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Badger store opened at %s", cfg.DBDsn)
		return bs, func() {
			if err := bs.Close(); err != nil {
				log.Printf("close error: %v", err)
			}
		}, nil
	}

	gormDB, err := dbpkg.Open(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect database: %w", err)
	}
	log.Printf("DB connected")
	if err := dbpkg.AutoMigrate(gormDB); err != nil {
		_ = dbpkg.Close(gormDB)
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Printf("Migrations applied")
	return ledger.NewSQLStore(gormDB), func() {
		if err := dbpkg.Close(gormDB); err != nil {
			log.Printf("close error: %v", err)
		}
	}, nil
}

func serveRun(cfg config.Config, log *logger.Logger) error {
	log.Printf("Config loaded: %s", cfg.DebugString())

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	strategy, err := ledger.NewStrategy(ledger.Policy(cfg.VotePolicy), store)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := vote.Options{
		Strategy:        strategy,
		Verifier:        signature.Ed25519{},
		Metrics:         metrics.New(reg),
		Logger:          log,
		MessageMode:     cfg.MessageMode,
		MessageTemplate: cfg.MessageTemplate,
	}
	if cfg.TokenGateEnabled {
		oracle, err := holdership.NewOracle(cfg.TokenRPCURL, cfg.TokenMint, cfg.TokenMinAmount)
		if err != nil {
			return err
		}
		opts.Gate = oracle
		log.Printf("Token gate enabled mint=%s min=%d", cfg.TokenMint, cfg.TokenMinAmount)
	}
	svc, err := vote.New(opts)
	if err != nil {
		return err
	}

	app := api.New(svc, api.Config{Gatherer: reg, AccessLog: log.Writer()})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s policy=%s", cfg.ListenAddr, strategy.Policy())
		errCh <- app.Listen(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("shutting down...")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("shutdown error: %v", err)
	}

	// Ensure logs flushed in some environments
	_ = os.Stderr.Sync()
	return nil
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the vote API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			return serveRun(cfg, log)
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the vote schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DBDialect == config.DatabaseSchemeBadger {
				log.Printf("badger needs no migrations")
				return nil
			}
			_, closeStore, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			closeStore()
			return nil
		},
	}
}
