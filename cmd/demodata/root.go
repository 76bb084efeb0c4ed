package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"brandhub.dev/demodata/internal/config"
	"brandhub.dev/demodata/internal/demodata"
	"brandhub.dev/demodata/internal/docstore"
	"brandhub.dev/demodata/internal/docstore/memstore"
	"brandhub.dev/demodata/internal/identity"
	"brandhub.dev/demodata/internal/ids"
	"brandhub.dev/demodata/internal/migrate"
	"brandhub.dev/demodata/internal/obs"
	"brandhub.dev/demodata/internal/runlock"
	"brandhub.dev/demodata/internal/store/sqlstore"
)

var rootCmd = &cobra.Command{
	Use:   "demodata",
	Short: "Seed and tear down the tagged demo dataset",
	Long: `demodata provisions a coherent demo dataset (brand, retailers, users,
trainings, sample programs, announcements, communities) and removes it again.

Every document it writes carries demoTag=true; reset only ever deletes tagged
documents. Configuration comes from DEMODATA_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
	rootCmd.AddCommand(seedCmd, resetCmd, migrateCmd, serveCmd)
}

// app holds the wired runtime for one command invocation.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	store    docstore.Store
	accounts identity.AccountStore
	identity *identity.Service
	locker   runlock.Locker
	closers  []func() error
}

// pinger is satisfied by stores that can report readiness.
type pinger interface {
	Ping(ctx context.Context) error
}

func loadApp(ctx context.Context, needTokens bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := obs.NewLogger(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	obs.SetLogger(log)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() error { _ = log.Sync(); return nil })

	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}

	secret := cfg.TokenSecret
	if secret == "" {
		if needTokens {
			a.close()
			return nil, errors.New("config: DEMODATA_TOKEN_SECRET is required to serve")
		}
		// tokens minted by a CLI run never leave the process
		secret = ids.New()
	}
	tokens, err := identity.NewTokens(secret, cfg.TokenTTL)
	if err != nil {
		a.close()
		return nil, err
	}
	a.identity, err = identity.NewService(a.accounts, tokens, identity.WithRateLimit(cfg.IdentityRPS, cfg.IdentityBurst))
	if err != nil {
		a.close()
		return nil, err
	}

	if cfg.RedisAddr != "" {
		rdb, err := runlock.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.locker = runlock.NewRedisLocker(rdb, "")
	} else {
		a.locker = runlock.NewLocalLocker()
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.StoreDriver {
	case config.DriverMemory:
		a.store = memstore.New(memstore.WithMaxBatchOps(a.cfg.BatchCeiling))
		a.accounts = identity.NewMemoryAccounts()
		return nil
	case config.DriverPostgres, config.DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
	}

	d, err := sqlstore.DialectFor(a.cfg.StoreDriver)
	if err != nil {
		return err
	}
	db, err := sqlstore.Open(d, a.cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.Name, err)
	}
	a.closers = append(a.closers, db.Close)

	// an embedded database has no separate migration step
	if d.Name == sqlstore.SQLite.Name {
		mgr, err := migrate.NewManager(db, migrate.SQLite)
		if err != nil {
			return err
		}
		if err := mgr.Up(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	a.store = sqlstore.NewDocuments(db, d, a.cfg.BatchCeiling)
	a.accounts = sqlstore.NewAccounts(db, d)
	return nil
}

func (a *app) manager() (*demodata.Manager, error) {
	opts := []demodata.Option{
		demodata.WithThreshold(a.cfg.BatchThreshold),
		demodata.WithLocker(a.locker),
		demodata.WithLockTTL(a.cfg.LockTTL),
		demodata.WithFeatures(demodata.Features{
			TrainingProgress: a.cfg.FeatureTrainingProgress,
			CommunityPosts:   a.cfg.FeatureCommunityPosts,
		}),
		demodata.WithLogger(a.log),
	}
	if a.cfg.DatasetPath != "" {
		ds, err := demodata.LoadDataset(a.cfg.DatasetPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, demodata.WithDataset(ds))
	}
	return demodata.NewManager(a.store, demodata.ServiceSessions{Service: a.identity}, opts...)
}

func (a *app) ready(ctx context.Context) error {
	if p, ok := a.store.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
