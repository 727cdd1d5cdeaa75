package main

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/srmgate/srmgate/core/cas"
	"github.com/srmgate/srmgate/core/config"
	"github.com/srmgate/srmgate/core/domain"
	"github.com/srmgate/srmgate/core/health"
	"github.com/srmgate/srmgate/core/identity"
	"github.com/srmgate/srmgate/core/logger"
	"github.com/srmgate/srmgate/core/login"
	"github.com/srmgate/srmgate/kgorm"
	"go.uber.org/zap"
)

// newHealth probes the database that holds accounts and the reference index.
func newHealth(version string, repo *kgorm.Repository) *health.Manager {
	hm := health.NewManager(version)
	hm.Register(health.NewPingChecker("database", func(ctx context.Context) error {
		sqlDB, err := repo.DB().DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}))
	return hm
}

// openRecords opens the configured record backend and registers a probe for
// it on hm when it lives outside the database.
func openRecords(cfg *config.Config, repo *kgorm.Repository, hm *health.Manager) (domain.RecordStore, func(), error) {
	switch cfg.RecordBackend {
	case "gorm":
		return repo.Records(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		hm.Register(health.NewPingChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		return cas.NewRedisRecordStore(client, cfg.RedisPrefix), func() { client.Close() }, nil
	case "memory":
		logger.Get().Warn("identity records are kept in memory and lost on restart")
		return cas.NewMemoryRecordStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown record backend %q", cfg.RecordBackend)
	}
}

// newReferenceIndex checks the configured reference columns against the
// records of whichever backend holds them.
func newReferenceIndex(cfg *config.Config, repo *kgorm.Repository, records domain.RecordStore, refs []kgorm.Reference) *kgorm.ReferenceIndex {
	opts := []kgorm.ReferenceOption{kgorm.WithMinAge(cfg.GCMinAge)}
	if l, ok := records.(domain.RecordLister); ok {
		opts = append(opts, kgorm.WithRecords(l))
	}
	return repo.References(refs, opts...)
}

func newStrategy(cfg *config.Config, accounts login.AccountStore) (*login.Strategy, error) {
	opts := []login.StrategyOption{login.WithLogger(logger.Get())}

	if cfg.CAFile != "" {
		roots, err := loadRoots(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, login.WithRoots(roots))
	}
	if cfg.SessionSecret != "" {
		opts = append(opts, login.WithSessionTokens(login.NewSessionTokens(cfg.SessionSecret, cfg.SessionTTL)))
	}
	return login.NewStrategy(accounts, opts...), nil
}

func loadRoots(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust anchors: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", path)
	}
	return pool, nil
}

// runGC collects unreferenced records every interval until ctx ends.
func runGC(ctx context.Context, m *identity.Manager, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.GC(ctx); err != nil {
				logger.Get().Error("identity gc failed", zap.Error(err))
			}
		}
	}
}
