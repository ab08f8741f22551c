package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"loadsignal.dev/collector/internal/config"
)

var ErrNoRows = gorm.ErrRecordNotFound

// Pool owns the gorm handle and the underlying sql.DB connection pool. All
// query helpers hang off Pool so the composition root wires exactly one.
type Pool struct {
	gdb   *gorm.DB
	sqlDB *sql.DB
}

func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(resolveGormLogLevel(cfg.LogLevel)),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get gorm sql db: %w", err)
	}

	maxOpen := int(cfg.DBMaxConns)
	if maxOpen <= 0 {
		maxOpen = 20
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(max(1, min(int(cfg.DBMinConns), maxOpen)))
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pool := &Pool{gdb: gdb, sqlDB: sqlDB}
	if err := pool.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return pool, nil
}

func (p *Pool) migrate(ctx context.Context) error {
	gdb := p.gdb.WithContext(ctx)

	if err := gdb.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create pgvector extension: %w", err)
	}

	if err := gdb.AutoMigrate(
		&Source{},
		&Article{},
		&FetchLog{},
		&SourceCandidate{},
		&Subscription{},
		&WebhookDeliveryLog{},
		&APIKey{},
	); err != nil {
		return err
	}

	// Indexes gorm tags cannot express: GIN over arrays, full text, and the
	// HNSW vector index with the tuned build parameters.
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_articles_transport_modes ON articles USING gin (transport_modes)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_regions ON articles USING gin (regions)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_fts ON articles USING gin (to_tsvector('simple', title || ' ' || coalesce(body_text, '')))`,
		`CREATE INDEX IF NOT EXISTS idx_articles_embedding_hnsw ON articles USING hnsw (embedding vector_cosine_ops) WITH (m = 16, ef_construction = 64)`,
	}
	for _, stmt := range statements {
		if err := gdb.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func (p *Pool) Close() error {
	if p == nil || p.sqlDB == nil {
		return nil
	}
	return p.sqlDB.Close()
}

func (p *Pool) GORM() *gorm.DB {
	if p == nil {
		return nil
	}
	return p.gdb
}

func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func resolveGormLogLevel(appLogLevel string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(appLogLevel)) {
	case "trace", "debug":
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
