package database

import (
	"context"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the connection pool holding the QA report, the input metadata
// and the processed-export ledger.
type DB struct {
	Pool *pgxpool.Pool

	// QAReportTable names the QA report table metadata is looked up in.
	// Empty means qa_report.
	QAReportTable string

	log zerolog.Logger
}

// Connect opens a pool against databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	// One ETL run issues a handful of bulk queries; the watcher adds at
	// most WATCH_WORKERS concurrent lookups on top.
	cfg.MaxConns = 8
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log = log.With().Str("component", "database").Logger()
	log.Info().
		Str("url", maskDSN(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Msg("database connected")

	return &DB{Pool: pool, log: log}, nil
}

func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

// PoolStats reports pool usage for the metrics collector.
func (db *DB) PoolStats() (total, acquired, idle int32) {
	s := db.Pool.Stat()
	return s.TotalConns(), s.AcquiredConns(), s.IdleConns()
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

func (db *DB) Close() {
	db.log.Info().Msg("closing database pool")
	db.Pool.Close()
}
