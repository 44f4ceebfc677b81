package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Open connects with either registered driver ("postgres" or "pgx") and
// pings before returning.
func Open(ctx context.Context, driver, dsn string, debug bool, lg zerolog.Logger) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DB DSN")
	}
	if driver == "" {
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(60 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if debug {
		var who, dbname, ver string
		_ = db.QueryRowContext(pingCtx, "SELECT current_user").Scan(&who)
		_ = db.QueryRowContext(pingCtx, "SELECT current_database()").Scan(&dbname)
		_ = db.QueryRowContext(pingCtx, "SHOW server_version").Scan(&ver)
		lg.Info().
			Str("driver", driver).
			Str("user", who).
			Str("db", dbname).
			Str("version", ver).
			Msg("db connected")
	}
	return db, nil
}
