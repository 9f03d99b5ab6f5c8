package db

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	// necessary import to wire up the postgres driver
	_ "github.com/lib/pq"
)

// PoolOptions bound the sqlx connection pool. Size is the number of
// idle-kept connections, Overflow the extra connections allowed on top,
// Timeout the idle lifetime in seconds.
type PoolOptions struct {
	Size     int
	Overflow int
	Timeout  int
}

func NewConnection(databaseURL string, pool PoolOptions) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if pool.Size > 0 {
		db.SetMaxIdleConns(pool.Size)
		db.SetMaxOpenConns(pool.Size + pool.Overflow)
	}
	if pool.Timeout > 0 {
		db.SetConnMaxIdleTime(time.Duration(pool.Timeout) * time.Second)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
