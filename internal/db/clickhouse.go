package db

import (
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmehdipour/activitylog-webhook/internal/config"
	"github.com/jmoiron/sqlx"
)

// NewClickHouseConnection opens the ledger read model,
// e.g. clickhouse://default:@localhost:9000/webhooks?dial_timeout=5s&compress=true.
// It returns (nil, nil) when no DSN is configured.
func NewClickHouseConnection(c config.DatabaseConfig) (*sqlx.DB, error) {
	if c.DSN == "" {
		return nil, nil
	}
	opts := PoolOptsFrom(c)
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 3 * time.Second
	}
	return Open("clickhouse", c.DSN, opts)
}
