package db

import (
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/activitylog-webhook/internal/config"
	"github.com/jmoiron/sqlx"
)

// NewMySQLConnection opens the primary store. The DSN needs parseTime=true.
func NewMySQLConnection(c config.DatabaseConfig) (*sqlx.DB, error) {
	return Open("mysql", c.DSN, PoolOptsFrom(c))
}
