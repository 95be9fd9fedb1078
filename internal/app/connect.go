package app

import (
	"fmt"

	"github.com/jmehdipour/activitylog-webhook/internal/config"
	"github.com/jmehdipour/activitylog-webhook/internal/db"
)

// Connect opens MySQL, and ClickHouse and Redis when they are configured.
// On error every connection opened so far is closed.
func Connect(cfg config.Config) (Stores, error) {
	var st Stores

	mysqlDB, err := db.NewMySQLConnection(cfg.MySQL)
	if err != nil {
		return st, fmt.Errorf("mysql connect: %w", err)
	}
	st.MySQL = mysqlDB

	chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
	if err != nil {
		st.Close()
		return Stores{}, fmt.Errorf("clickhouse connect: %w", err)
	}
	st.ClickHouse = chDB

	if cfg.Redis.Addr != "" {
		rdb, err := db.NewRedisClient(cfg.Redis)
		if err != nil {
			st.Close()
			return Stores{}, fmt.Errorf("redis connect: %w", err)
		}
		st.Redis = rdb
	}
	return st, nil
}

func (s Stores) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.ClickHouse != nil {
		_ = s.ClickHouse.Close()
	}
	if s.MySQL != nil {
		_ = s.MySQL.Close()
	}
}
