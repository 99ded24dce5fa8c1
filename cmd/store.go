package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/truecost/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "truecost.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("database url is required (TRUECOST_STORE_DATABASE_URL)")
		}
		var pool *store.PoolConfig
		if cfg.Store.MaxConns > 0 {
			pool = &store.PoolConfig{MaxConns: int32(cfg.Store.MaxConns)}
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
