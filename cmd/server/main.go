package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sqlexec_go/internal/config"
	"github.com/sqlexec_go/internal/dbclient"
	"github.com/sqlexec_go/internal/dbexec"
	"github.com/sqlexec_go/internal/lock"
	"github.com/sqlexec_go/internal/schema"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	driver := cfg.Database.Driver

	pool, err := dbclient.OpenPool(driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to open %s: %v", driver, err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		pool.DB().SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	factory, err := dbexec.NewFactory(dbexec.FactoryConfig{
		Driver:         driver,
		DSN:            cfg.Database.DSN,
		DefaultTimeout: cfg.Database.DefaultTimeout,
		Opener:         pool,
	})
	if err != nil {
		log.Fatalf("failed to create executor factory: %v", err)
	}
	defer factory.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pool.DB().PingContext(ctx); err != nil {
		log.Fatalf("failed to ping %s: %v", driver, err)
	}
	log.Printf("connected to %s", driver)

	if cfg.Migrations.Dir != "" {
		n, err := runMigrations(cfg, pool.DB().DB)
		if err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
		log.Printf("applied %d migrations from %s", n, cfg.Migrations.Dir)
	}

	router := newRouter(factory)

	log.Printf("starting http server on %s", cfg.HTTPAddr)
	if err := router.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("http server error: %v", err)
	}
}

// runMigrations applies pending migrations, under a Redis lock when Redis is
// configured so that only one replica migrates at a time.
func runMigrations(cfg *config.Config, db *sql.DB) (int, error) {
	m, err := schema.New(db, cfg.Database.Driver, cfg.Migrations.Dir, cfg.Migrations.Table)
	if err != nil {
		return 0, err
	}
	if cfg.Redis.Addr == "" {
		return m.Up()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Redis.LockTTL)
	defer cancel()
	return m.UpLocked(ctx, lock.NewLocker(rdb, ""), cfg.Redis.LockTTL)
}
