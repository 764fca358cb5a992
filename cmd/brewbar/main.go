package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"brewbar/internal/cache"
	"brewbar/internal/config"
	"brewbar/internal/http/handlers"
	"brewbar/internal/repos"
	"brewbar/web"
)

func main() {
	cfg := config.Load()

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			defer f.Close()
			log.SetOutput(io.MultiWriter(os.Stdout, f))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repos.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	var extras handlers.Extras
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Printf("[warn] redis at %s unreachable, carts stay in memory: %v", cfg.RedisAddr, err)
			_ = rdb.Close()
		} else {
			defer rdb.Close()
			extras.CartStore = cache.NewCartStore(rdb, cfg.CartTTL)
			extras.Lock = cache.NewSubmitLock(rdb, cfg.CheckoutTimeout+5*time.Second)
			log.Printf("[redis] carts and checkout locks -> %s", cfg.RedisAddr)
		}
	}

	deps := handlers.NewDeps(db, cfg, extras)
	app := handlers.NewApp(web.Views(), deps, handlers.Limits{})

	go func() {
		<-ctx.Done()
		log.Printf("[shutdown] draining for up to %s", cfg.ShutdownTimeout)
		if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
			log.Printf("[shutdown] %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Printf("[listen] %v", err)
	}
}
