package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bassinshop-storefront/internal/cartsync"
	"bassinshop-storefront/internal/checkout"
	"bassinshop-storefront/internal/config"
	"bassinshop-storefront/internal/httpserver"
	"bassinshop-storefront/internal/store"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[storefront] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("open %s store: %v", cfg.StoreBackend, err)
	}
	defer closeStore()

	srv, err := httpserver.New(cfg.HTTPAddr, logger, httpserver.Deps{
		Store:          st,
		BackendBaseURL: cfg.BackendBaseURL,
		Checkout: checkout.Config{
			VATRate:      cfg.VATRate,
			ShippingCost: cfg.ShippingCost,
		},
		CartOpts: cartsync.Options{
			CacheTTL:     cfg.CartCacheTTL,
			RecheckEvery: cfg.PromoRecheck,
		},
		AllowedOrigins: splitOrigins(cfg.AllowedOrigins),
		Logger:         logger,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s (backend %s, store %s)", cfg.HTTPAddr, cfg.BackendBaseURL, cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		r, err := store.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	case "postgres":
		p, err := store.ConnectPostgres(ctx, cfg.DBConnString)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
