package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/metrics"
	cartrepo "storefront/internal/repository/cart"
	orderrepo "storefront/internal/repository/order"
	cartsvc "storefront/internal/service/cart"
	"storefront/internal/service/identity"
	ordersvc "storefront/internal/service/order"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	appMetrics := metrics.Disabled()
	if cfg.MetricsEnabled {
		m, provider, err := metrics.Init(ctx, cfg.OTLPEndpoint, cfg.OTELServiceName)
		if err != nil {
			logger.Fatalf("init metrics: %v", err)
		}
		appMetrics = m
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.Printf("metrics shutdown: %v", err)
			}
		}()
	}

	cartRepo := cartrepo.NewPostgres(dbpool)
	orderRepo := orderrepo.NewPostgres(dbpool)
	resolver := identity.New(cartRepo, cfg.DefaultCurrency)
	cartService := cartsvc.New(cartRepo, appMetrics)
	orderService := ordersvc.New(orderRepo, appMetrics)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		Resolver: resolver,
		Carts:    cartService,
		Orders:   orderService,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s", cfg.HTTPAddr)
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
