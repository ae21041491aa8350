package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cocart-replica/internal/config"
	"cocart-replica/internal/db"
	"cocart-replica/internal/events"
	"cocart-replica/internal/httpserver"
	couponrepo "cocart-replica/internal/repository/coupon"
	productrepo "cocart-replica/internal/repository/product"
	reservationrepo "cocart-replica/internal/repository/reservation"
	sessionrepo "cocart-replica/internal/repository/session"
	userrepo "cocart-replica/internal/repository/user"
	cartsvc "cocart-replica/internal/service/cart"
	identitysvc "cocart-replica/internal/service/identity"
	"cocart-replica/internal/service/pricing"
	sessionsvc "cocart-replica/internal/service/session"
)

func main() {
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer dbpool.Close()

	productRepo := productrepo.NewPostgres(dbpool, logger)
	couponRepo := couponrepo.NewPostgres(dbpool)
	reservationRepo := reservationrepo.NewPostgres(dbpool)
	sessionRepo := sessionrepo.NewPostgres(dbpool, logger)
	userRepo := userrepo.NewPostgres(dbpool)

	var sink events.Sink = events.NewLogSink(logger)
	if len(cfg.EventBrokers) > 0 {
		kafkaSink := events.NewKafkaSink(cfg.EventBrokers, cfg.EventTopic)
		defer kafkaSink.Close()
		sink = kafkaSink
		logger.Printf("publishing cart events to %v topic %s", cfg.EventBrokers, cfg.EventTopic)
	}

	taxMode := pricing.TaxExclusive
	if cfg.PricesIncludeTax {
		taxMode = pricing.TaxInclusive
	}
	engine := cartsvc.New(productRepo, couponRepo, reservationRepo, pricing.New(cfg), sink, logger, cfg.MaxLineItems, taxMode)

	sessions := sessionsvc.New(sessionRepo, engine, nil, logger, sessionsvc.Options{
		SessionTTL:       cfg.SessionTTL,
		CartTTL:          cfg.CartTTL,
		PreserveOnLogout: cfg.PreserveUserCartOnLogout,
	})
	identity := identitysvc.New(userRepo, cfg.JWTSecret, cfg.TokenTTL)

	if moved, err := sessions.TransferLegacy(ctx); err != nil {
		logger.Printf("legacy session transfer: %v", err)
	} else if moved > 0 {
		logger.Printf("transferred %d legacy sessions", moved)
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sessions.RunSweeper(sweepCtx, cfg.SweepInterval)

	srv, err := httpserver.New(cfg, logger, dbpool, httpserver.Deps{
		Sessions: sessions,
		Identity: identity,
		Products: productRepo,
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
