package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/avbdev/crypto_scalper/internal/config"
	"github.com/avbdev/crypto_scalper/internal/infrastructure/exchange"
	"github.com/avbdev/crypto_scalper/internal/infrastructure/logger"
	"github.com/avbdev/crypto_scalper/internal/infrastructure/storage"
	"github.com/avbdev/crypto_scalper/internal/usecase"
	"github.com/avbdev/crypto_scalper/internal/web"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Log.File != "" {
		log, err = logger.NewFileLogger(cfg.Log.Level, cfg.Log.File)
	} else {
		log, err = logger.NewLogger(cfg.Log.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange
	// Paper only for now; a live adapter plugs in behind the same
	// interface once venue credentials are wired.
	feed := exchange.NewSyntheticFeed(30000, 0.08, time.Now().UnixNano())
	ex := exchange.NewPaperExchange(
		feed,
		cfg.Exchange.QuoteAsset,
		cfg.Exchange.InitialQuoteBalance,
		cfg.Exchange.PaperFeePct,
		cfg.Exchange.PaperSlippagePct,
	)

	// 5. Init Services
	analyzer := usecase.NewMarketAnalyzer(cfg.Indicator)
	regimes := usecase.NewRegimeDetector(cfg.Indicator.EMAFastPeriod, cfg.Indicator.EMASlowPeriod, cfg.Regime.DivergenceThresholdPct)
	signals := usecase.NewSignalService(cfg.Signal, regimes)
	risk := usecase.NewRiskService(cfg.Risk, store, log)
	router := usecase.NewOrderRouter(cfg.Router, ex, cfg.Exchange.QuoteAsset, log)
	tracker := usecase.NewPositionTracker(store, log)
	hub := web.NewHub(log)
	engine := usecase.NewEngine(cfg, ex, analyzer, regimes, signals, risk, router, tracker, log, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. Run Engine
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(ctx)
	}()

	// 7. Run Web Server
	server := web.NewServer(cfg.Web.Addr, engine, store, hub, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Web server failed", zap.Error(err))
		}
	}()

	// 8. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("Shutting down...")

	cancel()
	select {
	case <-engineDone:
	case <-time.After(30 * time.Second):
		log.Warn("Engine did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Web server shutdown failed", zap.Error(err))
	}
	log.Info("Shutdown complete")
}
