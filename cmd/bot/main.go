package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"robinhood-trade-bot-go/internal/broker"
	"robinhood-trade-bot-go/internal/config"
	"robinhood-trade-bot-go/internal/database"
	"robinhood-trade-bot-go/internal/engine"
	"robinhood-trade-bot-go/internal/ledger"
	"robinhood-trade-bot-go/internal/logger"
	"robinhood-trade-bot-go/internal/marketdata"
	"robinhood-trade-bot-go/internal/metrics"
	"robinhood-trade-bot-go/internal/risk"
	"robinhood-trade-bot-go/internal/scheduler"
	"robinhood-trade-bot-go/internal/web"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Credentials usually live in .env rather than the config file.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	led := ledger.New(db, log)
	reg := metrics.NewRegistry()

	data := marketdata.NewChain(log, marketdata.NewYahoo(log))
	robinhood := broker.NewRobinhoodClient(&cfg.Robinhood, log)

	gate := risk.NewGate(risk.Limits{
		MaxPositionSize: cfg.Risk.MaxPositionSize,
		MaxDailyLoss:    cfg.Risk.MaxDailyLoss,
		MaxPositions:    cfg.Risk.MaxPositions,
		RiskPercentage:  cfg.Risk.RiskPercentage,
		DefaultAmount:   cfg.Trading.DefaultTradeAmount,
	}, log)

	eng := engine.NewEngine(log, &cfg, robinhood, data, led, gate, reg)

	server := web.NewServer(log, cfg.Server.Port, eng, led, reg)
	server.Start()

	var sched *scheduler.Scheduler
	if cfg.Trading.AutoTrade {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := eng.Start(ctx); err != nil {
			log.Error("Engine not started: brokerage login failed. Start it via the API once credentials are fixed.",
				zap.Error(err))
		}
		cancel()

		sched, err = scheduler.New(log, eng, cfg.Trading.Symbols, cfg.Schedule.Times)
		if err != nil {
			log.Fatal("Invalid trading schedule", zap.Error(err))
		}
		sched.Start()
	} else {
		log.Info("Auto-trading disabled; engine idle until started via the API")
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eng.Stop(shutdownCtx)
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn("Web server shutdown failed", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
