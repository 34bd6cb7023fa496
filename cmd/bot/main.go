package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pix_telegram_bot/internal/config"
	"pix_telegram_bot/internal/feature/admin"
	"pix_telegram_bot/internal/feature/pix"
	"pix_telegram_bot/internal/health"
	"pix_telegram_bot/internal/logging"
	"pix_telegram_bot/internal/pagarme"
	"pix_telegram_bot/internal/telegram"
)

const (
	// telegramShutdownTimeout covers a /pix order request that is still waiting on the provider.
	telegramShutdownTimeout = pagarme.RequestTimeout + 5*time.Second
	healthShutdownTimeout   = 5 * time.Second
)

var processStart = time.Now()

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":            "startup",
		"pagarme_api_base": cfg.PagarmeAPIBase,
		"admin_configured": cfg.AdminID != 0,
	}).Info("configuration loaded")

	pagarmeClient, err := pagarme.NewClient(cfg.PagarmeAPIBase, cfg.PagarmeSecret,
		pagarme.WithLogger(logger.WithField("component", "pagarme")),
	)
	if err != nil {
		logger.WithError(err).Error("payment client setup error")
		fmt.Fprintf(os.Stderr, "payment client setup error: %v\n", err)
		os.Exit(1)
	}

	pixHandler := pix.NewHandler(cfg.PagarmeSecret, pagarmeClient, logger.WithField("component", "pix"))
	stopGuard := admin.NewGuard(cfg.AdminID, logger.WithField("component", "admin"))

	tgClient, err := telegram.NewClient(cfg, logger,
		telegram.WithPixHandler(pixHandler),
		telegram.WithStopGuard(stopGuard),
		telegram.WithProcessStart(processStart),
	)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	var healthServer *health.Server
	if cfg.HealthEnabled() {
		healthServer = health.NewServer(cfg.HTTPPort, tgClient, logger)
		go func() {
			if err := healthServer.ListenAndServe(); err != nil {
				logger.WithError(err).Error("health server error")
			}
		}()
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_by_command").Info("telegram polling stopped by administrator")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	if healthServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), healthShutdownTimeout)
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("health server shutdown error")
		}
		cancelShutdown()
	}

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
