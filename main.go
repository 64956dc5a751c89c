package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tickergate/config"
	"tickergate/hub"
	"tickergate/logger"
	"tickergate/pair"
	"tickergate/server"
	"tickergate/stream"
	streambinance "tickergate/stream/binance"
	tradebinance "tickergate/trading/binance"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Tickergate.Name,
		"version":     cfg.Tickergate.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting tickergate")

	if cfg.Logging.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Logging.CloudWatch.Region, cfg.Logging.CloudWatch.Namespace)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Logging.Report.Enabled {
		logger.StartReport(ctx, log, cfg.Logging.Report.Interval)
	}

	streamClient := streambinance.NewClient(cfg.Binance.WsURL, cfg.Stream.HandshakeTimeout, cfg.Stream.PingInterval)
	if err := streamClient.Connect(); err != nil {
		log.WithError(err).Error("failed to connect to venue stream")
		os.Exit(1)
	}

	broadcaster := hub.New()
	logger.RegisterSubscriberGauge(broadcaster.Len)

	// The manager consults the registry's live pair for its drop-check; the
	// registry drives the manager on every switch. Bind through a closure so
	// both can be constructed.
	var registry *pair.Registry
	manager := stream.NewManager(streamClient, broadcaster, func() string {
		if registry == nil {
			return ""
		}
		return registry.Current()
	}, cfg.Stream.DepthInterval)
	registry = pair.NewRegistry(manager, broadcaster)

	if _, _, err := registry.Set(cfg.Stream.DefaultPair); err != nil {
		log.WithError(err).Error("failed to subscribe to initial pair")
		os.Exit(1)
	}

	trader := tradebinance.NewClient(
		cfg.Binance.APIKey,
		cfg.Binance.APISecret,
		cfg.Binance.RestURL,
		cfg.Binance.RateLimit.RequestsPerSecond,
		cfg.Binance.RateLimit.BurstSize,
	)

	gateway := server.New(registry, broadcaster, trader)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: gateway.Router(),
	}

	go func() {
		log.WithFields(logger.Fields{"addr": httpServer.Addr}).Info("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch

	log.WithComponent("main").Info("shutting down")

	// Upstream feeds first, then subscriber connections, then the listener,
	// so nothing emits partial state into a closing transport.
	manager.DisconnectAll()
	broadcaster.CloseAll()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown incomplete")
	}

	log.WithComponent("main").Info("tickergate stopped")
}
