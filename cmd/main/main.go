package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"stock-pulse/src/broadcast"
	"stock-pulse/src/config"
	"stock-pulse/src/data_source/yahoo"
	"stock-pulse/src/helpers"
	"stock-pulse/src/interfaces"
	"stock-pulse/src/logger"
	"stock-pulse/src/network"
	"stock-pulse/src/server"
	"stock-pulse/src/storage"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	// 1. Storage (optional)
	var db interfaces.IDatabase

	switch cfg.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(cfg.MConfig, appLogger.Named("postgres"))
	case "none", "":
		db = nil
	default:
		// Default to SQLite
		db, err = storage.NewAsyncSQLiteDB(cfg.MConfig, appLogger.Named("sqlite"))
	}
	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}

	if db != nil {
		err = helpers.RetryWithBackoff("db initialize", 3, 2*time.Second, db.Initialize)
		if err != nil {
			appLogger.Critical("Failed to migrate db: %v", err)
		}
		defer db.Close()
	}

	// 2. Data provider behind the retrying network manager
	var netMgr interfaces.INetworkManager = network.NewAsyncNetworkManager(cfg.MConfig, appLogger.Named("network"))
	var provider interfaces.IStockDataProvider = yahoo.NewYahooFinanceSource(netMgr, appLogger.Named("yahoo"))

	// 3. Broadcast service
	svc := broadcast.NewService(cfg.MConfig, provider, db, clockwork.NewRealClock(), appLogger.Named("broadcast"))
	svc.Start()

	// 4. HTTP server
	srv := server.NewServer(cfg.MConfig, svc, appLogger.Named("server"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// 5. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLogger.Info("Received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			appLogger.Error("Server error: %v", err)
		}
	}

	// 6. Ordered shutdown: stop accepting traffic, then stop the service
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		appLogger.Warning("HTTP shutdown: %v", err)
	}
	svc.Stop()

	appLogger.Info("Shutdown complete")
}
