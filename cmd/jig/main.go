package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrmny/jig/config"
	"github.com/hrmny/jig/logger"
	"github.com/hrmny/jig/server"
	"github.com/hrmny/jig/server/imapbackend"
	"github.com/hrmny/jig/server/jmapapi"
	"github.com/hrmny/jig/tlsmanager"
)

// Version information, injected at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg := config.NewDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.BoolVar(showVersion, "v", false, "Show version information and exit")
	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("jig version %s (commit: %s, built at: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if err := config.LoadConfigFromFile(*configPath, &cfg); err != nil {
		if os.IsNotExist(err) && *configPath == "config.toml" {
			// Default config is optional; a user-specified one is not.
			fmt.Fprintf(os.Stderr, "JIG: default configuration file not found, using application defaults\n")
		} else {
			fmt.Fprintf(os.Stderr, "JIG: error loading configuration from %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "JIG: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "JIG: Warning initializing logger: %v\n", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger.Info("JIG starting", "version", version, "commit", commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readTimeout, err := cfg.Server.GetReadTimeout()
	if err != nil {
		logger.Fatal("invalid server.read_timeout", "error", err)
	}
	writeTimeout, err := cfg.Server.GetWriteTimeout()
	if err != nil {
		logger.Fatal("invalid server.write_timeout", "error", err)
	}
	dialTimeout, err := cfg.Backend.GetDialTimeout()
	if err != nil {
		logger.Fatal("invalid backend.dial_timeout", "error", err)
	}

	backendOpts := imapbackend.Options{
		Port:        cfg.Backend.Port,
		DialTimeout: dialTimeout,
	}
	connect := func(ctx context.Context, creds server.Credentials) (server.BackendSession, error) {
		return imapbackend.Connect(ctx, cfg.Backend.Host, creds.Username, creds.Password, backendOpts)
	}

	cache := server.NewSessionCache(connect)
	defer cache.Close()

	options := jmapapi.ServerOptions{
		Name:           cfg.Server.Name,
		Addr:           cfg.Server.Addr,
		SessionSecret:  cfg.Server.SessionSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthLimiter:    cfg.AuthLimiter,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		TLS:            cfg.Server.TLS,
		TLSCertFile:    cfg.Server.TLSCertFile,
		TLSKeyFile:     cfg.Server.TLSKeyFile,
	}

	if cfg.Server.TLS && cfg.ACME.Enabled {
		tlsMgr, err := tlsmanager.New(cfg.ACME)
		if err != nil {
			logger.Fatal("failed to initialize TLS manager", "error", err)
		}
		options.TLSConfig = tlsMgr.GetTLSConfig()
	}

	errChan := make(chan error, 1)
	go jmapapi.Start(ctx, cache, options, errChan)

	if cfg.Metrics.Enabled {
		go startMetricsServer(ctx, cfg.Metrics, errChan)
	}

	select {
	case <-ctx.Done():
		logger.Info("JIG shutting down...")
		// Give the HTTP server a moment to drain before the cache tears
		// down the backend connections.
		time.Sleep(time.Second)
	case err := <-errChan:
		logger.Error("server operation failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func startMetricsServer(ctx context.Context, cfg config.MetricsConfig, errChan chan error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down metrics server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error shutting down metrics server", "error", err)
		}
	}()

	logger.Info("Metrics: Starting server", "addr", cfg.Addr)
	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errChan <- fmt.Errorf("metrics server failed: %w", err)
	}
}
