package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/valarpirai/dns-resolver/internal/dns/common/clock"
	"github.com/valarpirai/dns-resolver/internal/dns/common/log"
	"github.com/valarpirai/dns-resolver/internal/dns/config"
	"github.com/valarpirai/dns-resolver/internal/dns/gateways/nsquery"
	"github.com/valarpirai/dns-resolver/internal/dns/gateways/transport"
	"github.com/valarpirai/dns-resolver/internal/dns/gateways/wire"
	"github.com/valarpirai/dns-resolver/internal/dns/repos/rescache"
	"github.com/valarpirai/dns-resolver/internal/dns/services/resolver"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "recursive-dnsd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the DNS server.
type Application struct {
	config    *config.AppConfig
	transport *transport.UDPTransport
	resolver  *resolver.Resolver
	cache     *rescache.ResponseCache
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"app":          appName,
		"version":      version,
		"env":          cfg.Env,
		"log_level":    cfg.LogLevel,
		"port":         cfg.Server.Port,
		"workers":      cfg.Server.Workers,
		"root_servers": len(cfg.Resolver.Root.Servers),
		"timeout_ms":   cfg.Resolver.TimeoutMs,
		"max_depth":    cfg.Resolver.MaxDepth,
	}, "Starting recursive DNS resolver")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(nil, "Recursive DNS resolver stopped gracefully")
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()
	clk := clock.RealClock{}
	codec := wire.NewUDPCodec(logger)

	cache, err := rescache.New(rescache.Options{
		MaxEntries:     cfg.Cache.MaxEntries,
		MaxMemoryBytes: cfg.Cache.MaxMemoryBytes,
		MinTTL:         cfg.Cache.MinTTL(),
		Clock:          clk,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create response cache: %w", err)
	}
	log.Info(map[string]any{
		"max_entries": cfg.Cache.MaxEntries,
		"max_memory":  cfg.Cache.MaxMemoryBytes,
		"min_ttl":     cfg.Cache.MinTTLSeconds,
	}, "DNS response cache configured")

	client, err := nsquery.NewClient(nsquery.Options{
		Timeout: cfg.Resolver.Timeout(),
		Codec:   codec,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nameserver client: %w", err)
	}

	resolverService, err := resolver.NewResolver(resolver.Options{
		RootServers: cfg.Resolver.Root.Servers,
		MaxDepth:    cfg.Resolver.MaxDepth,
		Timeout:     cfg.Resolver.Timeout(),
		Client:      client,
		Cache:       cache,
		Codec:       codec,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	addr := net.JoinHostPort(cfg.Server.Bind.Address, strconv.Itoa(cfg.Server.Port))
	udpTransport := transport.NewUDPTransport(addr, cfg.Server.Workers, logger)

	return &Application{
		config:    cfg,
		transport: udpTransport,
		resolver:  resolverService,
		cache:     cache,
	}, nil
}

// Run starts the DNS server and blocks until the context is cancelled.
func (app *Application) Run(ctx context.Context) error {
	if err := app.transport.Start(ctx, app.resolver); err != nil {
		return fmt.Errorf("failed to start UDP transport: %w", err)
	}
	app.cache.LogStatsEvery(ctx, app.config.Cache.StatsInterval())

	log.Info(map[string]any{
		"address": app.transport.Address(),
	}, "DNS server started")

	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := app.transport.Stop()
		// cancelled context has already stopped the stats timer
		app.cache.Clear()
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
		}
		log.Info(nil, "Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
