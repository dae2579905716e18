package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haukened/rr-proxy/internal/dns/common/clock"
	"github.com/haukened/rr-proxy/internal/dns/common/log"
	"github.com/haukened/rr-proxy/internal/dns/config"
	"github.com/haukened/rr-proxy/internal/dns/gateways/transport"
	"github.com/haukened/rr-proxy/internal/dns/gateways/upstream"
	"github.com/haukened/rr-proxy/internal/dns/hooks"
	"github.com/haukened/rr-proxy/internal/dns/hooks/blockhook"
	"github.com/haukened/rr-proxy/internal/dns/hooks/ttlhook"
	"github.com/haukened/rr-proxy/internal/dns/repos/rcache"
	"github.com/haukened/rr-proxy/internal/dns/services/proxy"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-proxyd"

	// Default timeouts
	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the DNS proxy
type Application struct {
	config    *config.AppConfig
	transport transport.ServerTransport
	proxy     *proxy.Proxy
	closers   []func() error
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.LogLevel,
		"port":       cfg.Port,
		"cache_size": cfg.CacheSize,
		"servers":    cfg.Servers,
	}, "Starting RR-Proxy server")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	// Start the proxy
	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(nil, "RR-Proxy server stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	// Create shared clock for consistent time across all components
	clk := &clock.RealClock{}

	// Initialize logger (already configured globally)
	logger := log.GetLogger()

	app := &Application{config: cfg}

	// Build the hook chain
	chain, err := buildHookChain(cfg, logger, app)
	if err != nil {
		return nil, fmt.Errorf("failed to build hook chain: %w", err)
	}

	// Create upstream response cache
	var cache proxy.Cache
	if cfg.DisableCache {
		log.Info(map[string]any{"disabled": true}, "DNS response caching disabled")
	} else {
		// Safely convert uint to int with bounds check
		cacheSize := cfg.CacheSize
		if cacheSize > uint(^uint(0)>>1) {
			return nil, fmt.Errorf("cache size too large: %d (max %d)", cacheSize, ^uint(0)>>1)
		}
		cache, err = rcache.New(int(cacheSize), clk)
		if err != nil {
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}
		log.Info(map[string]any{
			"type": "LRU",
			"size": cfg.CacheSize,
		}, "DNS response cache configured")
	}

	// Create upstream client
	upstreamClient, err := upstream.NewResolver(upstream.Options{
		Servers:  cfg.Servers,
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		Parallel: cfg.Parallel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	log.Info(map[string]any{
		"servers":  cfg.Servers,
		"timeout":  cfg.TimeoutSeconds,
		"parallel": cfg.Parallel,
	}, "Upstream DNS client configured")

	// Build service layer
	proxyService, err := proxy.New(proxy.Options{
		Logger:   logger,
		Chain:    chain,
		Upstream: upstreamClient,
		Cache:    cache,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy service: %w", err)
	}

	// Build transport layer
	addr := fmt.Sprintf(":%d", cfg.Port)
	app.transport, err = transport.NewTransport(transport.TransportUDP, addr, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	app.proxy = proxyService

	return app, nil
}

// buildHookChain registers the built-in hooks selected by configuration.
func buildHookChain(cfg *config.AppConfig, logger log.Logger, app *Application) (*hooks.Chain, error) {
	chain := hooks.NewChain()

	if cfg.BlocklistDB != "" {
		blocker, err := blockhook.New(blockhook.Options{
			StorePath: cfg.BlocklistDB,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open blocklist store: %w", err)
		}
		app.closers = append(app.closers, blocker.Close)

		if cfg.BlocklistFile != "" {
			rules, err := blockhook.ParseRulesFile(cfg.BlocklistFile, logger)
			if err != nil {
				return nil, fmt.Errorf("failed to parse blocklist file: %w", err)
			}
			if err := blocker.Load(rules); err != nil {
				return nil, fmt.Errorf("failed to load block rules: %w", err)
			}
		}

		if err := chain.Register(blocker); err != nil {
			return nil, err
		}
	}

	if cfg.TTLMin > 0 || cfg.TTLMax > 0 {
		clamp := ttlhook.New(ttlhook.Options{
			Min:    cfg.TTLMin,
			Max:    cfg.TTLMax,
			Logger: logger,
		})
		if err := chain.Register(clamp); err != nil {
			return nil, err
		}
	}

	log.Info(map[string]any{"hooks": chain.Len()}, "Hook chain configured")
	return chain, nil
}

// Run starts the proxy and blocks until context is cancelled
func (app *Application) Run(ctx context.Context) error {
	// Start UDP transport
	if err := app.transport.Start(ctx, app.proxy); err != nil {
		return fmt.Errorf("failed to start UDP transport: %w", err)
	}

	log.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": "UDP",
	}, "DNS proxy started")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	// Stop transport gracefully
	if err := app.transport.Stop(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
	}

	// Wait for shutdown completion or timeout
	done := make(chan struct{})
	go func() {
		for _, closer := range app.closers {
			if err := closer(); err != nil {
				log.Warn(map[string]any{"error": err}, "Error during cleanup")
			}
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info(nil, "Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
