// Package daemon wires configuration, storage, the session registry, and the
// gateway into a single long-running process.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/harun/agentgate/internal/config"
	"github.com/harun/agentgate/internal/logger"
	"github.com/harun/agentgate/internal/metrics"
	"github.com/harun/agentgate/internal/observability"
	"github.com/harun/agentgate/internal/store"
	"github.com/harun/agentgate/pkg/agent"
	"github.com/harun/agentgate/pkg/gateway"
	"github.com/harun/agentgate/pkg/query"
	"github.com/harun/agentgate/pkg/session"
	"github.com/harun/agentgate/pkg/toolset"
)

// Daemon is the top-level process object.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	toolsets *toolset.Registry
	watcher  *toolset.ManifestWatcher
	registry *session.Registry
	reaper   *session.Reaper
	executor *query.Executor
	counter  *metrics.Counter
	audit    *store.AuditStore
	pruner   *store.Pruner

	// Services
	gatewayServer *gateway.Server
	metricsServer *http.Server

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
	}

	if err := d.initializeCoreModules(); err != nil {
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.closeCoreModules()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return d, nil
}

// initializeCoreModules initializes all core modules in dependency order.
func (d *Daemon) initializeCoreModules() error {
	log := d.logger.GetZerolog()

	audit, err := store.Open(store.Config{
		Path:          d.config.Store.Path,
		RetentionDays: d.config.Store.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	d.audit = audit
	log.Info().Str("path", d.config.Store.Path).Msg("Audit store opened")

	pruner, err := store.NewPruner(audit, d.config.Store.PruneSchedule, d.config.Store.RetentionDays)
	if err != nil {
		return err
	}
	d.pruner = pruner

	d.toolsets = toolset.NewRegistry()
	if d.config.Toolsets.ManifestPath != "" {
		if err := d.toolsets.Reload(d.config.Toolsets.ManifestPath); err != nil {
			log.Warn().Err(err).
				Str("path", d.config.Toolsets.ManifestPath).
				Msg("Failed to load tool set manifest, using built-ins")
		}
		if d.config.Toolsets.Watch {
			watcher, err := toolset.NewManifestWatcher(d.toolsets, d.config.Toolsets.ManifestPath)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to create manifest watcher")
			} else {
				d.watcher = watcher
			}
		}
	}
	log.Info().Strs("tool_sets", d.toolsets.Supported()).Msg("Tool set registry initialized")

	factory, err := d.buildAgentFactory()
	if err != nil {
		return err
	}

	d.registry = session.NewRegistry(session.Options{
		TTL:                d.config.Session.TTL(),
		MaxSessionsPerUser: d.config.Session.MaxSessionsPerUser,
	}, d.toolsets, factory, audit)

	d.reaper = session.NewReaper(d.registry, d.config.Session.CleanupInterval())

	d.counter = metrics.NewCounter()
	d.executor = query.NewExecutor(d.counter, audit, d.config.Session.QueryTimeout())

	return nil
}

// buildAgentFactory resolves the highest-priority auth profile and returns a
// factory that binds new engines to it.
func (d *Daemon) buildAgentFactory() (session.AgentFactory, error) {
	profiles := make([]agent.AuthProfile, 0, len(d.config.AI.Profiles))
	for _, p := range d.config.AI.Profiles {
		profiles = append(profiles, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			Priority: p.Priority,
		})
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("at least one AI profile is required")
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Priority > profiles[j].Priority
	})

	providerFactory := &agent.ProviderFactory{}
	provider, err := providerFactory.NewProvider(profiles[0])
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	zl := d.logger.GetZerolog()
	zl.Info().
		Str("provider", profiles[0].Provider).
		Str("profile", profiles[0].ID).
		Msg("AI provider initialized")

	model := d.config.AI.Model
	toolsets := d.toolsets

	return func(toolSet string, cfg session.Config) (agent.Agent, error) {
		set, ok := toolsets.Get(toolSet)
		if !ok {
			return nil, fmt.Errorf("unknown tool set: %s", toolSet)
		}
		return agent.NewEngine(agent.EngineConfig{
			Provider:         provider,
			ToolSet:          set,
			Model:            model,
			MaxMessages:      cfg.MaxMessages,
			SummarizeRemoved: cfg.SummarizeRemoved,
		})
	}, nil
}

// initializeServices initializes the network-facing services.
func (d *Daemon) initializeServices() error {
	server, err := gateway.NewServer(gateway.Config{
		Host:         d.config.Gateway.Host,
		Port:         d.config.Gateway.Port,
		SharedSecret: d.config.Gateway.SharedSecret,
		QueryTimeout: d.config.Session.QueryTimeout(),
		Registry:     d.registry,
		Executor:     d.executor,
		Counter:      d.counter,
		Logger:       d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}
	d.gatewayServer = server

	if d.config.Gateway.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		d.metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", d.config.Gateway.Host, d.config.Gateway.MetricsPort),
			Handler: mux,
		}
	}

	return nil
}

// Start starts the daemon and all background services.
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	log := d.logger.GetZerolog()
	log.Info().Msg("Starting agentgate daemon")

	if err := d.reaper.Start(); err != nil {
		return fmt.Errorf("failed to start session reaper: %w", err)
	}
	log.Info().Msg("Session reaper started")

	d.pruner.Start()

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start manifest watcher")
		} else {
			log.Info().Msg("Manifest watcher started")
		}
	}

	if err := d.gatewayServer.Start(); err != nil {
		return fmt.Errorf("failed to start gateway server: %w", err)
	}
	log.Info().Msg("Gateway server started")

	if d.metricsServer != nil {
		go func() {
			if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server error")
			}
		}()
		log.Info().Int("port", d.config.Gateway.MetricsPort).Msg("Metrics server started")
	}

	log.Info().Msg("Daemon started successfully")
	return nil
}

// Stop stops the daemon gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	log := d.logger.GetZerolog()
	log.Info().Msg("Stopping daemon")

	if err := d.gatewayServer.Stop(); err != nil {
		log.Warn().Err(err).Msg("Gateway server shutdown error")
	}

	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown error")
		}
		cancel()
	}

	if d.watcher != nil {
		d.watcher.Stop()
	}

	if err := d.reaper.Stop(); err != nil {
		log.Warn().Err(err).Msg("Session reaper shutdown error")
	}

	d.pruner.Stop()
	d.closeCoreModules()

	log.Info().Msg("Daemon stopped")
	return nil
}

func (d *Daemon) closeCoreModules() {
	if d.audit != nil {
		if err := d.audit.Close(); err != nil {
			zl := d.logger.GetZerolog()
			zl.Warn().Err(err).Msg("Failed to close audit store")
		}
	}
}

// Wait blocks until SIGINT or SIGTERM is received.
func (d *Daemon) Wait() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zl := d.logger.GetZerolog()
	zl.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
}

// Status describes the daemon's runtime state.
type Status struct {
	Running        bool          `json:"running"`
	Uptime         time.Duration `json:"uptime"`
	ActiveSessions int           `json:"active_sessions"`
}

// Status returns the daemon's current status.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	running := d.running
	start := d.startTime
	d.mu.RUnlock()

	st := Status{Running: running}
	if running {
		st.Uptime = time.Since(start)
		st.ActiveSessions = d.registry.CountActive()
	}
	return st
}

// GetRegistry returns the session registry.
func (d *Daemon) GetRegistry() *session.Registry {
	return d.registry
}

// GetGatewayServer returns the gateway server.
func (d *Daemon) GetGatewayServer() *gateway.Server {
	return d.gatewayServer
}
