package cmd

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/cache"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/config"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/console"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/telemetry"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/validation"
)

// serviceName identifies this process in traces.
const serviceName = "consolectl"

// session is the state one Execute call builds lazily and tears down on exit.
type session struct {
	cfg      config.Config
	console  *console.Console
	registry *prometheus.Registry
	shutdown func(context.Context) error
}

// current is reset by Execute; commands reach it through getConsole.
var current *session

// extraConsoleOptions lets tests swap the HTTP client, clock or sleep.
var extraConsoleOptions []console.Option

// loadConfig reads CONSOLE_* variables and the dotenv file, then applies
// explicitly set flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{EnvFile: flags.EnvFile})
	if err != nil {
		return config.Config{}, err
	}

	fs := cmd.Flags()
	if fs.Changed("base-url") {
		cfg.BaseURL = validation.NormalizeBaseURL(flags.BaseURL)
	}
	if fs.Changed("tenant") {
		cfg.Tenant = strings.TrimSpace(flags.Tenant)
	}
	if fs.Changed("timeout") {
		cfg.Timeout = flags.Timeout
	}
	if fs.Changed("max-retries") {
		cfg.MaxRetries = flags.MaxRetries
	}
	if fs.Changed("retry-delay") {
		cfg.RetryDelay = flags.RetryDelay
	}
	if flags.NoCache {
		cfg.NoCache = true
	}
	if flags.AllowPrivate {
		cfg.AllowPrivate = true
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if cfg.AllowPrivate && !flags.Quiet {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Warning: allowing private/localhost URLs (use only with trusted targets).")
	}

	// Remembered secrets fill in whatever the environment left unset.
	if cfg.AdminKey == "" {
		token, err := config.LoadCredential(cfg.BaseURL)
		if err != nil {
			slog.Warn("could not read admin credential from keychain", "error", err)
		}
		cfg.AdminKey = token
	}
	if cfg.Tenant == "" {
		id, err := config.LoadTenant(cfg.BaseURL)
		if err != nil {
			slog.Warn("could not read remembered tenant from keychain", "error", err)
		}
		cfg.Tenant = id
	}
	return cfg, nil
}

// cacheScope separates cached responses per backend and tenant, so one
// run never serves another tenant's answers from disk or Redis.
func cacheScope(cfg config.Config) string {
	scope := cfg.BaseURL
	if cfg.Tenant != "" {
		scope += "|tenant=" + cfg.Tenant
	}
	return scope
}

// cacheStore picks the response cache for a CLI run: Redis when configured,
// otherwise files under the user cache dir so entries survive between runs.
// A nil store means in-process memory.
func cacheStore(cfg config.Config) (cache.Store, error) {
	if cfg.NoCache {
		return nil, nil
	}
	if cfg.RedisURL != "" {
		sum := sha1.Sum([]byte(cacheScope(cfg)))
		prefix := cache.DefaultRedisPrefix + hex.EncodeToString(sum[:6]) + ":"
		store, err := cache.NewRedisStoreFromURL(cfg.RedisURL, prefix)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		return store, nil
	}
	dir := cfg.CacheDir
	if dir == "" {
		var err error
		if dir, err = cache.DefaultDir(); err != nil {
			slog.Debug("no user cache dir, caching in memory", "error", err)
			return nil, nil
		}
	}
	return cache.NewFileStore(dir, cacheScope(cfg)), nil
}

// getConsole returns the session console, building it on first use.
func getConsole(cmd *cobra.Command) (*console.Console, error) {
	if current != nil {
		return current.console, nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, shutdown: func(context.Context) error { return nil }}

	// Failures reach the operator through the notifier; the event log is
	// only worth its noise with --debug.
	sink := telemetry.Nop
	if flags.Debug {
		sink = telemetry.NewLogSink(nil)
	}
	if flags.MetricsFile != "" {
		s.registry = prometheus.NewRegistry()
		sink = telemetry.Multi(sink, telemetry.NewMetrics(s.registry))
	}

	shutdown, err := telemetry.SetupTracing(cmdContext(cmd), serviceName, cfg.OTelEndpoint)
	if err != nil {
		slog.Warn("tracing disabled", "endpoint", cfg.OTelEndpoint, "error", err)
	}
	s.shutdown = shutdown

	opts := []console.Option{
		console.WithSink(sink),
		console.WithNotifier(newTerminalNotifier(cmd.ErrOrStderr(), flags.Quiet)),
	}
	store, err := cacheStore(cfg)
	if err != nil {
		_ = s.shutdown(cmdContext(cmd))
		return nil, err
	}
	if store != nil {
		opts = append(opts, console.WithCacheStore(store))
	}
	opts = append(opts, extraConsoleOptions...)

	c, err := console.New(cfg, opts...)
	if err != nil {
		_ = s.shutdown(cmdContext(cmd))
		return nil, err
	}

	// A rejected credential is cleared in memory by the gate; forget it in
	// the keychain too so the next run does not send it again.
	c.Credentials().OnChange(func(token string) {
		if token != "" {
			return
		}
		if err := config.DeleteCredential(cfg.BaseURL); err != nil {
			slog.Warn("could not remove admin credential from keychain", "error", err)
		}
	})

	s.console = c
	current = s
	return c, nil
}

// closeSession flushes traces, writes metrics and releases the cache store.
func closeSession(ctx context.Context) {
	s := current
	current = nil
	if s == nil {
		return
	}
	if err := s.shutdown(ctx); err != nil {
		slog.Warn("failed to flush traces", "error", err)
	}
	if s.registry != nil && flags.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(flags.MetricsFile, s.registry); err != nil {
			slog.Warn("failed to write metrics", "path", flags.MetricsFile, "error", err)
		}
	}
	if err := s.console.Close(); err != nil {
		slog.Warn("failed to close cache store", "error", err)
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
