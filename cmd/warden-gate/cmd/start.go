package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	gatehttp "github.com/warden-gate/wardengate/internal/adapter/inbound/http"
	"github.com/warden-gate/wardengate/internal/adapter/outbound/llm"
	"github.com/warden-gate/wardengate/internal/adapter/outbound/sqlite"
	"github.com/warden-gate/wardengate/internal/config"
	"github.com/warden-gate/wardengate/internal/domain/audit"
	"github.com/warden-gate/wardengate/internal/domain/auth"
	"github.com/warden-gate/wardengate/internal/domain/hmacsig"
	"github.com/warden-gate/wardengate/internal/domain/provider"
	"github.com/warden-gate/wardengate/internal/domain/ratelimit"
	"github.com/warden-gate/wardengate/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway server",
	Long: `Start the Warden Gate server.

The server listens for chat and admin requests, enforcing the full
admission pipeline on every route.

Examples:
  # Start with config file settings
  warden-gate start

  # Start with a specific config file
  warden-gate --config /path/to/config.yaml start`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Server.LogLevel)
	if used := config.ConfigFileUsed(); used != "" {
		logger.Info("loaded configuration", "file", used)
	}

	// Signal context for graceful shutdown. stop() restores default
	// handling so a second Ctrl+C is an immediate exit.
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	store, err := sqlite.Open(sqlite.Config{
		Path:          cfg.Database.Path,
		BusyTimeout:   config.Duration(cfg.Database.BusyTimeout, 5*time.Second),
		RetentionDays: cfg.Database.AuditRetentionDays,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	hasher, err := auth.NewSecretHasher(cfg.Auth.HashScheme)
	if err != nil {
		return fmt.Errorf("failed to initialize hasher: %w", err)
	}

	jwtKeys := make([]auth.JWTKeyConfig, 0, len(cfg.Auth.JWT.Keys))
	for _, k := range cfg.Auth.JWT.Keys {
		jwtKeys = append(jwtKeys, auth.JWTKeyConfig{KID: k.KID, Material: k.Material})
	}
	verifier, err := auth.NewJWTVerifier(jwtKeys, cfg.Auth.JWT.Issuer, cfg.Auth.JWT.Audience)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT verifier: %w", err)
	}

	cached := auth.NewCachedCredentialStore(store)
	resolver := auth.NewIdentityResolver(cached, hasher, verifier, cfg.Auth.StaticAPIKey, logger)
	recorder := audit.NewRecorder(store, logger)

	var guard *hmacsig.Guard
	if cfg.HMAC.Required {
		guard = hmacsig.NewGuard(config.Duration(cfg.HMAC.Window, hmacsig.DefaultWindow))
		logger.Info("request signing required", "window", cfg.HMAC.Window)
	}

	metrics := gatehttp.NewMetrics()

	limiter := ratelimit.NewLimiter(
		ratelimit.BucketConfig{Capacity: cfg.RateLimit.Capacity, RefillRate: cfg.RateLimit.RefillRate},
		ratelimit.WithTenantStore(store),
		ratelimit.WithBlockHook(metrics.RateLimitBlocks.Inc),
		ratelimit.WithLogger(logger),
	)

	chain := buildProviderChain(cfg, metrics, logger)

	security := service.NewSecurityService(resolver, guard, limiter, recorder, logger)
	chat := service.NewChatService(noopRetriever(), chain, recorder, logger)
	keys := service.NewKeyAdminService(cached, hasher, recorder, logger)

	transport := gatehttp.NewTransport(security, chat, keys,
		gatehttp.WithAddr(cfg.Server.HTTPAddr),
		gatehttp.WithTenantHeader(cfg.Server.TenantHeader),
		gatehttp.WithShutdownTimeout(config.Duration(cfg.Server.ShutdownTimeout, 10*time.Second)),
		gatehttp.WithMetrics(metrics),
		gatehttp.WithLogger(logger),
		gatehttp.WithSelfCheck("security_tables", func(ctx context.Context) bool {
			return store.SelfTest(ctx) == nil
		}),
	)

	if err := writePIDFile(cfg.Server.PIDFile); err != nil {
		logger.Warn("failed to write pid file", "path", cfg.Server.PIDFile, "error", err)
	} else {
		defer os.Remove(cfg.Server.PIDFile)
	}

	return transport.Start(ctx)
}

// buildProviderChain orders the chain [primary, secondary] and wires
// the breaker and attempt hooks into the metrics counters.
func buildProviderChain(cfg *config.Config, metrics *gatehttp.Metrics, logger *slog.Logger) *provider.Chain {
	timeout := config.Duration(cfg.Providers.Timeout, 20*time.Second)

	openRouter := llm.NewOpenRouter(llm.OpenRouterConfig{
		BaseURL: cfg.Providers.OpenRouter.BaseURL,
		APIKey:  cfg.Providers.OpenRouter.APIKey,
		Model:   cfg.Providers.OpenRouter.Model,
		Referer: cfg.Providers.OpenRouter.Referer,
		Title:   cfg.Providers.OpenRouter.Title,
		Timeout: timeout,
	})
	local := llm.NewLocalInference(llm.LocalInferenceConfig{
		Endpoint: cfg.Providers.LocalInference.Endpoint,
		APIKey:   cfg.Providers.LocalInference.APIKey,
		Timeout:  timeout,
	})

	providers := []provider.Provider{openRouter, local}
	if cfg.Providers.Primary == provider.NameLocalInference {
		providers = []provider.Provider{local, openRouter}
	}

	breakers := make(map[string]*provider.Breaker, len(providers))
	for _, p := range providers {
		name := p.Name()
		breakers[name] = provider.NewBreaker(name,
			provider.WithOpenHook(func() {
				metrics.CircuitOpens.WithLabelValues(name).Inc()
			}),
		)
	}

	return provider.NewChain(providers, breakers,
		provider.WithRetries(cfg.Providers.Retries),
		provider.WithChainLogger(logger),
		provider.WithFailureHook(func(name string) {
			metrics.ProviderFailures.WithLabelValues(name).Inc()
		}),
		provider.WithSuccessHook(func(latency time.Duration) {
			metrics.LLMLatency.Observe(latency.Seconds())
		}),
	)
}

// noopRetriever answers with no candidates. Retrieval is an external
// collaborator; deployments plug a real implementation in here.
func noopRetriever() service.Retriever {
	return service.RetrieverFunc(func(ctx context.Context, query string, limit int) ([]service.Candidate, error) {
		return nil, nil
	})
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
