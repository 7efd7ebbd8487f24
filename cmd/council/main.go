package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/chacha20poly1305"

	cfnats "github.com/llm-council/council/internal/adapter/nats"

	_ "github.com/llm-council/council/internal/adapter/provider/anthropic"
	_ "github.com/llm-council/council/internal/adapter/provider/gemini"
	_ "github.com/llm-council/council/internal/adapter/provider/openai"

	cchttp "github.com/llm-council/council/internal/adapter/http"
	"github.com/llm-council/council/internal/adapter/otel"
	"github.com/llm-council/council/internal/adapter/postgres"
	"github.com/llm-council/council/internal/adapter/ristretto"
	"github.com/llm-council/council/internal/adapter/ws"
	"github.com/llm-council/council/internal/artifact"
	"github.com/llm-council/council/internal/config"
	"github.com/llm-council/council/internal/council"
	"github.com/llm-council/council/internal/logger"
	"github.com/llm-council/council/internal/middleware"
	"github.com/llm-council/council/internal/orchestrator"
	"github.com/llm-council/council/internal/provider"
	"github.com/llm-council/council/internal/role"
	"github.com/llm-council/council/internal/secrets"
)

func main() {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "flags:", err)
		os.Exit(1)
	}

	if err := run(flags); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(flags config.CLIFlags) error {
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, cfgPath)

	log, closeLogger := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer closeLogger.Close()

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"providers_enabled", cfg.Providers.Enabled,
		"role_config_dir", cfg.Council.RoleConfigDir,
	)

	ctx := context.Background()

	// --- Tracing & metrics ---

	shutdownTracer := otel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(context.Background()) }()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	queue, err := cfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	idempotencyKV, err := queue.KV(ctx, "council-idempotency")
	if err != nil {
		return fmt.Errorf("idempotency kv: %w", err)
	}

	// --- Secrets ---

	vault, err := buildVault(cfg.Secrets)
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	// --- Providers ---

	providers, err := buildProviders(cfg.Providers, vault)
	if err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	log.Info("providers ready", "available", provider.Available(), "enabled", cfg.Providers.Enabled)

	// --- Roles ---

	promptCache, err := ristretto.New(32 << 20) // 32 MiB of composed system prompts
	if err != nil {
		return fmt.Errorf("prompt cache: %w", err)
	}
	defer promptCache.Close()

	roles := role.NewRegistry(cfg.Council.RoleConfigDir, promptCache)
	if err := roles.Load(); err != nil {
		return fmt.Errorf("roles: %w", err)
	}

	// --- Artifact store ---

	store := artifact.NewStore(pool)
	if swept, err := store.SweepStaleRuns(ctx, cfg.ArtifactStore.StaleRunAfter); err != nil {
		log.Warn("stale run sweep failed", "error", err)
	} else if swept > 0 {
		log.Info("stale runs marked timed_out", "count", swept)
	}
	summarizer := artifact.NewSummarizer(store, cfg.ArtifactStore.SummarizeThreshold)

	// --- Real-time broadcast ---

	hub := ws.NewHub()

	// --- Orchestrator + facade ---

	orch := orchestrator.New(cfg.Orchestrator, providers, roles, cfg.Council.SchemaDir, store, summarizer, queue, hub, log)
	orch.SetMetrics(metrics)
	svc := council.New(providers, roles, orch)

	// --- HTTP ---

	rateLimiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := rateLimiter.StartCleanup(5*time.Minute, 30*time.Minute)
	defer stopCleanup()

	handlers := &cchttp.Handlers{Council: svc}

	r := chi.NewRouter()
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(cchttp.SecurityHeaders)
	r.Use(cchttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cchttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Orchestrator.GlobalTimeout + 30*time.Second))
	r.Use(middleware.RequestID)
	r.Use(rateLimiter.Handler)
	r.Use(middleware.Idempotency(idempotencyKV))

	r.Get("/ws", hub.HandleWS)
	cchttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Orchestrator.GlobalTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- Run ---

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := holder.Reload(); err != nil {
				log.Warn("config reload failed, keeping previous config", "error", err)
				continue
			}
			log.Info("config reloaded")
		}
	}()

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// buildVault constructs the secret vault per cfg.Mode: "env" (default) reads
// provider API keys straight from the process environment; "encrypted_file"
// decrypts cfg.EncryptedFile with the key held in the cfg.KeyEnv variable,
// for operators who keep keys at rest instead of in plain environment vars.
func buildVault(cfg config.Secrets) (*secrets.Vault, error) {
	loader := secrets.EnvLoader("OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")

	if cfg.Mode == "encrypted_file" {
		keyHex := os.Getenv(cfg.KeyEnv)
		if keyHex == "" {
			return nil, fmt.Errorf("%s must hold the hex-encoded decryption key", cfg.KeyEnv)
		}
		keyBytes, err := hex.DecodeString(keyHex)
		if err != nil || len(keyBytes) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("%s must decode to %d hex-encoded bytes", cfg.KeyEnv, chacha20poly1305.KeySize)
		}
		var key [chacha20poly1305.KeySize]byte
		copy(key[:], keyBytes)
		loader = secrets.EncryptedFileLoader(cfg.EncryptedFile, key)
	}

	return secrets.NewVault(loader)
}

// buildProviders constructs an adapter for each enabled provider, folding
// any vault-held secret over the per-provider config map under "api_key"
// before handing it to the adapter's factory.
func buildProviders(cfg config.Providers, vault *secrets.Vault) (map[string]provider.Adapter, error) {
	secretKeys := map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
		"gemini":    "GEMINI_API_KEY",
	}

	adapters := make(map[string]provider.Adapter, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		adapterCfg := map[string]string{}
		for k, v := range cfg.Configs[name] {
			adapterCfg[k] = v
		}
		if adapterCfg["api_key"] == "" {
			if envKey, ok := secretKeys[name]; ok {
				if v := vault.Get(envKey); v != "" {
					adapterCfg["api_key"] = v
				}
			}
		}

		adapter, err := provider.New(name, adapterCfg)
		if err != nil {
			return nil, fmt.Errorf("build provider %q: %w", name, err)
		}
		adapters[name] = adapter
	}
	return adapters, nil
}
