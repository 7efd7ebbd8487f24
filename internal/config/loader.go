package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "council.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "COUNCIL_PORT")
	setString(&cfg.Server.CORSOrigin, "COUNCIL_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "COUNCIL_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "COUNCIL_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "COUNCIL_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "COUNCIL_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "COUNCIL_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "COUNCIL_LOG_LEVEL")
	setString(&cfg.Logging.Service, "COUNCIL_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "COUNCIL_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "COUNCIL_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "COUNCIL_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "COUNCIL_RATE_RPS")
	setInt(&cfg.Rate.Burst, "COUNCIL_RATE_BURST")

	// Council
	setString(&cfg.Council.RoleConfigDir, "COUNCIL_COUNCIL_ROLE_DIR")
	setString(&cfg.Council.SchemaDir, "COUNCIL_COUNCIL_SCHEMA_DIR")
	setString(&cfg.Council.DefaultMode, "COUNCIL_COUNCIL_DEFAULT_MODE")

	// Artifact store
	setInt(&cfg.ArtifactStore.SummarizeThreshold, "COUNCIL_ARTIFACT_SUMMARIZE_THRESHOLD")
	setInt(&cfg.ArtifactStore.DefaultBudgetTokens, "COUNCIL_ARTIFACT_DEFAULT_BUDGET_TOKENS")
	setDuration(&cfg.ArtifactStore.StaleRunAfter, "COUNCIL_ARTIFACT_STALE_RUN_AFTER")
	setBool(&cfg.ArtifactStore.PersistFullOnSummarize, "COUNCIL_ARTIFACT_PERSIST_FULL")

	// Orchestrator
	setInt(&cfg.Orchestrator.MaxRetries, "COUNCIL_ORCH_MAX_RETRIES")
	setInt(&cfg.Orchestrator.MinProvidersRequired, "COUNCIL_ORCH_MIN_PROVIDERS")
	setBool(&cfg.Orchestrator.AbortOnAllFailures, "COUNCIL_ORCH_ABORT_ON_ALL_FAILURES")
	setDuration(&cfg.Orchestrator.ProviderTimeout, "COUNCIL_ORCH_PROVIDER_TIMEOUT")
	setDuration(&cfg.Orchestrator.MaxProviderTimeout, "COUNCIL_ORCH_MAX_PROVIDER_TIMEOUT")
	setDuration(&cfg.Orchestrator.GlobalTimeout, "COUNCIL_ORCH_GLOBAL_TIMEOUT")
	setInt(&cfg.Orchestrator.CritiqueProviders, "COUNCIL_ORCH_CRITIQUE_PROVIDERS")
	setString(&cfg.Orchestrator.DraftSummaryTier, "COUNCIL_ORCH_DRAFT_SUMMARY_TIER")
	setInt(&cfg.Orchestrator.MaxDraftTokens, "COUNCIL_ORCH_MAX_DRAFT_TOKENS")
	setInt(&cfg.Orchestrator.MaxCritiqueTokens, "COUNCIL_ORCH_MAX_CRITIQUE_TOKENS")
	setInt(&cfg.Orchestrator.MaxSynthesisTokens, "COUNCIL_ORCH_MAX_SYNTHESIS_TOKENS")
	setFloat64(&cfg.Orchestrator.DraftTemperature, "COUNCIL_ORCH_DRAFT_TEMPERATURE")
	setFloat64(&cfg.Orchestrator.CritiqueTemperature, "COUNCIL_ORCH_CRITIQUE_TEMPERATURE")
	setFloat64(&cfg.Orchestrator.SynthesisTemperature, "COUNCIL_ORCH_SYNTHESIS_TEMPERATURE")
	setBool(&cfg.Orchestrator.EnableArtifacts, "COUNCIL_ORCH_ENABLE_ARTIFACTS")
	setBool(&cfg.Orchestrator.EnableHealthCheck, "COUNCIL_ORCH_ENABLE_HEALTH_CHECK")
	setBool(&cfg.Orchestrator.EnableGracefulDegradation, "COUNCIL_ORCH_ENABLE_GRACEFUL_DEGRADATION")
	setBool(&cfg.Orchestrator.EnableSchemaValidation, "COUNCIL_ORCH_ENABLE_SCHEMA_VALIDATION")
	setBool(&cfg.Orchestrator.StrictProviders, "COUNCIL_ORCH_STRICT_PROVIDERS")

	// Secrets
	setString(&cfg.Secrets.Mode, "COUNCIL_SECRETS_MODE")
	setString(&cfg.Secrets.EncryptedFile, "COUNCIL_SECRETS_FILE")
	setString(&cfg.Secrets.KeyEnv, "COUNCIL_SECRETS_KEY_ENV")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Orchestrator.MinProvidersRequired < 1 {
		return errors.New("orchestrator.min_providers_required must be >= 1")
	}
	if cfg.Orchestrator.MaxRetries < 0 {
		return errors.New("orchestrator.max_retries must be >= 0")
	}
	if cfg.Orchestrator.ProviderTimeout > cfg.Orchestrator.MaxProviderTimeout {
		return errors.New("orchestrator.provider_timeout must not exceed orchestrator.max_provider_timeout")
	}
	if cfg.Secrets.Mode != "env" && cfg.Secrets.Mode != "encrypted_file" {
		return errors.New("secrets.mode must be \"env\" or \"encrypted_file\"")
	}
	if cfg.Secrets.Mode == "encrypted_file" && cfg.Secrets.EncryptedFile == "" {
		return errors.New("secrets.encrypted_file is required when secrets.mode is \"encrypted_file\"")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
