package config

import (
	"flag"
)

// CLIFlags holds command-line overrides. A nil field was not set on the
// command line and leaves the underlying config value untouched.
type CLIFlags struct {
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	ConfigPath *string
}

// ParseFlags parses args (typically os.Args[1:]) into CLIFlags.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("council", flag.ContinueOnError)

	var flags CLIFlags
	var port, logLevel, dsn, natsURL, configPath string
	var portSet, logLevelSet, dsnSet, natsURLSet, configPathSet bool

	fs.Func("port", "HTTP server port", func(v string) error { port, portSet = v, true; return nil })
	fs.Func("p", "HTTP server port (shorthand)", func(v string) error { port, portSet = v, true; return nil })
	fs.Func("log-level", "Log level", func(v string) error { logLevel, logLevelSet = v, true; return nil })
	fs.Func("dsn", "Postgres DSN", func(v string) error { dsn, dsnSet = v, true; return nil })
	fs.Func("nats-url", "NATS URL", func(v string) error { natsURL, natsURLSet = v, true; return nil })
	fs.Func("config", "Path to YAML config file", func(v string) error { configPath, configPathSet = v, true; return nil })
	fs.Func("c", "Path to YAML config file (shorthand)", func(v string) error { configPath, configPathSet = v, true; return nil })

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	if portSet {
		flags.Port = &port
	}
	if logLevelSet {
		flags.LogLevel = &logLevel
	}
	if dsnSet {
		flags.DSN = &dsn
	}
	if natsURLSet {
		flags.NatsURL = &natsURL
	}
	if configPathSet {
		flags.ConfigPath = &configPath
	}

	return flags, nil
}

// applyCLI overlays non-nil CLI flag values onto cfg, taking precedence
// over defaults, YAML, and environment.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}

// LoadWithCLI resolves the full precedence chain (defaults < YAML < ENV <
// CLI) and returns the resolved config path alongside the config.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		return nil, "", err
	}

	applyCLI(cfg, flags)

	return cfg, path, nil
}
