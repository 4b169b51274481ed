package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DatabaseSchemePostgres is the postgres database scheme identifier
	DatabaseSchemePostgres = "postgres"
	// DatabaseSchemeSqlite is the sqlite database scheme identifier
	DatabaseSchemeSqlite = "sqlite"
	// DatabaseSchemeBadger is the embedded badger key/value scheme identifier
	DatabaseSchemeBadger = "badger"
)

const (
	PolicySingle = "single"
	PolicyTally  = "tally"

	MessageModeClient    = "client"
	MessageModeCanonical = "canonical"

	DefaultMessageTemplate = "vote:{artwork_id}"
	DefaultListenAddr      = ":3000"
)

type Config struct {
	ListenAddr  string `yaml:"listenAddr"  envconfig:"LISTEN_ADDR"`
	DatabaseURL string `yaml:"databaseUrl" envconfig:"DATABASE_URL"`
	DBDialect   string `yaml:"-"           ignored:"true"` // postgres, sqlite or badger
	DBDsn       string `yaml:"-"           ignored:"true"` // DSN (or directory for badger) passed to the driver
	Debug       bool   `yaml:"debug"       envconfig:"DEBUG"`

	VotePolicy      string `yaml:"votePolicy"      envconfig:"VOTE_POLICY"`
	MessageMode     string `yaml:"messageMode"     envconfig:"VOTE_MESSAGE_MODE"`
	MessageTemplate string `yaml:"messageTemplate" envconfig:"VOTE_MESSAGE_TEMPLATE"`

	TokenGateEnabled bool   `yaml:"tokenGateEnabled" envconfig:"TOKEN_GATE_ENABLED"`
	TokenRPCURL      string `yaml:"tokenRpcUrl"      envconfig:"TOKEN_RPC_URL"`
	TokenMint        string `yaml:"tokenMint"        envconfig:"TOKEN_MINT"`
	TokenMinAmount   uint64 `yaml:"tokenMinAmount"   envconfig:"TOKEN_MIN_AMOUNT"`
}

func defaults() Config {
	return Config{
		ListenAddr:      DefaultListenAddr,
		DatabaseURL:     "sqlite://artvote.sqlite",
		VotePolicy:      PolicySingle,
		MessageMode:     MessageModeClient,
		MessageTemplate: DefaultMessageTemplate,
		TokenMinAmount:  1,
	}
}

// parseDatabaseURL interprets DATABASE_URL and returns (dialect, dsn).
// Supported schemes: postgres, postgresql, sqlite, badger.
func parseDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", err
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case DatabaseSchemePostgres, "postgresql":
		// GORM postgres driver accepts URL DSN as-is
		return DatabaseSchemePostgres, databaseURL, nil
	case DatabaseSchemeSqlite, DatabaseSchemeBadger:
		// sqlite://relative/path.db, sqlite:///abs/path.db, badger:///var/lib/artvote
		path := u.Host + u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return "", "", fmt.Errorf("%s DATABASE_URL is missing a path", scheme)
		}
		return scheme, path, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %s", u.Scheme)
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE and finally the environment.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("process environment: %w", err)
	}

	dialect, dsn, err := parseDatabaseURL(strings.TrimSpace(cfg.DatabaseURL))
	if err != nil {
		return cfg, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	cfg.DBDialect = dialect
	cfg.DBDsn = dsn

	cfg.VotePolicy = strings.ToLower(strings.TrimSpace(cfg.VotePolicy))
	cfg.MessageMode = strings.ToLower(strings.TrimSpace(cfg.MessageMode))

	return cfg, cfg.Validate()
}

// Validate checks option values that cannot be expressed as struct tags.
func (c Config) Validate() error {
	var errs []error
	switch c.VotePolicy {
	case PolicySingle, PolicyTally:
	default:
		errs = append(errs, fmt.Errorf("unknown VOTE_POLICY %q", c.VotePolicy))
	}
	switch c.MessageMode {
	case MessageModeClient:
	case MessageModeCanonical:
		if !strings.Contains(c.MessageTemplate, "{artwork_id}") {
			errs = append(errs, errors.New("VOTE_MESSAGE_TEMPLATE must contain {artwork_id}"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VOTE_MESSAGE_MODE %q", c.MessageMode))
	}
	if c.TokenGateEnabled {
		if c.TokenRPCURL == "" {
			errs = append(errs, errors.New("TOKEN_RPC_URL is required when TOKEN_GATE_ENABLED"))
		}
		if c.TokenMint == "" {
			errs = append(errs, errors.New("TOKEN_MINT is required when TOKEN_GATE_ENABLED"))
		}
	}
	return errors.Join(errs...)
}

// DebugString returns a human-friendly configuration string with masked secrets.
func (c Config) DebugString() string {
	return fmt.Sprintf(
		"listen=%s db=%s dsn=%s policy=%s message_mode=%s token_gate=%t token_rpc=%s",
		c.ListenAddr,
		c.DBDialect,
		maskDSN(c.DBDialect, c.DBDsn),
		c.VotePolicy,
		c.MessageMode,
		c.TokenGateEnabled,
		maskURL(c.TokenRPCURL),
	)
}

func maskDSN(dialect, dsn string) string {
	switch strings.ToLower(dialect) {
	case DatabaseSchemePostgres:
		if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
			if u.User != nil {
				username := u.User.Username()
				u.User = url.User(username)
			}
			return u.String()
		}
		// Fallback for DSN as key-value list
		parts := strings.Fields(dsn)
		for i, p := range parts {
			lower := strings.ToLower(p)
			if strings.HasPrefix(lower, "password=") {
				parts[i] = "password=***"
			}
		}
		return strings.Join(parts, " ")
	default:
		return dsn
	}
}

// maskURL hides RPC API keys that providers embed in the query string.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || raw == "" {
		return raw
	}
	if u.RawQuery != "" {
		u.RawQuery = "***"
	}
	u.User = nil
	return u.String()
}
