// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the admin HTTP API listens on (e.g. :8081).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// QueueDir is the directory the privileged worker drains; one <action_id>.json per queued action.
	QueueDir string `mapstructure:"QUEUE_DIR"`
	// ResultsDir holds worker results, .meta.json side-cars, .completed and .notified markers.
	ResultsDir string `mapstructure:"RESULTS_DIR"`
	// StatusFile is the worker-published MFA status snapshot.
	StatusFile string `mapstructure:"STATUS_FILE"`
	// StorageBackend selects the queue/results store: "fs" (default) or "redis".
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	// RedisAddr is the Redis address used when StorageBackend is "redis".
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPrefix namespaces queue and results keys in Redis.
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`

	// LDAP directory (read-only source of identities and group memberships).
	LDAPURL          string `mapstructure:"LDAP_URL"`
	LDAPBindDN       string `mapstructure:"LDAP_BIND_DN"`
	LDAPBindPassword string `mapstructure:"LDAP_BIND_PASSWORD"`
	LDAPBaseDN       string `mapstructure:"LDAP_BASE_DN"`
	LDAPUserFilter   string `mapstructure:"LDAP_USER_FILTER"`
	LDAPUIDAttr      string `mapstructure:"LDAP_UID_ATTR"`
	LDAPMailAttr     string `mapstructure:"LDAP_MAIL_ATTR"`
	LDAPGroupAttr    string `mapstructure:"LDAP_GROUP_ATTR"`

	// AdminGroup is the directory group whose members can never be targeted by a queued action.
	AdminGroup string `mapstructure:"ADMIN_GROUP"`
	// MatchEmail enables UID+email orphan matching. Default is UID-only.
	MatchEmail bool `mapstructure:"MATCH_EMAIL"`
	// LegacySuccessKeyword accepts results without an explicit success flag when details mention success.
	// Deprecated: remove once every worker emits the explicit flag.
	LegacySuccessKeyword bool `mapstructure:"LEGACY_SUCCESS_KEYWORD"`

	// Notification channels. Empty disables the channel.
	SMTPAddr       string `mapstructure:"SMTP_ADDR"`
	SMTPFrom       string `mapstructure:"SMTP_FROM"`
	SMTPUsername   string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword   string `mapstructure:"SMTP_PASSWORD"`
	ChatWebhookURL string `mapstructure:"CHAT_WEBHOOK_URL"`
	// ChatWebhookToken is sent as a bearer token to the chat webhook, if set.
	ChatWebhookToken string `mapstructure:"CHAT_WEBHOOK_TOKEN"`

	// JWTPublicKey is the PEM-encoded public key or path to file used to verify admin bearer tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is optional; only needed by tooling that issues tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	JWTIssuer     string `mapstructure:"JWT_ISSUER"`
	JWTAudience   string `mapstructure:"JWT_AUDIENCE"`
	// JWTTTL is the lifetime of tokens minted by tooling (e.g. "8h").
	JWTTTL string `mapstructure:"JWT_TTL"`
	// CORSAllowedOrigins is a comma-separated origin allowlist for the operator UI; "*" allows any.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	// TrustedProxies is a comma-separated list of proxy IPs/CIDRs whose X-Forwarded-For is believed.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`
	// AuthDisabled skips bearer validation (local development only). Must not be true when Env is production.
	AuthDisabled bool `mapstructure:"AUTH_DISABLED"`

	// DatabaseURL is the Postgres DSN for the audit log; empty disables persistence.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Action events (optional). When Kafka brokers are set, action events go to Kafka; otherwise to OTel logs.
	KafkaBrokers     string `mapstructure:"KAFKA_BROKERS"`
	EventsKafkaTopic string `mapstructure:"EVENTS_KAFKA_TOPIC"`
	// Worker-only: Loki URL and consumer group for the event shipper.
	LokiURL      string `mapstructure:"LOKI_URL"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Convergence tuning for the operator client.
	SnapshotPollEvery string `mapstructure:"SNAPSHOT_POLL_INTERVAL"`
	ResultPollEvery   string `mapstructure:"RESULT_POLL_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("QUEUE_DIR", "/var/lib/mfa-orphans/queue")
	v.SetDefault("RESULTS_DIR", "/var/lib/mfa-orphans/results")
	v.SetDefault("STATUS_FILE", "/var/lib/mfa-orphans/status.json")
	v.SetDefault("STORAGE_BACKEND", "fs")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PREFIX", "mfa:")
	v.SetDefault("LDAP_URL", "")
	v.SetDefault("LDAP_BIND_DN", "")
	v.SetDefault("LDAP_BIND_PASSWORD", "")
	v.SetDefault("LDAP_BASE_DN", "")
	v.SetDefault("LDAP_USER_FILTER", "(objectClass=inetOrgPerson)")
	v.SetDefault("LDAP_UID_ATTR", "uid")
	v.SetDefault("LDAP_MAIL_ATTR", "mail")
	v.SetDefault("LDAP_GROUP_ATTR", "memberOf")
	v.SetDefault("ADMIN_GROUP", "admins")
	v.SetDefault("MATCH_EMAIL", false)
	v.SetDefault("LEGACY_SUCCESS_KEYWORD", false)
	v.SetDefault("SMTP_ADDR", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("CHAT_WEBHOOK_URL", "")
	v.SetDefault("CHAT_WEBHOOK_TOKEN", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_ISSUER", "mfa-orphans-auth")
	v.SetDefault("JWT_AUDIENCE", "mfa-orphans-api")
	v.SetDefault("JWT_TTL", "8h")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("AUTH_DISABLED", false)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "mfa-orphans-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "mfa-orphans-event-shipper")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "mfa-orphans")
	v.SetDefault("SNAPSHOT_POLL_INTERVAL", "3s")
	v.SetDefault("RESULT_POLL_INTERVAL", "750ms")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	cfg.AdminGroup = strings.TrimSpace(cfg.AdminGroup)
	if cfg.AdminGroup == "" {
		return nil, errors.New("config: ADMIN_GROUP must be set")
	}
	if cfg.AuthDisabled && cfg.Env == "production" {
		return nil, errors.New("config: AUTH_DISABLED must not be true when APP_ENV=production")
	}
	switch cfg.StorageBackend {
	case "fs":
		if cfg.QueueDir == "" || cfg.ResultsDir == "" {
			return nil, errors.New("config: QUEUE_DIR and RESULTS_DIR must be set for the fs backend")
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("config: REDIS_ADDR must be set when STORAGE_BACKEND=redis")
		}
	default:
		return nil, errors.New("config: STORAGE_BACKEND must be fs or redis")
	}

	return &cfg, nil
}

// SnapshotPollInterval parses SnapshotPollEvery. Returns 3s if unset or invalid.
func (c *Config) SnapshotPollInterval() time.Duration {
	d, err := time.ParseDuration(c.SnapshotPollEvery)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}

// ResultPollInterval parses ResultPollEvery. Returns 750ms if unset or invalid.
func (c *Config) ResultPollInterval() time.Duration {
	d, err := time.ParseDuration(c.ResultPollEvery)
	if err != nil || d <= 0 {
		return 750 * time.Millisecond
	}
	return d
}

// TokenTTL parses JWTTTL. Returns 8h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTTTL)
	if err != nil || d <= 0 {
		return 8 * time.Hour
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if Kafka event delivery is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
