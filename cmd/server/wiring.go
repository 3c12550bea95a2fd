package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"mfa-orphans/internal/api"
	"mfa-orphans/internal/audit"
	auditrepo "mfa-orphans/internal/audit/repository"
	"mfa-orphans/internal/config"
	"mfa-orphans/internal/db"
	"mfa-orphans/internal/db/migrate"
	identityrepo "mfa-orphans/internal/identity/repository"
	"mfa-orphans/internal/mfastatus/reader"
	"mfa-orphans/internal/notify"
	"mfa-orphans/internal/security"
	"mfa-orphans/internal/storage"
	"mfa-orphans/internal/telemetry"
	telemetryotel "mfa-orphans/internal/telemetry/otel"
	"mfa-orphans/internal/telemetry/producer"
)

type stores struct {
	queue   storage.Store
	results storage.Store
	redis   *redisPinger
	close   func()
}

// redisPinger adapts a go-redis client to the health checker.
type redisPinger struct {
	client *redis.Client
}

func (p *redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StorageBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		log.Printf("storage: queue and results in redis at %s (prefix %q)", cfg.RedisAddr, cfg.RedisPrefix)
		return &stores{
			queue:   storage.NewRedisStore(client, cfg.RedisPrefix+"queue:"),
			results: storage.NewRedisStore(client, cfg.RedisPrefix+"results:"),
			redis:   &redisPinger{client: client},
			close:   func() { _ = client.Close() },
		}, nil
	default:
		log.Printf("storage: queue %s, results %s", cfg.QueueDir, cfg.ResultsDir)
		return &stores{
			queue:   storage.NewFSStore(cfg.QueueDir),
			results: storage.NewFSStore(cfg.ResultsDir),
			close:   func() {},
		}, nil
	}
}

// openStatus reads the snapshot the worker publishes at STATUS_FILE, whatever the queue backend.
func openStatus(cfg *config.Config) (*reader.Reader, error) {
	if cfg.StatusFile == "" {
		return nil, errors.New("STATUS_FILE must be set")
	}
	return reader.NewReader(storage.NewFSStore(filepath.Dir(cfg.StatusFile)), filepath.Base(cfg.StatusFile)), nil
}

func openDirectory(cfg *config.Config) *identityrepo.LDAPDirectory {
	return identityrepo.NewLDAPDirectory(identityrepo.LDAPConfig{
		URL:          cfg.LDAPURL,
		BindDN:       cfg.LDAPBindDN,
		BindPassword: cfg.LDAPBindPassword,
		BaseDN:       cfg.LDAPBaseDN,
		UserFilter:   cfg.LDAPUserFilter,
		UIDAttr:      cfg.LDAPUIDAttr,
		MailAttr:     cfg.LDAPMailAttr,
		GroupAttr:    cfg.LDAPGroupAttr,
	})
}

type auditStore struct {
	logger *audit.Logger
	db     *sql.DB
	close  func()
}

// openAudit persists to Postgres when DATABASE_URL is set, migrating on startup, else keeps entries in memory.
func openAudit(ctx context.Context, cfg *config.Config) (*auditStore, error) {
	if cfg.DatabaseURL == "" {
		log.Println("audit: DATABASE_URL not set, keeping audit log in memory")
		return &auditStore{
			logger: audit.NewLogger(auditrepo.NewMemoryRepository(), api.ContextClientIP),
			close:  func() {},
		}, nil
	}
	if err := migrate.Run(cfg.DatabaseURL, migrate.Up); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &auditStore{
		logger: audit.NewLogger(auditrepo.NewPostgresRepository(sqlDB), api.ContextClientIP),
		db:     sqlDB,
		close:  func() { _ = sqlDB.Close() },
	}, nil
}

// openEvents prefers Kafka (shipped to Loki by cmd/worker) and falls back to OTel log records.
func openEvents(cfg *config.Config, providers *telemetryotel.Providers) (telemetry.EventEmitter, func()) {
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		if p := producer.NewKafkaProducer(brokers, cfg.EventsKafkaTopic); p != nil {
			log.Printf("telemetry: action events to kafka topic %s", cfg.EventsKafkaTopic)
			return p, func() {
				if err := p.Close(); err != nil {
					log.Printf("telemetry: kafka close: %v", err)
				}
			}
		}
	}
	if providers.Enabled() {
		log.Println("telemetry: action events to OTel logs")
		return telemetryotel.NewEventEmitter(providers.LoggerProvider), func() {}
	}
	return nil, func() {}
}

func openSinks(cfg *config.Config) (mail, alert notify.Sink) {
	if cfg.SMTPAddr != "" && cfg.SMTPFrom != "" {
		mail = notify.NewMailSender(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
	} else {
		log.Println("notify: SMTP_ADDR/SMTP_FROM not set, subject mail disabled")
	}
	if cfg.ChatWebhookURL != "" {
		alert = notify.NewChatWebhook(cfg.ChatWebhookURL, cfg.ChatWebhookToken)
	} else {
		log.Println("notify: CHAT_WEBHOOK_URL not set, admin alerts disabled")
	}
	return mail, alert
}

// openTokens returns nil only when auth is explicitly disabled.
func openTokens(cfg *config.Config) (api.TokenValidator, error) {
	if cfg.AuthDisabled {
		log.Println("auth: AUTH_DISABLED=true, every request runs as the development operator")
		return nil, nil
	}
	if cfg.JWTPublicKey == "" {
		return nil, errors.New("JWT_PUBLIC_KEY is required unless AUTH_DISABLED=true")
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("JWT_PUBLIC_KEY: %w", err)
	}
	log.Printf("auth: verifying %s operator tokens", security.KeyAlg(pub))
	return security.NewTokenProvider(nil, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL()), nil
}
