package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/deskkeys/internal/adapters/events"
	"github.com/atvirokodosprendimai/deskkeys/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/deskkeys/internal/adapters/memory"
	sqliteadapter "github.com/atvirokodosprendimai/deskkeys/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/deskkeys/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/deskkeys/internal/clock"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/domain"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/ports"
	"github.com/atvirokodosprendimai/deskkeys/internal/core/usecase"
	"github.com/atvirokodosprendimai/deskkeys/migrations"
)

const (
	KeyStoreMemory = "memory"
	KeyStoreSQLite = "sqlite"

	webhookTimeout      = 5 * time.Second
	outboxInterval      = 2 * time.Second
	outboxBatchSize     = 100
	startupStepDeadline = 5 * time.Second
)

type Config struct {
	Addr            string
	DBPath          string
	KeyStore        string
	CutoffHour      int
	Timezone        string
	CleanupInterval time.Duration
	RequestTimeout  time.Duration
	WebhookURL      string
	WebhookSecret   string
	BootstrapAdmin  bool
}

// Validate checks cfg and resolves the expiry policy it describes.
func (cfg Config) Validate() (domain.ExpiryPolicy, error) {
	var errs []error
	if cfg.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if cfg.KeyStore != KeyStoreMemory && cfg.KeyStore != KeyStoreSQLite {
		errs = append(errs, fmt.Errorf("unknown key store %q", cfg.KeyStore))
	}
	if cfg.CleanupInterval <= 0 {
		errs = append(errs, errors.New("cleanup interval must be positive"))
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if cfg.WebhookSecret != "" && cfg.WebhookURL == "" {
		errs = append(errs, errors.New("webhook secret set without webhook url"))
	}

	policy := domain.ExpiryPolicy{CutoffHour: cfg.CutoffHour, Location: time.Local}
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			errs = append(errs, fmt.Errorf("load timezone: %w", err))
		} else {
			policy.Location = loc
		}
	}
	if err := policy.Validate(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return domain.ExpiryPolicy{}, fmt.Errorf("invalid config: %w", err)
	}
	return policy, nil
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewServer(ctx context.Context, cfg Config) (*http.Server, io.Closer, error) {
	policy, err := cfg.Validate()
	if err != nil {
		return nil, nil, err
	}

	db, err := gormsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, startupStepDeadline)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	c := clock.Real()
	var (
		keys    ports.KeyStore
		aliases ports.AliasStore
	)
	switch cfg.KeyStore {
	case KeyStoreSQLite:
		keys = sqliteadapter.NewKeyStore(db, c, policy)
		aliases = sqliteadapter.NewAliasStore(db, c, policy.Location)
	default:
		keys = memory.NewKeyStore(c, policy)
		aliases = memory.NewAliasStore(keys, c)
	}

	agents := sqliteadapter.NewAgentDirectory(db, c)
	eventLog := sqliteadapter.NewEventLog(db, c)
	auditTrailRepo := sqliteadapter.NewAuditTrailRepository(db)
	outboxRepo := sqliteadapter.NewOutboxRepository(db, c)

	binder := usecase.NewBindingCoordinator(keys, aliases, agents, eventLog, c)
	authService := usecase.NewAuthService(keys, agents, binder, c)
	keyService := usecase.NewKeyService(keys, aliases, eventLog, c)
	aliasService := usecase.NewAliasService(aliases, agents)
	auditService := usecase.NewAuditService(auditTrailRepo)

	if cfg.BootstrapAdmin {
		bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, startupStepDeadline)
		_, _, err := keyService.EnsureAdminKey(bootstrapCtx)
		bootstrapCancel()
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}

	handler, err := httpapi.NewHandler(authService, keyService, binder, aliasService, auditService,
		httpapi.WithRequestTimeout(cfg.RequestTimeout))
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("build handler: %w", err)
	}

	publishers := []ports.EventPublisher{events.NewLogPublisher()}
	if cfg.WebhookURL != "" {
		publishers = append(publishers, events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, webhookTimeout))
		log.Printf("webhook delivery enabled url=%s signed=%t", cfg.WebhookURL, cfg.WebhookSecret != "")
	}
	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, events.NewFanoutPublisher(publishers...), c, outboxInterval, outboxBatchSize)
	dispatcher.Start(context.Background())

	cleanup := usecase.NewCleanupScheduler(keys, aliases, eventLog, c, cfg.CleanupInterval)
	cleanup.Start(context.Background())

	log.Printf("key engine ready store=%s cutoff_hour=%d timezone=%s", cfg.KeyStore, policy.CutoffHour, policy.Location)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Background loops stop before the database closes.
	return server, resourceCloser{closers: []io.Closer{cleanup, dispatcher, db}}, nil
}
