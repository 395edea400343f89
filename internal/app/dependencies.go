package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/auth"
	"github.com/vladislavdragonenkov/qrpro/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/qrpro/internal/health"
	"github.com/vladislavdragonenkov/qrpro/internal/notification"
	fsstore "github.com/vladislavdragonenkov/qrpro/internal/storage/firestore"
	"github.com/vladislavdragonenkov/qrpro/internal/storage/memory"
	"github.com/vladislavdragonenkov/qrpro/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/qrpro/internal/storage/redis"
)

const (
	mailBreakerMaxFailures = 5
	mailHTTPTimeout        = 10 * time.Second
)

// runtimeDependencies — хранилища выбранного драйвера.
type runtimeDependencies struct {
	orders         domain.OrderRepository
	timeline       domain.TimelineRepository
	outbox         domain.OutboxRepository
	idempotency    domain.IdempotencyRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies открывает хранилище заказов, outbox, timeline и idempotency-ключей.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		return &runtimeDependencies{
			orders:      memory.NewOrderRepository(),
			timeline:    memory.NewTimelineRepository(),
			outbox:      memory.NewOutboxRepository(),
			idempotency: memory.NewIdempotencyRepository(),
			storageChecker: healthcheck.NewSimpleChecker("storage", func(context.Context) error {
				return nil
			}),
		}, nil

	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.DefaultPoolConfig())
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("postgres auto-migrate: %w", err)
			}
			state, err := store.MigrationStatus(ctx)
			if err == nil {
				logger.WithFields(log.Fields{
					"version": state.Version,
					"applied": state.Applied,
				}).Info("postgres migrations applied")
			}
		}
		return &runtimeDependencies{
			orders:         postgres.NewOrderRepository(store),
			timeline:       postgres.NewTimelineRepository(store),
			outbox:         postgres.NewOutboxRepository(store),
			idempotency:    postgres.NewIdempotencyRepository(store),
			storageChecker: healthcheck.NewSimpleChecker("postgres", store.Ping),
			closeFn:        store.Close,
		}, nil

	case StorageDriverFirestore:
		provider := fsstore.NewProvider(fsstore.Config{
			ProjectID:       cfg.FirestoreProjectID,
			CredentialsFile: cfg.GoogleCredentialsFile,
		})
		if err := provider.Ping(ctx); err != nil {
			_ = provider.Close()
			return nil, fmt.Errorf("connect firestore: %w", err)
		}
		return &runtimeDependencies{
			orders:         fsstore.NewOrderRepository(provider),
			timeline:       fsstore.NewTimelineRepository(provider),
			outbox:         fsstore.NewOutboxRepository(provider),
			idempotency:    fsstore.NewIdempotencyRepository(provider),
			storageChecker: healthcheck.NewSimpleChecker("firestore", provider.Ping),
			closeFn:        provider.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}

// cartDependencies — хранилище корзин и его проверка для /healthz.
type cartDependencies struct {
	store   domain.CartStore
	checker healthcheck.Checker
	closeFn func() error
}

func initCartStore(ctx context.Context, cfg Config, logger *log.Entry) (*cartDependencies, error) {
	switch cfg.CartDriver {
	case CartDriverMemory:
		return &cartDependencies{store: memory.NewCartStore()}, nil
	case CartDriverRedis:
		store, err := redisstore.Open(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CartTTL,
		})
		if err != nil {
			return nil, err
		}
		logger.WithField("addr", cfg.RedisAddr).Info("redis cart store connected")
		return &cartDependencies{
			store:   store,
			checker: healthcheck.NewSimpleChecker("redis", store.Ping),
			closeFn: store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported cart driver: %s", cfg.CartDriver)
	}
}

func initAuthenticator(ctx context.Context, cfg Config, logger *log.Entry) (auth.Authenticator, error) {
	switch cfg.AuthMode {
	case AuthModeHeader:
		logger.Warn("header authentication enabled, X-User-* headers are trusted as is")
		return auth.HeaderAuthenticator{}, nil
	case AuthModeFirebase:
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.firebaseProjectID(), cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, err
		}
		return auth.NewFirebaseAuthenticator(verifier, cfg.AdminClaim), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.AuthMode)
	}
}

// initMailer собирает провайдера писем за circuit breaker'ом.
func initMailer(cfg Config, logger *log.Entry) (notification.Mailer, error) {
	var (
		mailer notification.Mailer
		err    error
	)
	switch cfg.MailDriver {
	case MailDriverLog:
		mailer = notification.NewLogMailer(logger.WithField("mailer", "log"))
	case MailDriverSMTP:
		mailer, err = notification.NewSMTPMailer(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			SSL:      cfg.SMTPPort == 465,
		})
	case MailDriverEmailJS:
		mailer, err = notification.NewEmailJSMailer(notification.EmailJSConfig{
			ServiceID:  cfg.EmailJSServiceID,
			PublicKey:  cfg.EmailJSPublicKey,
			PrivateKey: cfg.EmailJSPrivateKey,
			Templates: map[string]string{
				notification.TemplateOrderConfirmation: cfg.EmailJSTemplateConfirmation,
				notification.TemplateStatusUpdate:      cfg.EmailJSTemplateStatusUpdate,
			},
			Timeout: mailHTTPTimeout,
		}, &http.Client{Timeout: mailHTTPTimeout})
	default:
		err = fmt.Errorf("unsupported mail driver: %s", cfg.MailDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	logger.WithField("driver", cfg.MailDriver).Info("mailer initialized")
	return notification.NewBreakerMailer(mailer, mailBreakerMaxFailures, 0, logger.WithField("component", "mail-circuit-breaker")), nil
}

// closeAll закрывает ресурсы в обратном порядке и собирает ошибки.
func closeAll(closers ...func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if closers[i] == nil {
			continue
		}
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
