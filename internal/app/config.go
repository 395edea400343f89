package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	StorageDriverMemory    = "memory"
	StorageDriverPostgres  = "postgres"
	StorageDriverFirestore = "firestore"

	CartDriverMemory = "memory"
	CartDriverRedis  = "redis"

	AuthModeFirebase = "firebase"
	AuthModeHeader   = "header"

	MailDriverLog     = "log"
	MailDriverSMTP    = "smtp"
	MailDriverEmailJS = "emailjs"
)

const (
	envHTTPAddr                    = "QRPRO_HTTP_ADDR"
	envMetricsAddr                 = "QRPRO_METRICS_ADDR"
	envShutdownTimeout             = "QRPRO_SHUTDOWN_TIMEOUT"
	envLogLevel                    = "QRPRO_LOG_LEVEL"
	envLogFormat                   = "QRPRO_LOG_FORMAT"
	envStorageDriver               = "QRPRO_STORAGE_DRIVER"
	envPostgresDSN                 = "QRPRO_POSTGRES_DSN"
	envPostgresAutoMigrate         = "QRPRO_POSTGRES_AUTO_MIGRATE"
	envFirestoreProjectID          = "QRPRO_FIRESTORE_PROJECT_ID"
	envGoogleCredentialsFile       = "QRPRO_GOOGLE_CREDENTIALS_FILE"
	envCartDriver                  = "QRPRO_CART_DRIVER"
	envRedisAddr                   = "QRPRO_REDIS_ADDR"
	envRedisPassword               = "QRPRO_REDIS_PASSWORD"
	envRedisDB                     = "QRPRO_REDIS_DB"
	envCartTTL                     = "QRPRO_CART_TTL"
	envAuthMode                    = "QRPRO_AUTH_MODE"
	envFirebaseProjectID           = "QRPRO_FIREBASE_PROJECT_ID"
	envAdminClaim                  = "QRPRO_ADMIN_CLAIM"
	envMailDriver                  = "QRPRO_MAIL_DRIVER"
	envSMTPHost                    = "QRPRO_SMTP_HOST"
	envSMTPPort                    = "QRPRO_SMTP_PORT"
	envSMTPUsername                = "QRPRO_SMTP_USERNAME"
	envSMTPPassword                = "QRPRO_SMTP_PASSWORD"
	envSMTPFrom                    = "QRPRO_SMTP_FROM"
	envEmailJSServiceID            = "QRPRO_EMAILJS_SERVICE_ID"
	envEmailJSPublicKey            = "QRPRO_EMAILJS_PUBLIC_KEY"
	envEmailJSPrivateKey           = "QRPRO_EMAILJS_PRIVATE_KEY"
	envEmailJSTemplateConfirmation = "QRPRO_EMAILJS_TEMPLATE_ORDER_CONFIRMATION"
	envEmailJSTemplateStatus       = "QRPRO_EMAILJS_TEMPLATE_STATUS_UPDATE"
	envOutboxPollInterval          = "QRPRO_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "QRPRO_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "QRPRO_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryBaseDelay        = "QRPRO_OUTBOX_RETRY_BASE_DELAY"
	envOutboxMaxLag                = "QRPRO_OUTBOX_MAX_LAG"
	envIdempotencyTTL              = "QRPRO_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "QRPRO_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "QRPRO_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envKafkaDLQTopic               = "QRPRO_KAFKA_DLQ_TOPIC"
	envCatalogFile                 = "QRPRO_CATALOG_FILE"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	HTTPAddr        string
	MetricsAddr     string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string

	StorageDriver         string
	PostgresDSN           string
	PostgresAutoMigrate   bool
	FirestoreProjectID    string
	GoogleCredentialsFile string

	CartDriver    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartTTL       time.Duration

	AuthMode          string
	FirebaseProjectID string
	AdminClaim        string

	MailDriver                  string
	SMTPHost                    string
	SMTPPort                    int
	SMTPUsername                string
	SMTPPassword                string
	SMTPFrom                    string
	EmailJSServiceID            string
	EmailJSPublicKey            string
	EmailJSPrivateKey           string
	EmailJSTemplateConfirmation string
	EmailJSTemplateStatusUpdate string

	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	OutboxMaxAttempts    int
	OutboxRetryBaseDelay time.Duration
	// OutboxMaxLag — возраст самого старого письма, после которого /healthz отдаёт degraded.
	OutboxMaxLag time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	// KafkaBrokers через запятую; если пусто, DLQ не публикуется.
	KafkaBrokers  string
	KafkaDLQTopic string

	// CatalogFile — YAML с товарами; пусто — встроенный каталог.
	CatalogFile string
}

// DefaultConfig возвращает настройки для запуска без внешних хранилищ.
// Аутентификация по умолчанию через Firebase: доверие к X-User-* заголовкам включается только явно.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		CartDriver: CartDriverMemory,
		RedisAddr:  "localhost:6379",
		CartTTL:    7 * 24 * time.Hour,

		AuthMode:   AuthModeFirebase,
		AdminClaim: "admin",

		MailDriver: MailDriverLog,
		SMTPPort:   587,

		OutboxPollInterval:   2 * time.Second,
		OutboxBatchSize:      50,
		OutboxMaxAttempts:    5,
		OutboxRetryBaseDelay: 200 * time.Millisecond,
		OutboxMaxLag:         5 * time.Minute,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		KafkaDLQTopic: "qrpro.notifications.dlq",
	}
}

// EnvLookup совместим с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию, а в warnings попадает причина.
func LoadConfigFromEnv(lookup EnvLookup) (Config, []string) {
	cfg := DefaultConfig()
	var warnings []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	lower := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.ToLower(strings.TrimSpace(v))
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")
	lower(envLogLevel, &cfg.LogLevel)
	lower(envLogFormat, &cfg.LogFormat)

	lower(envStorageDriver, &cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envFirestoreProjectID, &cfg.FirestoreProjectID)
	str(envGoogleCredentialsFile, &cfg.GoogleCredentialsFile)

	lower(envCartDriver, &cfg.CartDriver)
	str(envRedisAddr, &cfg.RedisAddr)
	str(envRedisPassword, &cfg.RedisPassword)
	integer(envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0")
	duration(envCartTTL, &cfg.CartTTL, positiveDuration, "must be > 0")

	lower(envAuthMode, &cfg.AuthMode)
	str(envFirebaseProjectID, &cfg.FirebaseProjectID)
	str(envAdminClaim, &cfg.AdminClaim)

	lower(envMailDriver, &cfg.MailDriver)
	str(envSMTPHost, &cfg.SMTPHost)
	integer(envSMTPPort, &cfg.SMTPPort, positive, "must be > 0")
	str(envSMTPUsername, &cfg.SMTPUsername)
	str(envSMTPPassword, &cfg.SMTPPassword)
	str(envSMTPFrom, &cfg.SMTPFrom)
	str(envEmailJSServiceID, &cfg.EmailJSServiceID)
	str(envEmailJSPublicKey, &cfg.EmailJSPublicKey)
	str(envEmailJSPrivateKey, &cfg.EmailJSPrivateKey)
	str(envEmailJSTemplateConfirmation, &cfg.EmailJSTemplateConfirmation)
	str(envEmailJSTemplateStatus, &cfg.EmailJSTemplateStatusUpdate)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryBaseDelay, &cfg.OutboxRetryBaseDelay, nonNegativeDuration, "must be >= 0")
	duration(envOutboxMaxLag, &cfg.OutboxMaxLag, positiveDuration, "must be > 0")

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	str(envCatalogFile, &cfg.CatalogFile)

	return cfg, warnings
}

// Validate проверяет согласованность настроек драйверов.
func (c Config) Validate() error {
	var errs []error

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level %q: %w", c.LogLevel, err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unsupported log format %q (use text|json)", c.LogFormat))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres storage requires "+envPostgresDSN))
		}
	case StorageDriverFirestore:
		if c.FirestoreProjectID == "" {
			errs = append(errs, errors.New("firestore storage requires "+envFirestoreProjectID))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.CartDriver {
	case CartDriverMemory:
	case CartDriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis cart store requires "+envRedisAddr))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported cart driver %q", c.CartDriver))
	}

	switch c.AuthMode {
	case AuthModeHeader:
	case AuthModeFirebase:
		if c.firebaseProjectID() == "" {
			errs = append(errs, errors.New("firebase auth requires "+envFirebaseProjectID))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported auth mode %q", c.AuthMode))
	}

	switch c.MailDriver {
	case MailDriverLog:
	case MailDriverSMTP:
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			errs = append(errs, fmt.Errorf("smtp mailer requires %s and %s", envSMTPHost, envSMTPFrom))
		}
	case MailDriverEmailJS:
		if c.EmailJSServiceID == "" || c.EmailJSPublicKey == "" {
			errs = append(errs, fmt.Errorf("emailjs mailer requires %s and %s", envEmailJSServiceID, envEmailJSPublicKey))
		}
		if c.EmailJSTemplateConfirmation == "" || c.EmailJSTemplateStatusUpdate == "" {
			errs = append(errs, fmt.Errorf("emailjs mailer requires %s and %s", envEmailJSTemplateConfirmation, envEmailJSTemplateStatus))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported mail driver %q", c.MailDriver))
	}

	if c.KafkaBrokers != "" && c.KafkaDLQTopic == "" {
		errs = append(errs, errors.New("kafka dlq requires "+envKafkaDLQTopic))
	}

	return errors.Join(errs...)
}

// firebaseProjectID по умолчанию совпадает с проектом Firestore.
func (c Config) firebaseProjectID() string {
	if c.FirebaseProjectID != "" {
		return c.FirebaseProjectID
	}
	return c.FirestoreProjectID
}

// brokerList разбирает KAFKA_BROKERS.
func (c Config) brokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("invalid value %d: %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("invalid duration %s: %s", value, rule)
	}
	return value, nil
}
