package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
	"github.com/vladislavdragonenkov/qrpro/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/qrpro/internal/service/outbox"
	fsstore "github.com/vladislavdragonenkov/qrpro/internal/storage/firestore"
	"github.com/vladislavdragonenkov/qrpro/internal/storage/postgres"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 5 * time.Second
	defaultGroupID     = "qrpro-dlq-reprocess"
)

type config struct {
	brokers     []string
	topic       string
	groupID     string
	limit       int
	execute     bool
	idleTimeout time.Duration

	storage           string
	postgresDSN       string
	firestoreProject  string
	googleCredentials string
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fail("read .env: %v", err)
	}

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, getenv func(string) string) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fset := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	fset.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	fset.StringVar(&cfg.topic, "topic", "", "notification DLQ topic (fallback: QRPRO_KAFKA_DLQ_TOPIC)")
	fset.StringVar(&cfg.groupID, "group", defaultGroupID, "consumer group id")
	fset.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/requeue")
	fset.BoolVar(&cfg.execute, "execute", false, "requeue into the outbox and commit offsets; default is dry-run")
	fset.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop after no messages for this long")
	fset.StringVar(&cfg.storage, "storage", "", "outbox storage: postgres|firestore (fallback: QRPRO_STORAGE_DRIVER)")
	fset.StringVar(&cfg.postgresDSN, "dsn", "", "PostgreSQL DSN (fallback: QRPRO_POSTGRES_DSN)")
	if err := fset.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv("KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)
	cfg.topic = firstNonEmpty(cfg.topic, getenv("QRPRO_KAFKA_DLQ_TOPIC"), kafka.TopicNotificationDLQ)
	cfg.storage = strings.ToLower(firstNonEmpty(cfg.storage, getenv("QRPRO_STORAGE_DRIVER")))
	cfg.postgresDSN = firstNonEmpty(cfg.postgresDSN, getenv("QRPRO_POSTGRES_DSN"))
	cfg.firestoreProject = strings.TrimSpace(getenv("QRPRO_FIRESTORE_PROJECT_ID"))
	cfg.googleCredentials = strings.TrimSpace(getenv("QRPRO_GOOGLE_CREDENTIALS_FILE"))

	if len(cfg.brokers) == 0 {
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.groupID) == "" {
		return config{}, errors.New("group is required")
	}
	if cfg.limit <= 0 {
		return config{}, errors.New("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, errors.New("idle-timeout must be > 0")
	}
	if cfg.execute {
		switch cfg.storage {
		case "postgres":
			if cfg.postgresDSN == "" {
				return config{}, errors.New("postgres storage requires -dsn or QRPRO_POSTGRES_DSN")
			}
		case "firestore":
			if cfg.firestoreProject == "" {
				return config{}, errors.New("firestore storage requires QRPRO_FIRESTORE_PROJECT_ID")
			}
		default:
			return config{}, fmt.Errorf("execute mode requires a persistent outbox storage, got %q (use postgres|firestore)", cfg.storage)
		}
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

// openOutbox открывает outbox сервиса; в dry-run хранилище не нужно.
func openOutbox(ctx context.Context, cfg config) (domain.OutboxRepository, func() error, error) {
	if !cfg.execute {
		return nil, func() error { return nil }, nil
	}
	switch cfg.storage {
	case "postgres":
		store, err := postgres.Open(ctx, cfg.postgresDSN, postgres.DefaultPoolConfig())
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewOutboxRepository(store), store.Close, nil
	case "firestore":
		provider := fsstore.NewProvider(fsstore.Config{ProjectID: cfg.firestoreProject, CredentialsFile: cfg.googleCredentials})
		if err := provider.Ping(ctx); err != nil {
			_ = provider.Close()
			return nil, nil, err
		}
		return fsstore.NewOutboxRepository(provider), provider.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage: %s", cfg.storage)
	}
}

func run(ctx context.Context, cfg config) error {
	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"topic":   cfg.topic,
		"group":   cfg.groupID,
		"limit":   cfg.limit,
		"mode":    mode,
		"storage": cfg.storage,
	}).Info("starting notification dlq replay")

	repo, closeRepo, err := openOutbox(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer func() { _ = closeRepo() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := newReplayer(repo, cfg.execute, cfg.limit, cancel)

	reader, err := kafka.NewDLQReader(cfg.brokers, cfg.groupID, cfg.topic, cfg.execute, r.handle)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	go watchIdle(ctx, r.activity, cfg.idleTimeout, cancel)
	reader.Run(ctx)

	stats := r.snapshot()
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": stats.processed,
		"requeued":  stats.requeued,
		"skipped":   stats.skipped,
	}).Info("dlq replay finished")
	return nil
}

type replayStats struct {
	processed int
	requeued  int
	skipped   int
}

// replayer возвращает письма из DLQ в outbox. Без execute только логирует кандидатов.
type replayer struct {
	outbox   domain.OutboxRepository
	execute  bool
	limit    int
	stop     context.CancelFunc
	newID    func() string
	activity chan struct{}

	mu    sync.Mutex
	stats replayStats
}

func newReplayer(repo domain.OutboxRepository, execute bool, limit int, stop context.CancelFunc) *replayer {
	return &replayer{
		outbox:   repo,
		execute:  execute,
		limit:    limit,
		stop:     stop,
		newID:    uuid.NewString,
		activity: make(chan struct{}, 1),
	}
}

// handle реализует kafka.MessageHandler. Ошибка оставляет сообщение незакоммиченным.
func (r *replayer) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	select {
	case r.activity <- struct{}{}:
	default:
	}

	r.mu.Lock()
	if r.stats.processed >= r.limit {
		r.mu.Unlock()
		r.stop()
		return errors.New("replay limit reached")
	}
	r.stats.processed++
	r.mu.Unlock()

	logger := log.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	dl, err := outbox.DecodeDeadLetter(msg.Value)
	if err != nil {
		logger.WithError(err).Warn("skip unsupported dlq message")
		r.count(func(s *replayStats) { s.skipped++ })
		return nil
	}
	logger = logger.WithFields(log.Fields{
		"outbox_id":  dl.OutboxID,
		"event_type": dl.EventType,
		"attempts":   dl.Attempts,
		"last_error": dl.Error,
	})

	if !r.execute {
		logger.Info("dlq replay candidate")
		r.count(func(s *replayStats) { s.requeued++ })
		return nil
	}

	requeued, err := r.outbox.Enqueue(ctx, dl.Requeue(r.newID()))
	if err != nil {
		r.count(func(s *replayStats) { s.processed-- })
		return fmt.Errorf("requeue %s: %w", dl.OutboxID, err)
	}
	logger.WithField("new_outbox_id", requeued.ID).Info("notification requeued")
	r.count(func(s *replayStats) { s.requeued++ })
	return nil
}

func (r *replayer) count(fn func(*replayStats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

func (r *replayer) snapshot() replayStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// watchIdle вызывает stop, если активности не было дольше timeout.
func watchIdle(ctx context.Context, activity <-chan struct{}, timeout time.Duration, stop context.CancelFunc) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-activity:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)
		case <-timer.C:
			log.WithField("idle_timeout", timeout).Info("dlq is idle, stopping")
			stop()
			return
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
