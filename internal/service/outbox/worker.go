// Package outbox доставляет уведомления из очереди outbox с повторами и DLQ.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultBatchSize      = 50
	defaultMaxAttempts    = 5
	defaultRetryBaseDelay = 200 * time.Millisecond
	defaultRetryMaxDelay  = 30 * time.Second
)

var (
	deliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrpro_notification_delivery_attempts_total",
		Help: "Total number of notification delivery attempts grouped by event type and result.",
	}, []string{"event_type", "result"})
	pendingNotifications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qrpro_notification_outbox_pending",
		Help: "Current number of pending notifications in the outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qrpro_notification_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending notification.",
	})
)

// permanentError помечает ошибку, повтор которой бессмысленен.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent оборачивает ошибку: воркер не будет повторять доставку и сразу отправит сообщение в DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent проверяет, помечена ли ошибка как неповторяемая.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// deferredError помечает ошибку, при которой доставку нужно отложить целиком:
// сообщение остаётся pending, попытки не расходуются, батч прерывается.
type deferredError struct {
	err error
}

func (e *deferredError) Error() string { return e.err.Error() }
func (e *deferredError) Unwrap() error { return e.err }

// Deferred оборачивает ошибку недоступности получателя (например, разомкнутый circuit breaker).
func Deferred(err error) error {
	if err == nil {
		return nil
	}
	return &deferredError{err: err}
}

// IsDeferred проверяет, что доставку нужно отложить до следующего цикла.
func IsDeferred(err error) bool {
	var d *deferredError
	return errors.As(err, &d)
}

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithDLQPublisher задаёт publisher для недоставленных уведомлений.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток доставки перед failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовую задержку exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// WithRetryMaxDelay ограничивает задержку между попытками.
func WithRetryMaxDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryMaxDelay = delay
	}
}

// Worker доставляет pending-уведомления через publisher.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlqPublisher   domain.OutboxPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
		RetryMaxDelay:  defaultRetryMaxDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "notification-outbox")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = defaultRetryMaxDelay
	}

	return &Worker{
		repo:           repo,
		publisher:      publisher,
		dlqPublisher:   opts.DLQPublisher,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		retryMaxDelay:  opts.RetryMaxDelay,
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("notification outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один polling-цикл и возвращает число доставленных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	w.refreshBacklogMetrics(ctx)
	defer w.refreshBacklogMetrics(ctx)

	messages, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending notifications")
		return 0
	}

	delivered := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			return delivered
		}

		attempts, err := w.deliver(ctx, msg)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Сообщение остаётся pending и будет подобрано после рестарта.
			return delivered
		}
		if IsDeferred(err) {
			w.logger.WithError(err).WithField("outbox_id", msg.ID).Info("notification delivery deferred")
			return delivered
		}
		if err != nil {
			w.fail(ctx, msg, attempts, err)
			continue
		}

		delivered++
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to mark notification as sent")
		}
	}
	return delivered
}

func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.publisher.Publish(ctx, msg)
		if err == nil {
			deliveryAttempts.WithLabelValues(msg.EventType, "sent").Inc()
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		lastErr = err

		if IsDeferred(err) {
			deliveryAttempts.WithLabelValues(msg.EventType, "deferred").Inc()
			return attempt, err
		}
		if IsPermanent(err) {
			deliveryAttempts.WithLabelValues(msg.EventType, "permanent_error").Inc()
			return attempt, err
		}
		deliveryAttempts.WithLabelValues(msg.EventType, "retry_error").Inc()

		if attempt == w.maxAttempts {
			break
		}

		w.logger.WithError(err).WithFields(log.Fields{
			"outbox_id": msg.ID,
			"attempt":   attempt,
		}).Debug("notification delivery failed, retrying")

		delay := w.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return w.maxAttempts, fmt.Errorf("delivery failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *Worker) fail(ctx context.Context, msg domain.OutboxMessage, attempts int, cause error) {
	w.logger.WithError(cause).WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"order_id":   msg.AggregateID,
		"event_type": msg.EventType,
		"attempts":   attempts,
	}).Error("notification delivery failed")
	deliveryAttempts.WithLabelValues(msg.EventType, "failed").Inc()

	if err := w.publishToDLQ(ctx, msg, attempts, cause); err != nil {
		w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to publish notification to DLQ")
		deliveryAttempts.WithLabelValues(msg.EventType, "dlq_failed").Inc()
	}
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to mark notification as failed")
	}
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Debug("failed to collect outbox backlog stats")
		return
	}

	pendingNotifications.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		oldestPendingAge.Set(0)
		return
	}
	oldestPendingAge.Set(max(time.Since(stats.OldestPendingAt).Seconds(), 0))
}

// retryBackoff: base * 2^(attempt-1), но не больше retryMaxDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay >= w.retryMaxDelay/2 {
			return w.retryMaxDelay
		}
		delay *= 2
	}
	return min(delay, w.retryMaxDelay)
}

func (w *Worker) publishToDLQ(ctx context.Context, msg domain.OutboxMessage, attempts int, cause error) error {
	if w.dlqPublisher == nil {
		return nil
	}

	letter := DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       msg.Payload,
		Error:         cause.Error(),
		Attempts:      attempts,
		FailedAt:      time.Now().UTC(),
	}
	dlqMsg, err := letter.Message()
	if err != nil {
		return err
	}
	if err := w.dlqPublisher.Publish(ctx, dlqMsg); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
