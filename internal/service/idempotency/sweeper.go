package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSweepInterval  = 10 * time.Minute
	defaultSweepBatchSize = 500
	defaultRunTimeout     = time.Minute
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrpro_idempotency_sweep_runs_total",
		Help: "Idempotency key sweep runs grouped by result.",
	}, []string{"result"})
	sweepDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrpro_idempotency_sweep_deleted_total",
		Help: "Expired idempotency keys removed by the sweeper.",
	})
	sweepLastRun = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qrpro_idempotency_sweep_last_run_timestamp_seconds",
		Help: "Unix time of the last successful sweep.",
	})
)

// ExpiredDeleter удаляет просроченные ключи порциями не больше limit.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Sweeper периодически удаляет просроченные ключи Idempotency-Key.
type Sweeper struct {
	repo       ExpiredDeleter
	logger     *log.Entry
	interval   time.Duration
	batchSize  int
	runTimeout time.Duration
	now        func() time.Time
}

// Option настраивает Sweeper.
type Option func(*Sweeper)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithBatchSize ограничивает размер одного удаления.
func WithBatchSize(size int) Option {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper создаёт фоновый чистильщик ключей.
func NewSweeper(repo ExpiredDeleter, opts ...Option) *Sweeper {
	s := &Sweeper{
		repo:       repo,
		logger:     log.WithField("component", "idempotency-sweeper"),
		interval:   defaultSweepInterval,
		batchSize:  defaultSweepBatchSize,
		runTimeout: defaultRunTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run чистит ключи сразу и затем раз в interval до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper disabled: no repository")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	deleted, err := s.Sweep(runCtx)
	switch {
	case err == nil:
		sweepRuns.WithLabelValues("ok").Inc()
		sweepLastRun.SetToCurrentTime()
		if deleted > 0 {
			s.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
		}
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// процесс останавливается
	default:
		sweepRuns.WithLabelValues("error").Inc()
		s.logger.WithError(err).WithField("deleted", deleted).Warn("idempotency sweep failed")
	}
}

// Sweep удаляет все ключи, у которых TTL истёк к текущему моменту.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	before := s.now().UTC()

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := s.repo.DeleteExpired(ctx, before, s.batchSize)
		total += n
		if n > 0 {
			sweepDeleted.Add(float64(n))
		}
		if err != nil {
			return total, err
		}
		if n < s.batchSize {
			return total, nil
		}
	}
}
