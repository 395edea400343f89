package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrCircuitOpen — провайдер временно отключён после серии ошибок.
var ErrCircuitOpen = errors.New("mail provider circuit is open")

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerMailer защищает Mailer от лавины запросов к недоступному провайдеру.
// Считаются только временные ошибки: отказ по конкретному письму провайдер не "ломает".
type BreakerMailer struct {
	next         Mailer
	maxFailures  int
	resetTimeout time.Duration
	logger       *log.Entry
	now          func() time.Time

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
}

// NewBreakerMailer оборачивает Mailer circuit breaker'ом.
func NewBreakerMailer(next Mailer, maxFailures int, resetTimeout time.Duration, logger *log.Entry) *BreakerMailer {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.WithField("component", "mail-circuit-breaker")
	}
	return &BreakerMailer{
		next:         next,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Send отправляет письмо через обёрнутый Mailer, если цепь не разомкнута.
func (b *BreakerMailer) Send(ctx context.Context, template, recipient string, variables map[string]string) error {
	if !b.allow() {
		return &DeliveryError{Provider: "breaker", Template: template, Recipient: recipient, Temporary: true, Err: ErrCircuitOpen}
	}

	err := b.next.Send(ctx, template, recipient, variables)
	b.record(err)
	return err
}

// State возвращает текущее состояние цепи.
func (b *BreakerMailer) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *BreakerMailer) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitOpen {
		return true
	}
	if b.now().Sub(b.lastFailure) < b.resetTimeout {
		return false
	}
	b.state = CircuitHalfOpen
	b.logger.Info("mail circuit breaker half-open")
	return true
}

func (b *BreakerMailer) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var delivery *DeliveryError
	temporary := err != nil && (!errors.As(err, &delivery) || delivery.Temporary)
	if !temporary {
		if b.state == CircuitHalfOpen {
			b.logger.Info("mail circuit breaker closed")
		}
		b.state = CircuitClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.now()
	if b.state == CircuitHalfOpen || b.failures >= b.maxFailures {
		if b.state != CircuitOpen {
			b.logger.WithField("failures", b.failures).Warn("mail circuit breaker opened")
		}
		b.state = CircuitOpen
	}
}
