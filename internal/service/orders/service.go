package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
	"github.com/vladislavdragonenkov/qrpro/internal/metrics"
)

const (
	defaultListLimit  = 100
	maxListLimit      = 500
	sideEffectTimeout = 5 * time.Second
)

// Notifier получает уведомления о заказах после фиксации изменений.
// Реализация не должна возвращать ошибок вызывающему.
type Notifier interface {
	NotifyOrderCreated(ctx context.Context, order domain.Order)
	NotifyStatusChanged(ctx context.Context, order domain.Order, newStatus domain.OrderStatus)
}

// Service управляет жизненным циклом заказов: создание, правка, отмена, статусы.
type Service struct {
	repo     domain.OrderRepository
	timeline domain.TimelineRepository
	catalog  domain.Catalog
	notifier Notifier
	metrics  *metrics.OrderMetrics
	logger   *log.Entry

	now         func() time.Time
	newID       func() string
	orderNumber func(time.Time) string
}

// Option настраивает Service.
type Option func(*Service)

// WithNotifier подключает отправку писем.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithMetrics подключает Prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithOrderNumberGenerator подменяет генератор номеров заказов.
func WithOrderNumberGenerator(fn func(time.Time) string) Option {
	return func(s *Service) {
		if fn != nil {
			s.orderNumber = fn
		}
	}
}

// NewService конструирует сервис с зависимостями.
func NewService(repo domain.OrderRepository, timeline domain.TimelineRepository, catalog domain.Catalog, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		timeline:    timeline,
		catalog:     catalog,
		logger:      log.New().WithField("component", "order-service"),
		now:         time.Now,
		newID:       uuid.NewString,
		orderNumber: domain.NewOrderNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder оформляет заказ по ценам каталога.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrderCommand, actor domain.Actor) (_ domain.Order, err error) {
	defer s.observe("create", time.Now(), &err)

	if err := requireActor(actor); err != nil {
		return domain.Order{}, err
	}

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		userID = actor.ID
	}
	if userID != actor.ID && !actor.IsAdmin {
		return domain.Order{}, fmt.Errorf("create order for another user: %w", domain.ErrForbidden)
	}

	verr := &domain.ValidationError{}
	items, currency := s.priceItems(cmd.Items, verr)
	customer := domain.NormalizeCustomerInfo(cmd.CustomerInfo)
	for _, field := range domain.ValidateCustomerInfo(customer) {
		verr.Add(field)
	}
	for _, field := range domain.ValidatePaymentInfo(cmd.PaymentInfo) {
		verr.Add(field)
	}
	if err := verr.OrNil(); err != nil {
		return domain.Order{}, err
	}

	now := domain.StoredTime(s.now())
	payment := cmd.PaymentInfo
	payment.Status = domain.PaymentStatusPending

	order := domain.Order{
		ID:           s.newID(),
		OrderNumber:  s.orderNumber(now),
		UserID:       userID,
		Items:        items,
		Currency:     currency,
		Status:       domain.OrderStatusPending,
		CustomerInfo: customer,
		PaymentInfo:  payment,
		Notes:        strings.TrimSpace(cmd.Notes),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.Recalculate()

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrValidation, errors.Join(errs...))
	}

	if err := s.repo.Create(ctx, order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to create order")
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"total":        order.TotalAmount,
	}).Info("order created")

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}

	// Заказ уже сохранён: отмена запроса не должна терять событие и письмо.
	ctx, cancel := afterCommit(ctx)
	defer cancel()
	s.appendTimeline(ctx, domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     domain.TimelineOrderCreated,
		ActorID:  actor.ID,
		ToStatus: order.Status,
		Occurred: order.CreatedAt,
	})
	if s.notifier != nil {
		s.notifier.NotifyOrderCreated(ctx, order)
	}

	return order, nil
}

// GetOrder возвращает заказ владельцу или администратору.
func (s *Service) GetOrder(ctx context.Context, orderID string, actor domain.Actor) (domain.Order, error) {
	if err := requireActor(actor); err != nil {
		return domain.Order{}, err
	}
	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !actor.CanRead(order) {
		return domain.Order{}, fmt.Errorf("read order %s: %w", orderID, domain.ErrForbidden)
	}
	return order, nil
}

// ListMyOrders возвращает заказы актора от новых к старым.
func (s *Service) ListMyOrders(ctx context.Context, actor domain.Actor, limit int) ([]domain.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	orders, err := s.repo.List(ctx, domain.OrderFilter{UserID: actor.ID, Limit: normalizeLimit(limit)})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListOrders — административная выборка всех заказов.
func (s *Service) ListOrders(ctx context.Context, query ListOrdersQuery, actor domain.Actor) ([]domain.Order, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if query.Status != "" && !query.Status.Valid() {
		return nil, domain.NewValidationError("status")
	}
	orders, err := s.repo.List(ctx, domain.OrderFilter{Status: query.Status, Limit: normalizeLimit(query.Limit)})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Timeline возвращает историю заказа владельцу или администратору.
func (s *Service) Timeline(ctx context.Context, orderID string, actor domain.Actor) ([]domain.TimelineEvent, error) {
	if _, err := s.GetOrder(ctx, orderID, actor); err != nil {
		return nil, err
	}
	if s.timeline == nil {
		return nil, nil
	}
	events, err := s.timeline.List(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return events, nil
}

// priceItems превращает запросы позиций в позиции заказа по ценам каталога.
// Повторяющиеся товары объединяются в одну позицию.
func (s *Service) priceItems(requests []ItemRequest, verr *domain.ValidationError) ([]domain.OrderItem, string) {
	if len(requests) == 0 {
		verr.Add("items")
		return nil, ""
	}

	var currency string
	items := make([]domain.OrderItem, 0, len(requests))
	index := make(map[string]int, len(requests))

	for i, req := range requests {
		productID := strings.TrimSpace(req.ProductID)
		if req.Quantity < 1 {
			verr.Add(domain.ItemField(i, "quantity"))
		}
		product, ok := s.catalog.Lookup(productID)
		if !ok {
			verr.Add(domain.ItemField(i, "productId"))
			continue
		}
		if currency == "" {
			currency = product.Currency
		} else if product.Currency != currency {
			verr.Add(domain.ItemField(i, "currency"))
			continue
		}
		if req.Quantity < 1 {
			continue
		}

		if idx, seen := index[product.ID]; seen {
			items[idx].Quantity += req.Quantity
			items[idx].Recalculate()
			continue
		}
		item := domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    req.Quantity,
			UnitPrice:   product.Price,
		}
		item.Recalculate()
		index[product.ID] = len(items)
		items = append(items, item)
	}

	return items, currency
}

func (s *Service) load(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, domain.NewValidationError("orderId")
	}
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	return order, nil
}

// loadForUpdate загружает заказ и сверяет ожидаемую версию.
func (s *Service) loadForUpdate(ctx context.Context, orderID string, expectedVersion int64) (domain.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if versionMismatch(expectedVersion, order) {
		return domain.Order{}, fmt.Errorf("order %s has version %d, expected %d: %w",
			orderID, order.Version, expectedVersion, domain.ErrOrderVersionConflict)
	}
	return order, nil
}

// save сохраняет заказ и возвращает его с новой версией.
func (s *Service) save(ctx context.Context, order domain.Order) (domain.Order, error) {
	order.Touch(s.now())
	if err := s.repo.Save(ctx, order); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to save order")
		return domain.Order{}, fmt.Errorf("save order %s: %w", order.ID, err)
	}
	order.Version++
	return order, nil
}

// afterCommit отвязывает побочные эффекты от отмены запроса, сохраняя значения контекста.
func afterCommit(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
}

func (s *Service) appendTimeline(ctx context.Context, event domain.TimelineEvent) {
	if s.timeline == nil {
		return
	}
	ctx, cancel := afterCommit(ctx)
	defer cancel()

	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": event.OrderID,
			"event":    event.Type,
		}).Warn("failed to append timeline event")
		return
	}
	if s.metrics != nil {
		s.metrics.RecordTimelineEvent()
	}
}

// observe пишет длительность операции и причину отказа.
func (s *Service) observe(operation string, started time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOperation(operation, time.Since(started))
	if errp != nil && *errp != nil {
		s.metrics.RecordRejection(operation, domain.ErrorCode(*errp))
	}
}

func requireActor(actor domain.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return domain.ErrUnauthenticated
	}
	return nil
}

func requireAdmin(actor domain.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsAdmin {
		return fmt.Errorf("admin role required: %w", domain.ErrForbidden)
	}
	return nil
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
