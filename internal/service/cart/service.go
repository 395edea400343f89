package cart

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
	"github.com/vladislavdragonenkov/qrpro/internal/metrics"
	"github.com/vladislavdragonenkov/qrpro/internal/service/orders"
)

// OrderCreator оформляет заказ из содержимого корзины.
type OrderCreator interface {
	CreateOrder(ctx context.Context, cmd orders.CreateOrderCommand, actor domain.Actor) (domain.Order, error)
}

// CheckoutCommand — данные, которых нет в корзине.
type CheckoutCommand struct {
	CustomerInfo domain.CustomerInfo
	PaymentInfo  domain.PaymentInfo
	Notes        string
}

// Service хранит корзины пользователей и превращает их в заказы.
type Service struct {
	store   domain.CartStore
	catalog domain.Catalog
	orders  OrderCreator
	metrics *metrics.OrderMetrics
	logger  *log.Entry
	now     func() time.Time

	// locks сериализует read-modify-write одной корзины внутри процесса.
	// Пользователи делят полосы по хешу ID, поэтому число мьютексов не растёт.
	locks [lockStripes]sync.Mutex
}

const lockStripes = 64

// Option настраивает Service.
type Option func(*Service)

// WithMetrics подключает метрики событий корзины.
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

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис корзины.
func NewService(store domain.CartStore, catalog domain.Catalog, creator OrderCreator, opts ...Option) *Service {
	s := &Service{
		store:   store,
		catalog: catalog,
		orders:  creator,
		logger:  log.New().WithField("component", "cart-service"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get возвращает корзину актора; пустая корзина не ошибка.
func (s *Service) Get(ctx context.Context, actor domain.Actor) (domain.Cart, error) {
	if err := requireActor(actor); err != nil {
		return domain.Cart{}, err
	}
	cart, err := s.store.Get(ctx, actor.ID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart: %w", err)
	}
	return cart, nil
}

// AddProduct добавляет единицу товара из каталога.
func (s *Service) AddProduct(ctx context.Context, actor domain.Actor, productID string) (domain.Cart, domain.CartEvent, error) {
	product, ok := s.catalog.Lookup(strings.TrimSpace(productID))
	if !ok {
		return domain.Cart{}, domain.CartEvent{}, domain.NewValidationError("productId")
	}

	var event domain.CartEvent
	cart, err := s.update(ctx, actor, func(c *domain.Cart) error {
		if !c.Empty() && c.Currency != product.Currency {
			return domain.NewValidationError("currency")
		}
		event = c.AddItem(product)
		return nil
	})
	if err != nil {
		return domain.Cart{}, domain.CartEvent{}, err
	}

	s.logger.WithFields(log.Fields{
		"user_id":    actor.ID,
		"product_id": event.ProductID,
		"quantity":   event.Quantity,
	}).Info("item added to cart")
	if s.metrics != nil {
		s.metrics.RecordCartEvent(event.Type)
	}

	return cart, event, nil
}

// SetQuantity задаёт количество позиции; 0 и меньше удаляет её.
func (s *Service) SetQuantity(ctx context.Context, actor domain.Actor, productID string, quantity int32) (domain.Cart, error) {
	return s.update(ctx, actor, func(c *domain.Cart) error {
		c.SetQuantity(strings.TrimSpace(productID), quantity)
		return nil
	})
}

// RemoveItem удаляет позицию из корзины.
func (s *Service) RemoveItem(ctx context.Context, actor domain.Actor, productID string) (domain.Cart, error) {
	return s.update(ctx, actor, func(c *domain.Cart) error {
		c.RemoveItem(strings.TrimSpace(productID))
		return nil
	})
}

// Clear очищает корзину.
func (s *Service) Clear(ctx context.Context, actor domain.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	mu := s.lock(actor.ID)
	defer mu.Unlock()

	if err := s.store.Delete(ctx, actor.ID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Checkout оформляет заказ из корзины и очищает её после сохранения заказа.
func (s *Service) Checkout(ctx context.Context, actor domain.Actor, cmd CheckoutCommand) (domain.Order, error) {
	if err := requireActor(actor); err != nil {
		return domain.Order{}, err
	}
	mu := s.lock(actor.ID)
	defer mu.Unlock()

	cart, err := s.store.Get(ctx, actor.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load cart: %w", err)
	}
	if cart.Empty() {
		return domain.Order{}, domain.NewValidationError("items")
	}

	items := make([]orders.ItemRequest, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, orders.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := s.orders.CreateOrder(ctx, orders.CreateOrderCommand{
		UserID:       actor.ID,
		Items:        items,
		CustomerInfo: cmd.CustomerInfo,
		PaymentInfo:  cmd.PaymentInfo,
		Notes:        cmd.Notes,
	}, actor)
	if err != nil {
		return domain.Order{}, err
	}

	// Заказ уже сохранён: ошибка очистки корзины не отменяет оформление.
	if err := s.store.Delete(ctx, actor.ID); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"user_id":  actor.ID,
			"order_id": order.ID,
		}).Warn("failed to clear cart after checkout")
	}

	return order, nil
}

func (s *Service) update(ctx context.Context, actor domain.Actor, mutate func(*domain.Cart) error) (domain.Cart, error) {
	if err := requireActor(actor); err != nil {
		return domain.Cart{}, err
	}
	mu := s.lock(actor.ID)
	defer mu.Unlock()

	cart, err := s.store.Get(ctx, actor.ID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load cart: %w", err)
	}
	cart.UserID = actor.ID
	if err := mutate(&cart); err != nil {
		return domain.Cart{}, err
	}
	cart.UpdatedAt = s.now().UTC()

	if err := s.store.Save(ctx, cart); err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	return cart, nil
}

func (s *Service) lock(userID string) *sync.Mutex {
	mu := &s.locks[lockStripe(userID)]
	mu.Lock()
	return mu
}

func lockStripe(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % lockStripes)
}

func requireActor(actor domain.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return domain.ErrUnauthenticated
	}
	return nil
}
