package domain

import (
	"context"
	"time"
)

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	// UserID — пусто для административной выборки по всем клиентам.
	UserID string
	// Status — пусто, если фильтр по статусу не нужен.
	Status OrderStatus
	Limit  int
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderVersionConflict, если ID уже занят.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы от новых к старым.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// Save сохраняет заказ, если в хранилище та же Version, и увеличивает её на 1.
	Save(ctx context.Context, order Order) error
}

// CartStore хранит корзины пользователей между запросами.
type CartStore interface {
	// Get возвращает корзину пользователя; отсутствующая корзина возвращается пустой, без ошибки.
	Get(ctx context.Context, userID string) (Cart, error)
	Save(ctx context.Context, cart Cart) error
	Delete(ctx context.Context, userID string) error
}

// OutboxPublisher доставляет сообщение из outbox во внешний мир.
type OutboxPublisher interface {
	// Publish должен быть идемпотентным: сообщение может прийти повторно.
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
