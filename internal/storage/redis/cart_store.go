package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

const (
	keyPrefix      = "qrpro:cart:"
	defaultCartTTL = 7 * 24 * time.Hour
	opTimeout      = 2 * time.Second
)

// Options — параметры подключения.
type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL продлевается при каждом сохранении корзины.
	TTL time.Duration
}

// CartStore хранит корзины в Redis одной JSON-строкой на пользователя.
type CartStore struct {
	client *goredis.Client
	ttl    time.Duration
}

type cartItemJSON struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	TotalPrice  int64  `json:"totalPrice"`
}

type cartJSON struct {
	Items     []cartItemJSON `json:"items"`
	Currency  string         `json:"currency"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Open подключается и проверяет соединение через PING.
func Open(ctx context.Context, opts Options) (*CartStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w: %w", opts.Addr, domain.ErrPersistence, err)
	}
	return NewCartStore(client, opts.TTL), nil
}

// NewCartStore оборачивает готовый клиент; при ttl <= 0 используется неделя.
func NewCartStore(client *goredis.Client, ttl time.Duration) *CartStore {
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &CartStore{client: client, ttl: ttl}
}

func (s *CartStore) Get(ctx context.Context, userID string) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, domain.ErrUserRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Cart{UserID: userID}, nil
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w: %w", domain.ErrPersistence, err)
	}

	var stored cartJSON
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart %s: %w", userID, err)
	}

	cart := domain.Cart{
		UserID:    userID,
		Currency:  stored.Currency,
		UpdatedAt: stored.UpdatedAt.UTC(),
		Items:     make([]domain.OrderItem, 0, len(stored.Items)),
	}
	for _, item := range stored.Items {
		cart.Items = append(cart.Items, domain.OrderItem(item))
	}
	return cart, nil
}

func (s *CartStore) Save(ctx context.Context, cart domain.Cart) error {
	if strings.TrimSpace(cart.UserID) == "" {
		return domain.ErrUserRequired
	}

	stored := cartJSON{
		Currency:  cart.Currency,
		UpdatedAt: cart.UpdatedAt.UTC(),
		Items:     make([]cartItemJSON, 0, len(cart.Items)),
	}
	for _, item := range cart.Items {
		stored.Items = append(stored.Items, cartItemJSON(item))
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, cartKey(cart.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save cart: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (s *CartStore) Delete(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}

// Ping используется health-проверкой.
func (s *CartStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (s *CartStore) Close() error {
	return s.client.Close()
}

func cartKey(userID string) string {
	return keyPrefix + userID
}

var _ domain.CartStore = (*CartStore)(nil)
