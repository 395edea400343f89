package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

const (
	defaultDialTimeout = 10 * time.Second
	opTimeout          = 5 * time.Second

	envEmulatorHost = "FIRESTORE_EMULATOR_HOST"

	collectionOrders      = "orders"
	collectionTimeline    = "timeline"
	collectionOutbox      = "outbox_messages"
	collectionIdempotency = "idempotency_keys"
)

// ErrProviderClosed возвращается после Close.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Config — параметры подключения к Firestore.
type Config struct {
	ProjectID string
	// CredentialsFile — путь к ключу сервисного аккаунта; пусто — ADC.
	CredentialsFile string
	// EmulatorHost — адрес эмулятора; пусто — берётся FIRESTORE_EMULATOR_HOST.
	EmulatorHost string
}

// Provider лениво создаёт общий клиент Firestore.
type Provider struct {
	cfg         Config
	dialTimeout time.Duration

	mu     sync.Mutex
	client *firestore.Client
	closed bool
}

// NewProvider не обращается к сети: клиент создаётся при первом запросе.
func NewProvider(cfg Config) *Provider {
	return &Provider{cfg: cfg, dialTimeout: defaultDialTimeout}
}

// Client возвращает клиент, создавая его при необходимости.
func (p *Provider) Client(ctx context.Context) (*firestore.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProviderClosed
	}
	if p.client != nil {
		return p.client, nil
	}

	client, err := p.createClient(ctx)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

func (p *Provider) createClient(ctx context.Context) (*firestore.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	projectID := strings.TrimSpace(p.cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}

	var opts []option.ClientOption
	if host := p.emulatorHost(); host != "" {
		opts = append(opts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	} else if file := strings.TrimSpace(p.cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w: %w", domain.ErrPersistence, err)
	}
	return client, nil
}

// Ping читает один документ заказов, проверяя доступность базы и прав.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := client.Collection(collectionOrders).Limit(1).Documents(ctx).GetAll(); err != nil {
		return translate("ping", err, nil)
	}
	return nil
}

// Close закрывает клиент; повторное использование Provider невозможно.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *Provider) emulatorHost() string {
	if host := strings.TrimSpace(p.cfg.EmulatorHost); host != "" {
		return host
	}
	return strings.TrimSpace(os.Getenv(envEmulatorHost))
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}
