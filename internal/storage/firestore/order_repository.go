package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

type orderItemDoc struct {
	ProductID   string `firestore:"product_id"`
	ProductName string `firestore:"product_name"`
	Quantity    int64  `firestore:"quantity"`
	UnitPrice   int64  `firestore:"unit_price"`
	TotalPrice  int64  `firestore:"total_price"`
}

type customerDoc struct {
	FirstName string `firestore:"first_name"`
	LastName  string `firestore:"last_name"`
	Email     string `firestore:"email"`
	Phone     string `firestore:"phone"`
	Address   string `firestore:"address"`
	City      string `firestore:"city"`
	Notes     string `firestore:"notes"`
}

type paymentDoc struct {
	Method      string `firestore:"method"`
	Provider    string `firestore:"provider"`
	PhoneNumber string `firestore:"phone_number"`
	Status      string `firestore:"status"`
}

// orderDoc — документ коллекции orders. ID документа совпадает с ID заказа.
type orderDoc struct {
	OrderNumber        string         `firestore:"order_number"`
	UserID             string         `firestore:"user_id"`
	Items              []orderItemDoc `firestore:"items"`
	TotalAmount        int64          `firestore:"total_amount"`
	Currency           string         `firestore:"currency"`
	Status             string         `firestore:"status"`
	CancellationReason string         `firestore:"cancellation_reason"`
	Customer           customerDoc    `firestore:"customer_info"`
	Payment            paymentDoc     `firestore:"payment_info"`
	Notes              string         `firestore:"notes"`
	Version            int64          `firestore:"version"`
	CreatedAt          time.Time      `firestore:"created_at"`
	UpdatedAt          time.Time      `firestore:"updated_at"`
}

type orderRepository struct {
	provider *Provider
}

// NewOrderRepository создаёт Firestore-реализацию OrderRepository.
func NewOrderRepository(provider *Provider) domain.OrderRepository {
	return &orderRepository{provider: provider}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if order.Version == 0 {
		order.Version = 1
	}
	_, err = client.Collection(collectionOrders).Doc(order.ID).Create(ctx, toOrderDoc(order))
	return translate("create order", err, nil)
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	snap, err := client.Collection(collectionOrders).Doc(id).Get(ctx)
	if err != nil {
		return domain.Order{}, translate("get order", err, domain.ErrOrderNotFound)
	}
	return decodeOrder(snap)
}

// List требует составных индексов (user_id, created_at) и (status, created_at).
func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := client.Collection(collectionOrders).Query
	if filter.UserID != "" {
		query = query.Where("user_id", "==", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status", "==", string(filter.Status))
	}
	query = query.OrderBy("created_at", firestore.Desc)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, translate("list orders", err, nil)
	}

	orders := make([]domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		order, err := decodeOrder(snap)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// Save выполняет compare-and-swap по version внутри транзакции.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	ref := client.Collection(collectionOrders).Doc(order.ID)
	err = client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrOrderNotFound
			}
			return err
		}

		var current orderDoc
		if err := snap.DataTo(&current); err != nil {
			return err
		}
		if current.Version != order.Version {
			return domain.ErrOrderVersionConflict
		}

		doc := toOrderDoc(order)
		doc.Version = order.Version + 1
		doc.CreatedAt = current.CreatedAt
		return tx.Set(ref, doc)
	})
	return translate("save order", err, domain.ErrOrderNotFound)
}

func toOrderDoc(order domain.Order) orderDoc {
	items := make([]orderItemDoc, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDoc{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    int64(item.Quantity),
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}
	c := order.CustomerInfo
	return orderDoc{
		OrderNumber:        order.OrderNumber,
		UserID:             order.UserID,
		Items:              items,
		TotalAmount:        order.TotalAmount,
		Currency:           order.Currency,
		Status:             string(order.Status),
		CancellationReason: order.CancellationReason,
		Customer: customerDoc{
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Email:     c.Email,
			Phone:     c.Phone,
			Address:   c.Address,
			City:      c.City,
			Notes:     c.Notes,
		},
		Payment: paymentDoc{
			Method:      string(order.PaymentInfo.Method),
			Provider:    order.PaymentInfo.Provider,
			PhoneNumber: order.PaymentInfo.PhoneNumber,
			Status:      string(order.PaymentInfo.Status),
		},
		Notes:     order.Notes,
		Version:   order.Version,
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
}

func decodeOrder(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, translate("decode order "+snap.Ref.ID, err, nil)
	}

	items := make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    int32(item.Quantity),
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
		})
	}
	c := doc.Customer
	return domain.Order{
		ID:                 snap.Ref.ID,
		OrderNumber:        doc.OrderNumber,
		UserID:             doc.UserID,
		Items:              items,
		TotalAmount:        doc.TotalAmount,
		Currency:           doc.Currency,
		Status:             domain.OrderStatus(doc.Status),
		CancellationReason: doc.CancellationReason,
		CustomerInfo: domain.CustomerInfo{
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Email:     c.Email,
			Phone:     c.Phone,
			Address:   c.Address,
			City:      c.City,
			Notes:     c.Notes,
		},
		PaymentInfo: domain.PaymentInfo{
			Method:      domain.PaymentMethod(doc.Payment.Method),
			Provider:    doc.Payment.Provider,
			PhoneNumber: doc.Payment.PhoneNumber,
			Status:      domain.PaymentStatus(doc.Payment.Status),
		},
		Notes:     doc.Notes,
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
