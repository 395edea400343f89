package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
	"github.com/vladislavdragonenkov/qrpro/internal/service/cart"
	"github.com/vladislavdragonenkov/qrpro/internal/service/orders"
)

const maxBodyBytes = 1 << 20

type itemDTO struct {
	ProductID string `json:"productId"`
	Quantity  int32  `json:"quantity"`
}

type customerInfoDTO struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Notes     string `json:"notes,omitempty"`
}

func (c customerInfoDTO) toDomain() domain.CustomerInfo {
	return domain.CustomerInfo(c)
}

type paymentInfoDTO struct {
	Method      string `json:"method"`
	Provider    string `json:"provider,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Status      string `json:"status,omitempty"`
}

func (p paymentInfoDTO) toDomain() domain.PaymentInfo {
	return domain.PaymentInfo{
		Method:      domain.PaymentMethod(p.Method),
		Provider:    p.Provider,
		PhoneNumber: p.PhoneNumber,
		Status:      domain.PaymentStatus(p.Status),
	}
}

type createOrderRequest struct {
	UserID       string          `json:"userId,omitempty"`
	Items        []itemDTO       `json:"items"`
	CustomerInfo customerInfoDTO `json:"customerInfo"`
	PaymentInfo  paymentInfoDTO  `json:"paymentInfo"`
	Notes        string          `json:"notes,omitempty"`
}

func (req createOrderRequest) command() orders.CreateOrderCommand {
	return orders.CreateOrderCommand{
		UserID:       strings.TrimSpace(req.UserID),
		Items:        itemRequests(req.Items),
		CustomerInfo: req.CustomerInfo.toDomain(),
		PaymentInfo:  req.PaymentInfo.toDomain(),
		Notes:        req.Notes,
	}
}

type editOrderRequest struct {
	Items           []itemDTO       `json:"items"`
	CustomerInfo    customerInfoDTO `json:"customerInfo"`
	Notes           string          `json:"notes,omitempty"`
	ExpectedVersion int64           `json:"expectedVersion,omitempty"`
}

type cancelOrderRequest struct {
	Reason          string `json:"reason"`
	ExpectedVersion int64  `json:"expectedVersion,omitempty"`
}

type setStatusRequest struct {
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
	ExpectedVersion int64  `json:"expectedVersion,omitempty"`
}

type forceStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type paymentStatusRequest struct {
	Status          string `json:"status"`
	ExpectedVersion int64  `json:"expectedVersion,omitempty"`
}

type checkoutRequest struct {
	CustomerInfo customerInfoDTO `json:"customerInfo"`
	PaymentInfo  paymentInfoDTO  `json:"paymentInfo"`
	Notes        string          `json:"notes,omitempty"`
}

func (req checkoutRequest) command() cart.CheckoutCommand {
	return cart.CheckoutCommand{
		CustomerInfo: req.CustomerInfo.toDomain(),
		PaymentInfo:  req.PaymentInfo.toDomain(),
		Notes:        req.Notes,
	}
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
}

type setQuantityRequest struct {
	Quantity int32 `json:"quantity"`
}

type orderItemResponse struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	TotalPrice  int64  `json:"totalPrice"`
}

type orderResponse struct {
	ID                 string              `json:"id"`
	OrderNumber        string              `json:"orderNumber"`
	UserID             string              `json:"userId"`
	Items              []orderItemResponse `json:"items"`
	TotalAmount        int64               `json:"totalAmount"`
	Currency           string              `json:"currency"`
	Status             string              `json:"status"`
	CancellationReason string              `json:"cancellationReason,omitempty"`
	CustomerInfo       customerInfoDTO     `json:"customerInfo"`
	PaymentInfo        paymentInfoDTO      `json:"paymentInfo"`
	Notes              string              `json:"notes,omitempty"`
	Version            int64               `json:"version"`
	CanModify          bool                `json:"canModify"`
	AllowedTransitions []string            `json:"allowedTransitions"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

type ordersResponse struct {
	Orders []orderResponse `json:"orders"`
}

type cartResponse struct {
	Items     []orderItemResponse `json:"items"`
	Currency  string              `json:"currency,omitempty"`
	Total     int64               `json:"total"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

type cartEventResponse struct {
	Type        string `json:"type"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int32  `json:"quantity"`
}

type addCartItemResponse struct {
	Cart  cartResponse      `json:"cart"`
	Event cartEventResponse `json:"event"`
}

type productResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}

type productsResponse struct {
	Products []productResponse `json:"products"`
}

type timelineEventResponse struct {
	Type       string    `json:"type"`
	ActorID    string    `json:"actorId,omitempty"`
	FromStatus string    `json:"fromStatus,omitempty"`
	ToStatus   string    `json:"toStatus,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Occurred   time.Time `json:"occurred"`
}

type timelineResponse struct {
	Events []timelineEventResponse `json:"events"`
}

func itemRequests(items []itemDTO) []orders.ItemRequest {
	out := make([]orders.ItemRequest, 0, len(items))
	for _, item := range items {
		out = append(out, orders.ItemRequest{ProductID: strings.TrimSpace(item.ProductID), Quantity: item.Quantity})
	}
	return out
}

func toItemResponses(items []domain.OrderItem) []orderItemResponse {
	out := make([]orderItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, orderItemResponse(item))
	}
	return out
}

func toOrderResponse(order domain.Order) orderResponse {
	allowed := make([]string, 0, 2)
	for _, next := range domain.AllowedTransitions(order.Status) {
		allowed = append(allowed, string(next))
	}
	return orderResponse{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		UserID:             order.UserID,
		Items:              toItemResponses(order.Items),
		TotalAmount:        order.TotalAmount,
		Currency:           order.Currency,
		Status:             string(order.Status),
		CancellationReason: order.CancellationReason,
		CustomerInfo:       customerInfoDTO(order.CustomerInfo),
		PaymentInfo: paymentInfoDTO{
			Method:      string(order.PaymentInfo.Method),
			Provider:    order.PaymentInfo.Provider,
			PhoneNumber: order.PaymentInfo.PhoneNumber,
			Status:      string(order.PaymentInfo.Status),
		},
		Notes:              order.Notes,
		Version:            order.Version,
		CanModify:          order.CanCustomerModify(),
		AllowedTransitions: allowed,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}

func toOrdersResponse(list []domain.Order) ordersResponse {
	out := ordersResponse{Orders: make([]orderResponse, 0, len(list))}
	for _, order := range list {
		out.Orders = append(out.Orders, toOrderResponse(order))
	}
	return out
}

func toCartResponse(c domain.Cart) cartResponse {
	return cartResponse{
		Items:     toItemResponses(c.Items),
		Currency:  c.Currency,
		Total:     c.Total(),
		UpdatedAt: c.UpdatedAt,
	}
}

func toTimelineResponse(events []domain.TimelineEvent) timelineResponse {
	out := timelineResponse{Events: make([]timelineEventResponse, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, timelineEventResponse{
			Type:       e.Type,
			ActorID:    e.ActorID,
			FromStatus: string(e.FromStatus),
			ToStatus:   string(e.ToStatus),
			Reason:     e.Reason,
			Occurred:   e.Occurred,
		})
	}
	return out
}

// decodeJSON читает тело строго: неизвестные поля и мусор после объекта считаются ошибкой валидации.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body: %w", domain.NewValidationError("body"))
		}
		return fmt.Errorf("decode body: %v: %w", err, domain.NewValidationError("body"))
	}
	if dec.More() {
		return fmt.Errorf("trailing data: %w", domain.NewValidationError("body"))
	}
	return nil
}

// queryLimit разбирает ?limit=; пустое значение даёт 0 (лимит по умолчанию сервиса).
func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, domain.NewValidationError("limit")
	}
	return limit, nil
}
