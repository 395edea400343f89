package orders

import "github.com/vladislavdragonenkov/qrpro/internal/domain"

// ItemRequest — позиция, как её прислал клиент. Цена берётся только из каталога.
type ItemRequest struct {
	ProductID string
	Quantity  int32
}

// CreateOrderCommand — данные для оформления заказа.
type CreateOrderCommand struct {
	// Если UserID пустой, заказ оформляется на самого актора.
	UserID       string
	Items        []ItemRequest
	CustomerInfo domain.CustomerInfo
	PaymentInfo  domain.PaymentInfo
	Notes        string
}

// EditOrderCommand заменяет контактные данные, позиции и заметку заказа.
type EditOrderCommand struct {
	OrderID         string
	CustomerInfo    domain.CustomerInfo
	Items           []ItemRequest
	Notes           string
	ExpectedVersion int64
}

// CancelOrderCommand — отмена с обязательной причиной.
type CancelOrderCommand struct {
	OrderID         string
	Reason          string
	ExpectedVersion int64
}

// SetStatusCommand — переход статуса по таблице.
type SetStatusCommand struct {
	OrderID         string
	Status          domain.OrderStatus
	Reason          string
	ExpectedVersion int64
}

// ForceStatusCommand — административный обход таблицы переходов.
type ForceStatusCommand struct {
	OrderID string
	Status  domain.OrderStatus
	Reason  string
}

// UpdatePaymentStatusCommand меняет статус оплаты.
type UpdatePaymentStatusCommand struct {
	OrderID         string
	Status          domain.PaymentStatus
	ExpectedVersion int64
}

// ListOrdersQuery — фильтр административной выборки.
type ListOrdersQuery struct {
	Status domain.OrderStatus
	Limit  int
}

// ExpectedVersion 0 означает «без проверки».
func versionMismatch(expected int64, order domain.Order) bool {
	return expected > 0 && expected != order.Version
}
