package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, клиент ещё может его изменить или отменить.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing — заказ принят в работу (производство карты, печать наклеек).
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusDelivered — заказ передан клиенту.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён клиентом или администратором.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ProductID string
	// ProductName — снимок названия на момент заказа.
	ProductName string
	Quantity    int32
	// UnitPrice — снимок цены каталога в целых единицах валюты.
	UnitPrice  int64
	TotalPrice int64
}

// Recalculate пересчитывает TotalPrice позиции.
func (i *OrderItem) Recalculate() {
	i.TotalPrice = int64(i.Quantity) * i.UnitPrice
}

// CustomerInfo — контактные данные и адрес доставки.
type CustomerInfo struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	City      string
	// Notes — комментарий клиента к доставке.
	Notes string
}

// FullName возвращает имя для писем.
func (c CustomerInfo) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID string
	// OrderNumber — человекочитаемый номер для поддержки, не уникальный ключ.
	OrderNumber        string
	UserID             string
	Items              []OrderItem
	TotalAmount        int64
	Currency           string
	Status             OrderStatus
	CancellationReason string
	CustomerInfo       CustomerInfo
	PaymentInfo        PaymentInfo
	// Notes — служебная заметка к заказу, отдельная от CustomerInfo.Notes.
	Notes     string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recalculate пересчитывает суммы позиций и итог заказа.
func (o *Order) Recalculate() {
	var total int64
	for i := range o.Items {
		o.Items[i].Recalculate()
		total += o.Items[i].TotalPrice
	}
	o.TotalAmount = total
}

// CanCustomerModify сообщает, может ли владелец ещё менять или отменять заказ.
func (o *Order) CanCustomerModify() bool {
	return o.Status == OrderStatusPending
}

// OwnedBy проверяет владельца заказа.
func (o *Order) OwnedBy(userID string) bool {
	return userID != "" && o.UserID == userID
}

// StoredTime приводит время к UTC с точностью timestamptz (микросекунды),
// чтобы возвращённый заказ совпадал с перечитанным из хранилища.
func StoredTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Touch сдвигает UpdatedAt вперёд. Если часы не ушли дальше предыдущего
// значения, время увеличивается на микросекунду.
func (o *Order) Touch(now time.Time) {
	now = StoredTime(now)
	if !now.After(o.UpdatedAt) {
		now = o.UpdatedAt.Add(time.Microsecond)
	}
	o.UpdatedAt = now
}

// Clone возвращает копию заказа без общих слайсов.
func (o Order) Clone() Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	return o
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalAmount < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusUnknown)
	}

	// Сверяем сумму заказа с суммой позиций: quantity * unitPrice.
	var calc int64
	for _, item := range o.Items {
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.TotalPrice != int64(item.Quantity)*item.UnitPrice {
			errs = append(errs, ErrItemTotalMismatch)
		}
		calc += item.TotalPrice
	}
	if calc != o.TotalAmount {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
