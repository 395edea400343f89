package domain

import "time"

const (
	TimelineOrderCreated       = "OrderCreated"
	TimelineOrderEdited        = "OrderEdited"
	TimelineOrderStatusChanged = "OrderStatusChanged"
	TimelineOrderCancelled     = "OrderCancelled"
	// TimelineOrderStatusForced — административный обход таблицы переходов.
	TimelineOrderStatusForced = "OrderStatusForced"
	TimelinePaymentUpdated    = "PaymentStatusUpdated"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID    string
	Type       string
	ActorID    string
	FromStatus OrderStatus
	ToStatus   OrderStatus
	Reason     string
	Occurred   time.Time
}
