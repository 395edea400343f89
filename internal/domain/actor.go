package domain

// Actor — подтверждённая личность, от имени которой выполняется операция.
type Actor struct {
	ID      string
	Email   string
	IsAdmin bool
}

// IsOwner проверяет, что актор владеет заказом.
func (a Actor) IsOwner(order Order) bool {
	return order.OwnedBy(a.ID)
}

// CanRead сообщает, может ли актор видеть заказ.
func (a Actor) CanRead(order Order) bool {
	return a.IsAdmin || a.IsOwner(order)
}
