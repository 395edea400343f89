package domain

// orderTransitions — допустимые переходы статусов. Терминальные статусы не имеют исходящих рёбер.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  nil,
	OrderStatusCancelled:  nil,
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// CanTransition проверяет переход по таблице. Переход в тот же статус не допускается.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions возвращает копию списка допустимых следующих статусов.
func AllowedTransitions(from OrderStatus) []OrderStatus {
	return append([]OrderStatus(nil), orderTransitions[from]...)
}
