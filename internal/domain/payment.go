package domain

// PaymentMethod — способ оплаты, выбранный клиентом.
type PaymentMethod string

const (
	PaymentMethodWaveDirect     PaymentMethod = "wave_direct"
	PaymentMethodOrangeMoney    PaymentMethod = "orange_money"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodWaveDirect, PaymentMethodOrangeMoney, PaymentMethodCashOnDelivery:
		return true
	default:
		return false
	}
}

// MobileMoney сообщает, что оплата идёт через мобильный кошелёк.
func (m PaymentMethod) MobileMoney() bool {
	return m == PaymentMethodWaveDirect || m == PaymentMethodOrangeMoney
}

// PaymentStatus описывает подтверждение оплаты. Не связан со статусом заказа.
type PaymentStatus string

const (
	// PaymentStatusPending — оплата ещё не подтверждена.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusConfirmed — администратор подтвердил поступление денег.
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	// PaymentStatusFailed — оплата не прошла.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Valid проверяет, что статус оплаты поддерживается.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusConfirmed, PaymentStatusFailed:
		return true
	default:
		return false
	}
}

// PaymentInfo — выбранный способ оплаты и его состояние.
type PaymentInfo struct {
	Method PaymentMethod
	// Provider и PhoneNumber заполняются для мобильных кошельков.
	Provider    string
	PhoneNumber string
	Status      PaymentStatus
}
