package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

// ValidateCustomerInfo возвращает пути незаполненных или некорректных полей.
func ValidateCustomerInfo(info CustomerInfo) []string {
	required := []struct {
		field string
		value string
	}{
		{"customerInfo.firstName", info.FirstName},
		{"customerInfo.lastName", info.LastName},
		{"customerInfo.email", info.Email},
		{"customerInfo.phone", info.Phone},
		{"customerInfo.address", info.Address},
		{"customerInfo.city", info.City},
	}

	var fields []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			fields = append(fields, r.field)
		}
	}
	if strings.TrimSpace(info.Email) != "" {
		if _, err := mail.ParseAddress(info.Email); err != nil {
			fields = append(fields, "customerInfo.email")
		}
	}
	return fields
}

// ValidatePaymentInfo проверяет выбранный способ оплаты.
func ValidatePaymentInfo(info PaymentInfo) []string {
	var fields []string
	if !info.Method.Valid() {
		fields = append(fields, "paymentInfo.method")
	}
	if info.Status != "" && !info.Status.Valid() {
		fields = append(fields, "paymentInfo.status")
	}
	return fields
}

// ItemField возвращает путь поля позиции для ValidationError.
func ItemField(index int, name string) string {
	return fmt.Sprintf("items[%d].%s", index, name)
}

// NormalizeCustomerInfo обрезает пробелы по краям полей.
func NormalizeCustomerInfo(info CustomerInfo) CustomerInfo {
	return CustomerInfo{
		FirstName: strings.TrimSpace(info.FirstName),
		LastName:  strings.TrimSpace(info.LastName),
		Email:     strings.TrimSpace(info.Email),
		Phone:     strings.TrimSpace(info.Phone),
		Address:   strings.TrimSpace(info.Address),
		City:      strings.TrimSpace(info.City),
		Notes:     strings.TrimSpace(info.Notes),
	}
}
