package domain

// Product — позиция каталога. Создаётся только конфигурацией.
type Product struct {
	ID   string
	Name string
	// Price в целых единицах валюты (FCFA не имеет дробной части).
	Price    int64
	Currency string
}

// Catalog отдаёт доверенные цены для корзины и фабрики заказов.
type Catalog interface {
	ListProducts() []Product
	Lookup(id string) (Product, bool)
}
