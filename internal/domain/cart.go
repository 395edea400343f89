package domain

import "time"

// CartEventItemAdded — событие для UI после добавления товара.
const CartEventItemAdded = "item_added"

// CartEvent — временное событие корзины, нигде не сохраняется.
type CartEvent struct {
	Type        string
	ProductID   string
	ProductName string
	Quantity    int32
}

// Cart накапливает выбранные товары до оформления заказа.
type Cart struct {
	UserID    string
	Items     []OrderItem
	Currency  string
	UpdatedAt time.Time
}

// AddItem увеличивает количество существующей позиции на 1 или добавляет новую.
func (c *Cart) AddItem(product Product) CartEvent {
	if c.Currency == "" {
		c.Currency = product.Currency
	}

	idx := c.indexOf(product.ID)
	if idx < 0 {
		c.Items = append(c.Items, OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
		})
		idx = len(c.Items) - 1
	}

	c.Items[idx].Quantity++
	c.Items[idx].Recalculate()

	return CartEvent{
		Type:        CartEventItemAdded,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    c.Items[idx].Quantity,
	}
}

// SetQuantity задаёт количество; quantity <= 0 удаляет позицию. Неизвестный товар игнорируется.
func (c *Cart) SetQuantity(productID string, quantity int32) {
	idx := c.indexOf(productID)
	if idx < 0 {
		return
	}
	if quantity <= 0 {
		c.removeAt(idx)
		return
	}
	c.Items[idx].Quantity = quantity
	c.Items[idx].Recalculate()
}

// RemoveItem удаляет позицию, если она есть.
func (c *Cart) RemoveItem(productID string) {
	if idx := c.indexOf(productID); idx >= 0 {
		c.removeAt(idx)
	}
}

// Total возвращает сумму позиций; для пустой корзины 0.
func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.TotalPrice
	}
	return total
}

// Empty сообщает, что в корзине нет позиций.
func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}

// Clone возвращает копию корзины без общих слайсов.
func (c Cart) Clone() Cart {
	c.Items = append([]OrderItem(nil), c.Items...)
	return c
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	if len(c.Items) == 0 {
		c.Currency = ""
	}
}
