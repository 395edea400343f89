// Package catalog хранит неизменяемый список товаров с доверенными ценами.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

//go:embed products.yaml
var defaultProducts []byte

type fileProduct struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Price    int64  `yaml:"price"`
	Currency string `yaml:"currency"`
}

type file struct {
	Products []fileProduct `yaml:"products"`
}

// Catalog — статический каталог, неизменяемый после создания.
type Catalog struct {
	products []domain.Product
	byID     map[string]domain.Product
}

// Default возвращает встроенный каталог.
func Default() *Catalog {
	c, err := Parse(defaultProducts)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded products are invalid: %v", err))
	}
	return c
}

// Load читает каталог из YAML-файла; пустой путь означает встроенный каталог.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return c, nil
}

// Parse разбирает YAML и проверяет записи.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	products := make([]domain.Product, 0, len(f.Products))
	for _, p := range f.Products {
		products = append(products, domain.Product{
			ID:       strings.TrimSpace(p.ID),
			Name:     strings.TrimSpace(p.Name),
			Price:    p.Price,
			Currency: strings.ToUpper(strings.TrimSpace(p.Currency)),
		})
	}
	return New(products)
}

// New строит каталог из списка товаров, сохраняя их порядок.
func New(products []domain.Product) (*Catalog, error) {
	if len(products) == 0 {
		return nil, errors.New("catalog is empty")
	}

	c := &Catalog{
		products: make([]domain.Product, 0, len(products)),
		byID:     make(map[string]domain.Product, len(products)),
	}
	for i, p := range products {
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("product #%d: id is required", i)
		case p.Name == "":
			return nil, fmt.Errorf("product %s: name is required", p.ID)
		case p.Price < 0:
			return nil, fmt.Errorf("product %s: price must be non-negative", p.ID)
		case p.Currency == "":
			return nil, fmt.Errorf("product %s: currency is required", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("product %s: duplicate id", p.ID)
		}
		c.byID[p.ID] = p
		c.products = append(c.products, p)
	}
	return c, nil
}

// ListProducts возвращает копию списка товаров.
func (c *Catalog) ListProducts() []domain.Product {
	return append([]domain.Product(nil), c.products...)
}

// Lookup ищет товар по идентификатору.
func (c *Catalog) Lookup(id string) (domain.Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

var _ domain.Catalog = (*Catalog)(nil)
