package repository

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
)

var _ domrepo.Catalog = (*StaticCatalog)(nil)

// StaticCatalog is an immutable product list preserving file order.
type StaticCatalog struct {
	products []models.CatalogProduct
	byID     map[string]int
	byName   map[string]string
}

type catalogFile struct {
	Products []models.CatalogProduct `yaml:"products"`
}

// LoadCatalogFile parses a YAML catalog.
func LoadCatalogFile(path string) (*StaticCatalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewStaticCatalog(f.Products)
}

// NewStaticCatalog validates ids (non-empty, unique) and ratings (0..5).
func NewStaticCatalog(products []models.CatalogProduct) (*StaticCatalog, error) {
	c := &StaticCatalog{
		products: make([]models.CatalogProduct, len(products)),
		byID:     make(map[string]int, len(products)),
		byName:   make(map[string]string, len(products)),
	}
	copy(c.products, products)
	for i, p := range c.products {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog entry %d: empty id", i)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %s", i, p.ID)
		}
		if p.Rating < 0 || p.Rating > 5 {
			return nil, fmt.Errorf("catalog entry %s: rating %.1f outside 0..5", p.ID, p.Rating)
		}
		c.byID[p.ID] = i
		c.byName[p.Name] = p.ID
	}
	return c, nil
}

// Products returns a copy of the catalog in file order.
func (c *StaticCatalog) Products() []models.CatalogProduct {
	out := make([]models.CatalogProduct, len(c.products))
	copy(out, c.products)
	return out
}

func (c *StaticCatalog) Product(id string) (models.CatalogProduct, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.CatalogProduct{}, false
	}
	return c.products[i], true
}

// ResolveName maps a display name to its id; usable as a NameResolver.
func (c *StaticCatalog) ResolveName(name string) (string, bool) {
	id, ok := c.byName[name]
	return id, ok
}
