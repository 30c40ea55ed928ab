// Package catalog supplies the ordered list of demo applications that the
// scoring engine ranks. Item categories are fixed when the catalog is loaded.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/showcase/internal/domain/model"
	"github.com/okian/showcase/pkg/validate"
)

//go:embed catalog.yaml
var embedded []byte

// Catalog is an immutable, ordered set of items. Order is the canonical
// catalog position used by scoring.
type Catalog struct {
	items []model.Item
	index map[string]int
}

// Default returns the embedded demo catalog.
func Default() (*Catalog, error) {
	return Parse(embedded)
}

// Load reads the catalog from a YAML file. An empty path yields Default.
func Load(_ context.Context, path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return load(file.Provider(path))
}

// Parse reads the catalog from a YAML document.
func Parse(doc []byte) (*Catalog, error) {
	return load(bytesProvider(doc))
}

// New builds a catalog from items, validating each one.
func New(items []model.Item) (*Catalog, error) {
	c := &Catalog{
		items: make([]model.Item, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for i, it := range items {
		if err := validate.Struct(it); err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", ErrInvalidCatalog, i, err)
		}
		if _, dup := c.index[it.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate item id %q", ErrInvalidCatalog, it.ID)
		}
		c.index[it.ID] = len(c.items)
		c.items = append(c.items, it)
	}
	return c, nil
}

func load(p koanf.Provider) (*Catalog, error) {
	k := koanf.New(".")
	if err := k.Load(p, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadCatalog, err)
	}
	var items []model.Item
	if err := k.UnmarshalWithConf("items", &items, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadCatalog, err)
	}
	return New(items)
}

// Items returns a copy of the items in catalog order.
func (c *Catalog) Items() []model.Item {
	return slices.Clone(c.items)
}

// Len returns the number of items.
func (c *Catalog) Len() int { return len(c.items) }

// Get returns the item with id.
func (c *Catalog) Get(id string) (model.Item, error) {
	i, ok := c.index[id]
	if !ok {
		return model.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return c.items[i], nil
}

// Category resolves the category of id.
func (c *Catalog) Category(id string) (string, bool) {
	it, err := c.Get(id)
	if err != nil {
		return "", false
	}
	return it.Category, true
}

// bytesProvider feeds an in-memory YAML document to koanf.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) { return b, nil }

func (b bytesProvider) Read() (map[string]any, error) {
	return nil, errors.New("catalog: bytes provider does not support Read")
}
