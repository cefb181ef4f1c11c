package project

import (
	"path/filepath"
	"sort"

	"github.com/piwi3910/SheetNest/internal/model"
)

// StockCatalog is the user's saved stock sheets, keyed by material name.
type StockCatalog map[string]model.StockMaterial

// DefaultStockPath returns the default file path for the stock catalog.
// This is located at ~/.sheetnest/stock.json.
func DefaultStockPath() string {
	return filepath.Join(DefaultConfigDir(), "stock.json")
}

// SaveStockCatalog writes the catalog to the specified file.
// It creates parent directories if they do not exist.
func SaveStockCatalog(path string, catalog StockCatalog) error {
	return writeFile(path, catalog)
}

// LoadStockCatalog reads the catalog from the specified file.
// If the file does not exist, it returns an empty catalog.
func LoadStockCatalog(path string) (StockCatalog, error) {
	catalog := StockCatalog{}
	if _, err := readFile(path, &catalog); err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = StockCatalog{}
	}
	return catalog, nil
}

// Names returns the catalog's material names in sorted order.
func (c StockCatalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyTo returns a copy of settings with catalog entries added for every
// material the settings do not already define. Entries in the settings win.
// The names of the added materials are returned in sorted order.
func (c StockCatalog) ApplyTo(settings model.Settings) (model.Settings, []string) {
	out := settings
	out.StockMaterials = make(map[string]model.StockMaterial, len(settings.StockMaterials)+len(c))
	for name, sm := range settings.StockMaterials {
		out.StockMaterials[name] = sm
	}

	var added []string
	for _, name := range c.Names() {
		if _, ok := out.StockMaterials[name]; ok {
			continue
		}
		out.StockMaterials[name] = c[name]
		added = append(added, name)
	}
	return out, added
}

// Merge returns the union of two catalogs. Materials already present in c are
// kept; only new names are taken from imported.
func (c StockCatalog) Merge(imported StockCatalog) StockCatalog {
	merged := make(StockCatalog, len(c)+len(imported))
	for name, sm := range c {
		merged[name] = sm
	}
	for name, sm := range imported {
		if _, ok := merged[name]; !ok {
			merged[name] = sm
		}
	}
	return merged
}
