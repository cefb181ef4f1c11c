package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidSettings is returned by Settings.Validate.
var ErrInvalidSettings = errors.New("invalid settings")

// Default stock sheet used for materials missing from the catalog.
const (
	DefaultStockWidth  = 2440.0
	DefaultStockHeight = 1220.0
	DefaultKerfWidth   = 3.2
	DefaultCurrency    = "EUR"
)

// StockMaterial describes the stock sheet available for one material.
type StockMaterial struct {
	Width     float64 `json:"width" yaml:"width"`         // mm
	Height    float64 `json:"height" yaml:"height"`       // mm
	Thickness float64 `json:"thickness" yaml:"thickness"` // mm
	Price     float64 `json:"price" yaml:"price"`         // Per sheet; reporting only
	Currency  string  `json:"currency" yaml:"currency"`   // Reporting only
}

// Settings holds the nesting configuration passed with each solve.
type Settings struct {
	KerfWidth      float64                  `json:"kerf_width" yaml:"kerf_width"`           // Blade width in mm, >= 0
	AllowRotation  bool                     `json:"allow_rotation" yaml:"allow_rotation"`   // Global default for grain-free parts
	StockMaterials map[string]StockMaterial `json:"stock_materials" yaml:"stock_materials"` // Material name -> stock sheet
}

func DefaultSettings() Settings {
	return Settings{
		KerfWidth:      DefaultKerfWidth,
		AllowRotation:  true,
		StockMaterials: map[string]StockMaterial{},
	}
}

// Stock returns the stock definition for a material.
func (s Settings) Stock(material string) (StockMaterial, bool) {
	sm, ok := s.StockMaterials[material]
	return sm, ok
}

// Normalize returns a copy with recoverable problems fixed, plus a warning
// for each fix. A negative kerf is clamped to zero.
func (s Settings) Normalize() (Settings, []Warning) {
	var warnings []Warning
	out := s
	out.StockMaterials = make(map[string]StockMaterial, len(s.StockMaterials))
	for name, sm := range s.StockMaterials {
		if sm.Currency == "" {
			sm.Currency = DefaultCurrency
		}
		out.StockMaterials[name] = sm
	}
	if out.KerfWidth < 0 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("negative kerf width %.2f mm clamped to 0", s.KerfWidth)})
		out.KerfWidth = 0
	}
	return out, warnings
}

// Validate reports stock entries that can never hold a part.
func (s Settings) Validate() error {
	names := make([]string, 0, len(s.StockMaterials))
	for name := range s.StockMaterials {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		sm := s.StockMaterials[name]
		if sm.Width <= 0 || sm.Height <= 0 {
			errs = append(errs, fmt.Errorf("%w: stock %q must have positive width and height (got %gx%g)",
				ErrInvalidSettings, name, sm.Width, sm.Height))
		}
		if sm.Thickness < 0 || sm.Price < 0 {
			errs = append(errs, fmt.Errorf("%w: stock %q has negative thickness or price", ErrInvalidSettings, name))
		}
	}
	return errors.Join(errs...)
}

// EnsureStock returns a copy of the settings in which every material used by
// parts has a stock entry. Missing materials get the default 2440x1220 sheet
// with the thickness of their first part.
func (s Settings) EnsureStock(parts PartsByMaterial) (Settings, []string) {
	out := s
	out.StockMaterials = make(map[string]StockMaterial, len(s.StockMaterials)+len(parts))
	for name, sm := range s.StockMaterials {
		out.StockMaterials[name] = sm
	}

	var added []string
	for _, material := range parts.Materials() {
		if _, ok := out.StockMaterials[material]; ok {
			continue
		}
		thickness := 0.0
		if list := parts[material]; len(list) > 0 {
			thickness = list[0].Part.Thickness
		}
		out.StockMaterials[material] = StockMaterial{
			Width:     DefaultStockWidth,
			Height:    DefaultStockHeight,
			Thickness: thickness,
			Currency:  DefaultCurrency,
		}
		added = append(added, material)
	}
	return out, added
}
