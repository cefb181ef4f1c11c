// Package cachekey derives the deterministic cache key of a solve request.
package cachekey

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/piwi3910/SheetNest/internal/model"
)

// EmptyPrefix starts every key generated for requests without any pieces.
const EmptyPrefix = "empty-"

const domain = "sheetnest/solve/v1\x00"

type canonicalPart struct {
	Name        string  `json:"name"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Thickness   float64 `json:"thickness"`
	Quantity    int     `json:"quantity"`
	Grain       string  `json:"grain"`
	EdgeBanding string  `json:"edge_banding"`
}

type canonicalMaterial struct {
	Material string          `json:"material"`
	Parts    []canonicalPart `json:"parts"`
}

type canonicalStock struct {
	Material  string  `json:"material"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Thickness float64 `json:"thickness"`
}

type canonicalSettings struct {
	KerfWidth     float64          `json:"kerf_width"`
	AllowRotation bool             `json:"allow_rotation"`
	Stock         []canonicalStock `json:"stock"`
}

type canonicalRequest struct {
	Parts    []canonicalMaterial `json:"parts"`
	Settings canonicalSettings   `json:"settings"`
}

// Key returns the hex BLAKE2b-256 digest of the canonical form of parts and
// settings. Map iteration order, part order and stock pricing do not affect
// the key. A request with no pieces gets a unique "empty-" key instead.
func Key(parts model.PartsByMaterial, settings model.Settings) string {
	req := canonicalRequest{
		Parts:    canonicalParts(parts),
		Settings: canonicalizeSettings(settings),
	}
	if len(req.Parts) == 0 {
		return emptyKey()
	}

	data, err := json.Marshal(req)
	if err != nil {
		// Only plain strings, numbers and bools are encoded; NaN or Inf
		// dimensions are the one way to get here.
		return emptyKey()
	}

	h, _ := blake2b.New256(nil)
	h.Write([]byte(domain))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// IsEmpty reports whether key was generated for a request without pieces.
func IsEmpty(key string) bool {
	return strings.HasPrefix(key, EmptyPrefix)
}

func emptyKey() string {
	return fmt.Sprintf("%s%d-%s", EmptyPrefix, time.Now().UnixNano(), uuid.NewString())
}

func canonicalParts(parts model.PartsByMaterial) []canonicalMaterial {
	var out []canonicalMaterial
	for _, material := range parts.Materials() {
		var list []canonicalPart
		for _, pq := range parts[material] {
			if pq.Quantity <= 0 {
				continue
			}
			list = append(list, canonicalPart{
				Name:        pq.Part.Name,
				Width:       pq.Part.Width,
				Height:      pq.Part.Height,
				Thickness:   pq.Part.Thickness,
				Quantity:    pq.Quantity,
				Grain:       pq.Part.Grain.String(),
				EdgeBanding: string(pq.Part.EdgeBanding.Canonical()),
			})
		}
		if len(list) == 0 {
			continue
		}
		sort.Slice(list, func(i, j int) bool { return lessPart(list[i], list[j]) })
		out = append(out, canonicalMaterial{Material: material, Parts: list})
	}
	return out
}

func lessPart(a, b canonicalPart) bool {
	switch {
	case a.Name != b.Name:
		return a.Name < b.Name
	case a.Width != b.Width:
		return a.Width < b.Width
	case a.Height != b.Height:
		return a.Height < b.Height
	case a.Thickness != b.Thickness:
		return a.Thickness < b.Thickness
	case a.Quantity != b.Quantity:
		return a.Quantity < b.Quantity
	case a.Grain != b.Grain:
		return a.Grain < b.Grain
	}
	return a.EdgeBanding < b.EdgeBanding
}

func canonicalizeSettings(settings model.Settings) canonicalSettings {
	normalized, _ := settings.Normalize()

	names := make([]string, 0, len(normalized.StockMaterials))
	for name := range normalized.StockMaterials {
		names = append(names, name)
	}
	sort.Strings(names)

	stock := make([]canonicalStock, 0, len(names))
	for _, name := range names {
		sm := normalized.StockMaterials[name]
		stock = append(stock, canonicalStock{
			Material:  name,
			Width:     sm.Width,
			Height:    sm.Height,
			Thickness: sm.Thickness,
		})
	}

	return canonicalSettings{
		KerfWidth:     normalized.KerfWidth,
		AllowRotation: normalized.AllowRotation,
		Stock:         stock,
	}
}
