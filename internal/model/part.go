package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidPart is returned when a part fails validation.
var ErrInvalidPart = errors.New("invalid part")

// Grain represents the grain direction constraint for a part.
type Grain int

const (
	GrainAny    Grain = iota // No grain constraint, can rotate freely
	GrainLength              // Grain runs along the part width (the sheet's long axis)
	GrainWidth               // Grain runs along the part height
)

func (g Grain) String() string {
	switch g {
	case GrainLength:
		return "Length"
	case GrainWidth:
		return "Width"
	default:
		return "Any"
	}
}

// ParseGrain converts a grain direction string to a Grain value.
// It returns false when the string is not recognized.
func ParseGrain(s string) (Grain, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "none", "n", "-":
		return GrainAny, true
	case "length", "l", "horizontal", "h":
		return GrainLength, true
	case "width", "w", "vertical", "v":
		return GrainWidth, true
	default:
		return GrainAny, false
	}
}

func (g Grain) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *Grain) UnmarshalText(text []byte) error {
	parsed, ok := ParseGrain(string(text))
	if !ok {
		return fmt.Errorf("unknown grain direction %q", string(text))
	}
	*g = parsed
	return nil
}

// Orientations returns the rotation flags a part with this grain may take.
// Grain constraints override the global rotation setting.
func (g Grain) Orientations(allowRotation bool) []bool {
	switch g {
	case GrainLength:
		return []bool{false}
	case GrainWidth:
		return []bool{true}
	default:
		if allowRotation {
			return []bool{false, true}
		}
		return []bool{false}
	}
}

// EdgeBanding describes how many edges of a part receive banding.
// It is a reporting attribute only and never constrains placement.
type EdgeBanding string

const (
	BandingNone   EdgeBanding = "None"
	Banding1Edge  EdgeBanding = "1 edge"
	Banding2Edges EdgeBanding = "2 edges"
	Banding4Edges EdgeBanding = "4 edges"
)

// ParseEdgeBanding normalizes user input such as "2", "two edges" or "all".
func ParseEdgeBanding(s string) (EdgeBanding, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "no", "0", "-":
		return BandingNone, true
	case "1", "1 edge", "one edge", "one":
		return Banding1Edge, true
	case "2", "2 edges", "two edges", "two":
		return Banding2Edges, true
	case "4", "4 edges", "four edges", "four", "all":
		return Banding4Edges, true
	default:
		return BandingNone, false
	}
}

// Canonical maps the zero value and loose spellings onto the named constants.
func (e EdgeBanding) Canonical() EdgeBanding {
	if parsed, ok := ParseEdgeBanding(string(e)); ok {
		return parsed
	}
	return e
}

// EdgeCount returns the number of banded edges.
func (e EdgeBanding) EdgeCount() int {
	switch e.Canonical() {
	case Banding1Edge:
		return 1
	case Banding2Edges:
		return 2
	case Banding4Edges:
		return 4
	default:
		return 0
	}
}

// LinearLength returns the banding length in mm for one piece of w x h.
// Single and double banding run along the long side.
func (e EdgeBanding) LinearLength(w, h float64) float64 {
	long := w
	if h > long {
		long = h
	}
	switch e.Canonical() {
	case Banding1Edge:
		return long
	case Banding2Edges:
		return 2 * long
	case Banding4Edges:
		return 2 * (w + h)
	default:
		return 0
	}
}

func (e *EdgeBanding) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseEdgeBanding(s)
	if !ok {
		return fmt.Errorf("unknown edge banding %q", s)
	}
	*e = parsed
	return nil
}

// Part represents a distinct rectangular cut requirement.
type Part struct {
	Name        string      `json:"name" yaml:"name"`
	Width       float64     `json:"width" yaml:"width"`         // mm, along the sheet X axis
	Height      float64     `json:"height" yaml:"height"`       // mm, along the sheet Y axis
	Thickness   float64     `json:"thickness" yaml:"thickness"` // mm
	Material    string      `json:"material" yaml:"material"`
	Grain       Grain       `json:"grain_direction" yaml:"grain_direction"`
	EdgeBanding EdgeBanding `json:"edge_banding" yaml:"edge_banding"`
}

func NewPart(name string, w, h, thickness float64, material string) Part {
	return Part{
		Name:        name,
		Width:       w,
		Height:      h,
		Thickness:   thickness,
		Material:    material,
		Grain:       GrainAny,
		EdgeBanding: BandingNone,
	}
}

// Validate checks the part's dimensional invariants.
func (p Part) Validate() error {
	if p.Width <= 0 || p.Height <= 0 || p.Thickness <= 0 {
		return fmt.Errorf("%w: %q must have positive width, height and thickness (got %gx%gx%g)",
			ErrInvalidPart, p.Name, p.Width, p.Height, p.Thickness)
	}
	if p.Material == "" {
		return fmt.Errorf("%w: %q has no material", ErrInvalidPart, p.Name)
	}
	return nil
}

// Area returns the part's face area in square mm.
func (p Part) Area() float64 {
	return p.Width * p.Height
}

// PartQuantity pairs a part type with the number of pieces required.
type PartQuantity struct {
	Part     Part `json:"part" yaml:"part"`
	Quantity int  `json:"quantity" yaml:"quantity"`
}

// PartsByMaterial groups part demands by material name.
type PartsByMaterial map[string][]PartQuantity

// Materials returns the material names in ascending order. Every consumer
// that needs a deterministic material order goes through this.
func (pm PartsByMaterial) Materials() []string {
	names := make([]string, 0, len(pm))
	for m := range pm {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// TotalQuantity returns the number of pieces requested across all materials.
func (pm PartsByMaterial) TotalQuantity() int {
	total := 0
	for _, list := range pm {
		for _, pq := range list {
			if pq.Quantity > 0 {
				total += pq.Quantity
			}
		}
	}
	return total
}

// GroupByMaterial builds a PartsByMaterial from a flat list, keyed by each
// part's Material.
func GroupByMaterial(items []PartQuantity) PartsByMaterial {
	pm := make(PartsByMaterial)
	for _, it := range items {
		pm[it.Part.Material] = append(pm[it.Part.Material], it)
	}
	return pm
}
