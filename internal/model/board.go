package model

import (
	"errors"
	"fmt"
)

// Epsilon is the geometric tolerance in mm used for fit and overlap tests.
const Epsilon = 0.001

// PlacedPart is one physical occurrence of a Part assigned to a board.
type PlacedPart struct {
	InstanceID  int         `json:"instance_id"`
	Name        string      `json:"name"`
	Width       float64     `json:"width"`  // Part type width, before rotation
	Height      float64     `json:"height"` // Part type height, before rotation
	Thickness   float64     `json:"thickness"`
	Material    string      `json:"material"`
	Grain       Grain       `json:"grain_direction"`
	EdgeBanding EdgeBanding `json:"edge_banding"`
	X           float64     `json:"x"` // Position from left edge (mm)
	Y           float64     `json:"y"` // Position from top edge (mm)
	Rotated     bool        `json:"rotated"`
	BoardIndex  int         `json:"board_index"`
}

// Place creates a placed instance of p at the given position.
func Place(p Part, x, y float64, rotated bool) PlacedPart {
	return PlacedPart{
		Name:        p.Name,
		Width:       p.Width,
		Height:      p.Height,
		Thickness:   p.Thickness,
		Material:    p.Material,
		Grain:       p.Grain,
		EdgeBanding: p.EdgeBanding,
		X:           x,
		Y:           y,
		Rotated:     rotated,
	}
}

// PlacedWidth returns the effective width considering rotation.
func (p PlacedPart) PlacedWidth() float64 {
	if p.Rotated {
		return p.Height
	}
	return p.Width
}

// PlacedHeight returns the effective height considering rotation.
func (p PlacedPart) PlacedHeight() float64 {
	if p.Rotated {
		return p.Width
	}
	return p.Height
}

// Area returns the material consumed by the part, excluding kerf.
func (p PlacedPart) Area() float64 {
	return p.Width * p.Height
}

// Board represents one physical stock sheet with its placed parts.
type Board struct {
	Index       int          `json:"index"`
	Material    string       `json:"material"`
	StockWidth  float64      `json:"stock_width"`
	StockHeight float64      `json:"stock_height"`
	Thickness   float64      `json:"thickness"`
	Parts       []PlacedPart `json:"parts"` // Placement order
}

// UsedArea returns the total area used by placed parts.
func (b Board) UsedArea() float64 {
	var total float64
	for _, p := range b.Parts {
		total += p.Area()
	}
	return total
}

// TotalArea returns the stock sheet area.
func (b Board) TotalArea() float64 {
	return b.StockWidth * b.StockHeight
}

// WasteArea returns the stock area not covered by parts.
func (b Board) WasteArea() float64 {
	return b.TotalArea() - b.UsedArea()
}

// WastePercentage returns the share of the sheet that is not used by parts.
func (b Board) WastePercentage() float64 {
	ta := b.TotalArea()
	if ta == 0 {
		return 0
	}
	return 100.0 * b.WasteArea() / ta
}

// EfficiencyPercentage returns the usage percentage.
func (b Board) EfficiencyPercentage() float64 {
	if b.TotalArea() == 0 {
		return 0
	}
	return 100.0 - b.WastePercentage()
}

// CheckInvariants verifies containment, material consistency and that no two
// kerf-padded parts overlap. All violations are joined into one error.
func (b Board) CheckInvariants(kerf float64) error {
	var errs []error
	for i, p := range b.Parts {
		if p.Material != b.Material {
			errs = append(errs, fmt.Errorf("part %d (%s): material %q on %q board", i, p.Name, p.Material, b.Material))
		}
		if p.X < -Epsilon || p.Y < -Epsilon ||
			p.X+p.PlacedWidth() > b.StockWidth+Epsilon ||
			p.Y+p.PlacedHeight() > b.StockHeight+Epsilon {
			errs = append(errs, fmt.Errorf("part %d (%s): %gx%g at (%g, %g) exceeds %gx%g sheet",
				i, p.Name, p.PlacedWidth(), p.PlacedHeight(), p.X, p.Y, b.StockWidth, b.StockHeight))
		}
		for j := i + 1; j < len(b.Parts); j++ {
			if paddedOverlap(p, b.Parts[j], kerf) {
				errs = append(errs, fmt.Errorf("parts %d (%s) and %d (%s) overlap", i, p.Name, j, b.Parts[j].Name))
			}
		}
	}
	return errors.Join(errs...)
}

func paddedOverlap(a, b PlacedPart, kerf float64) bool {
	return a.X < b.X+b.PlacedWidth()+kerf-Epsilon &&
		a.X+a.PlacedWidth()+kerf > b.X+Epsilon &&
		a.Y < b.Y+b.PlacedHeight()+kerf-Epsilon &&
		a.Y+a.PlacedHeight()+kerf > b.Y+Epsilon
}

// UnplacedPart reports pieces of one part type that could not be placed.
type UnplacedPart struct {
	Name     string  `json:"name"`
	Material string  `json:"material"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Count    int     `json:"count"`
	Reason   string  `json:"reason"`
}

const (
	ReasonTooLarge = "larger than stock sheet in every allowed orientation"
	ReasonNoStock  = "no stock definition for material"
	ReasonInvalid  = "invalid dimensions"
)

// Warning is a non-fatal problem surfaced alongside a result.
type Warning struct {
	Material string `json:"material,omitempty"`
	Message  string `json:"message"`
}

func (w Warning) String() string {
	if w.Material == "" {
		return w.Message
	}
	return w.Material + ": " + w.Message
}

// Result holds the full solution of one solve.
type Result struct {
	Boards   []Board        `json:"boards"`
	Unplaced []UnplacedPart `json:"unplaced"`
	Warnings []Warning      `json:"warnings"`
}

// PlacedCount returns the number of placed parts across all boards.
func (r Result) PlacedCount() int {
	total := 0
	for _, b := range r.Boards {
		total += len(b.Parts)
	}
	return total
}

// UnplacedCount returns the number of pieces that could not be placed.
func (r Result) UnplacedCount() int {
	total := 0
	for _, u := range r.Unplaced {
		total += u.Count
	}
	return total
}

// TotalEfficiency returns overall material usage percentage.
func (r Result) TotalEfficiency() float64 {
	var usedArea, totalArea float64
	for _, b := range r.Boards {
		usedArea += b.UsedArea()
		totalArea += b.TotalArea()
	}
	if totalArea == 0 {
		return 0
	}
	return (usedArea / totalArea) * 100.0
}

// BoardsFor returns the boards cut from the given material.
func (r Result) BoardsFor(material string) []Board {
	var out []Board
	for _, b := range r.Boards {
		if b.Material == material {
			out = append(out, b)
		}
	}
	return out
}

// FindInstance looks up a placed part by instance ID.
func (r Result) FindInstance(id int) (PlacedPart, bool) {
	for _, b := range r.Boards {
		for _, p := range b.Parts {
			if p.InstanceID == id {
				return p, true
			}
		}
	}
	return PlacedPart{}, false
}

// Clone returns a deep copy so callers cannot mutate shared results.
func (r Result) Clone() Result {
	out := Result{}
	if r.Boards != nil {
		out.Boards = make([]Board, len(r.Boards))
		for i, b := range r.Boards {
			nb := b
			if b.Parts != nil {
				nb.Parts = append([]PlacedPart(nil), b.Parts...)
			}
			out.Boards[i] = nb
		}
	}
	if r.Unplaced != nil {
		out.Unplaced = append([]UnplacedPart(nil), r.Unplaced...)
	}
	if r.Warnings != nil {
		out.Warnings = append([]Warning(nil), r.Warnings...)
	}
	return out
}
