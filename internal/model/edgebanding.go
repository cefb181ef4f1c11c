package model

import (
	"math"
	"sort"
)

// EdgeBandingSummary holds the calculated edge banding requirements for a result.
type EdgeBandingSummary struct {
	TotalLinearMM    float64 `json:"total_linear_mm"`     // Total banding length in mm (no waste)
	TotalLinearM     float64 `json:"total_linear_m"`      // Total banding length in meters (no waste)
	WastePercent     float64 `json:"waste_percent"`       // Waste percentage applied
	TotalWithWasteMM float64 `json:"total_with_waste_mm"` // Total with waste in mm
	TotalWithWasteM  float64 `json:"total_with_waste_m"`  // Total with waste in meters
	PartCount        int     `json:"part_count"`          // Number of individual pieces needing banding
	EdgeCount        int     `json:"edge_count"`          // Total number of edges needing banding
}

// CalculateEdgeBanding computes the total edge banding needed for all placed parts.
// wastePercent is the additional percentage to add for waste (e.g., 10 for 10%).
func CalculateEdgeBanding(result Result, wastePercent float64) EdgeBandingSummary {
	var totalMM float64
	var partCount, edgeCount int

	for _, b := range result.Boards {
		for _, p := range b.Parts {
			edges := p.EdgeBanding.EdgeCount()
			if edges == 0 {
				continue
			}
			totalMM += p.EdgeBanding.LinearLength(p.Width, p.Height)
			partCount++
			edgeCount += edges
		}
	}

	wasteFactor := 1.0 + (wastePercent / 100.0)
	totalWithWaste := totalMM * wasteFactor

	return EdgeBandingSummary{
		TotalLinearMM:    totalMM,
		TotalLinearM:     totalMM / 1000.0,
		WastePercent:     wastePercent,
		TotalWithWasteMM: math.Ceil(totalWithWaste), // Round up
		TotalWithWasteM:  math.Ceil(totalWithWaste) / 1000.0,
		PartCount:        partCount,
		EdgeCount:        edgeCount,
	}
}

// PerPartEdgeBanding is the banding breakdown for one part type.
type PerPartEdgeBanding struct {
	Name          string      `json:"name"`
	Width         float64     `json:"width"`
	Height        float64     `json:"height"`
	Quantity      int         `json:"quantity"`
	Edges         EdgeBanding `json:"edges"`
	LengthPerUnit float64     `json:"length_per_unit"` // mm per piece
	TotalLength   float64     `json:"total_length"`    // mm for all pieces
}

// CalculatePerPartEdgeBanding returns a breakdown of banding per part type,
// ordered by name.
func CalculatePerPartEdgeBanding(result Result) []PerPartEdgeBanding {
	type typeKey struct {
		name          string
		width, height float64
		edges         EdgeBanding
	}
	index := map[typeKey]int{}
	var rows []PerPartEdgeBanding

	for _, b := range result.Boards {
		for _, p := range b.Parts {
			edges := p.EdgeBanding.Canonical()
			if edges.EdgeCount() == 0 {
				continue
			}
			k := typeKey{p.Name, p.Width, p.Height, edges}
			i, ok := index[k]
			if !ok {
				i = len(rows)
				index[k] = i
				rows = append(rows, PerPartEdgeBanding{
					Name:          p.Name,
					Width:         p.Width,
					Height:        p.Height,
					Edges:         edges,
					LengthPerUnit: edges.LinearLength(p.Width, p.Height),
				})
			}
			rows[i].Quantity++
			rows[i].TotalLength += rows[i].LengthPerUnit
		}
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}
