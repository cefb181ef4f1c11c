package importer

import (
	"fmt"
	"math"
	"sort"

	"github.com/yofu/dxf"
	"github.com/yofu/dxf/entity"

	"github.com/piwi3910/SheetNest/internal/model"
)

// point is a 2D drawing coordinate in mm.
type point struct {
	X, Y float64
}

// polygon is a closed shape given by its vertices.
type polygon []point

func (p polygon) bounds() (min, max point) {
	min = point{math.Inf(1), math.Inf(1)}
	max = point{math.Inf(-1), math.Inf(-1)}
	for _, v := range p {
		min.X = math.Min(min.X, v.X)
		min.Y = math.Min(min.Y, v.Y)
		max.X = math.Max(max.X, v.X)
		max.Y = math.Max(max.Y, v.Y)
	}
	return min, max
}

// area computes the absolute area using the shoelace formula.
func (p polygon) area() float64 {
	n := len(p)
	if n < 3 {
		return 0
	}
	var a float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(a) / 2
}

// isRectangle reports whether the polygon fills its axis-aligned bounding box.
func (p polygon) isRectangle() bool {
	min, max := p.bounds()
	box := (max.X - min.X) * (max.Y - min.Y)
	return box > 0 && math.Abs(p.area()-box) <= box*1e-6
}

// segment is a line between two points, used to chain loose LINE and ARC
// entities into closed outlines.
type segment struct {
	start point
	end   point
}

// ImportDXF imports parts from a DXF drawing. Every closed shape
// (LWPOLYLINE, CIRCLE, or chain of connected LINEs and ARCs) becomes one part
// sized by its bounding box. Shapes that are not axis-aligned rectangles are
// imported by their bounding box with a warning.
func ImportDXF(path string) ImportResult {
	result := ImportResult{}

	drawing, err := dxf.Open(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open DXF file: %v", err))
		return result
	}

	entities := drawing.Entities()
	if len(entities) == 0 {
		result.Errors = append(result.Errors, "DXF file contains no entities")
		return result
	}

	var shapes []polygon
	var segments []segment

	for _, ent := range entities {
		switch e := ent.(type) {
		case *entity.LwPolyline:
			shape := lwPolylineToPolygon(e)
			if len(shape) >= 3 {
				shapes = append(shapes, shape)
			} else {
				result.Warnings = append(result.Warnings, "Skipped LWPOLYLINE with fewer than 3 vertices")
			}

		case *entity.Circle:
			shapes = append(shapes, circleToPolygon(e, 64))

		case *entity.Arc:
			pts := arcToPoints(e, 32)
			if len(pts) >= 2 {
				segments = append(segments, pointsToSegments(pts)...)
			}

		case *entity.Line:
			segments = append(segments, segment{
				start: point{X: e.Start[0], Y: e.Start[1]},
				end:   point{X: e.End[0], Y: e.End[1]},
			})
		}
	}

	shapes = append(shapes, chainSegments(segments, 0.01)...)
	if len(shapes) == 0 {
		result.Errors = append(result.Errors, "No closed shapes found in DXF file")
		return result
	}

	partNum := 0
	for _, shape := range shapes {
		partNum++
		min, max := shape.bounds()
		width := max.X - min.X
		height := max.Y - min.Y

		if width < 0.01 || height < 0.01 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Skipped degenerate shape (%.2f x %.2f mm)", width, height))
			continue
		}

		name := fmt.Sprintf("DXF Part %d", partNum)
		if !shape.isRectangle() {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s is not rectangular, using its %.1f x %.1f mm bounding box", name, width, height))
		}

		part := model.NewPart(name, round2(width), round2(height), 0, "")
		result.Parts = append(result.Parts, model.PartQuantity{Part: part, Quantity: 1})
	}

	return mergeIdentical(result)
}

// mergeIdentical folds parts with identical dimensions into one demand with a
// summed quantity, keeping the first name.
func mergeIdentical(result ImportResult) ImportResult {
	type dims struct{ w, h float64 }
	index := map[dims]int{}
	var merged []model.PartQuantity
	for _, pq := range result.Parts {
		d := dims{pq.Part.Width, pq.Part.Height}
		if i, ok := index[d]; ok {
			merged[i].Quantity += pq.Quantity
			continue
		}
		index[d] = len(merged)
		merged = append(merged, pq)
	}
	result.Parts = merged
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// lwPolylineToPolygon converts a DXF LWPOLYLINE entity to a polygon.
// Bulge values on vertices produce interpolated arc segments.
func lwPolylineToPolygon(lw *entity.LwPolyline) polygon {
	var shape polygon

	for i := 0; i < len(lw.Vertices); i++ {
		v := lw.Vertices[i]
		current := point{X: v[0], Y: v[1]}

		bulge := 0.0
		if i < len(lw.Bulges) {
			bulge = lw.Bulges[i]
		}

		if math.Abs(bulge) > 1e-9 {
			nextIdx := (i + 1) % len(lw.Vertices)
			next := point{X: lw.Vertices[nextIdx][0], Y: lw.Vertices[nextIdx][1]}
			arcPts := bulgeArcPoints(current, next, bulge, 32)
			shape = append(shape, arcPts[:len(arcPts)-1]...)
		} else {
			shape = append(shape, current)
		}
	}

	return shape
}

// bulgeArcPoints generates points along an arc defined by two endpoints and a
// DXF bulge factor. The bulge is the tangent of 1/4 the included angle.
func bulgeArcPoints(p1, p2 point, bulge float64, numSegments int) []point {
	mx := (p1.X + p2.X) / 2
	my := (p1.Y + p2.Y) / 2
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	chordLen := math.Sqrt(dx*dx + dy*dy)
	if chordLen < 1e-9 {
		return []point{p1, p2}
	}

	sagitta := math.Abs(bulge) * chordLen / 2
	radius := (chordLen*chordLen/(4*sagitta) + sagitta) / 2

	perpX := -dy / chordLen
	perpY := dx / chordLen
	dist := radius - sagitta
	if bulge > 0 {
		perpX, perpY = -perpX, -perpY
	}
	cx := mx + perpX*dist
	cy := my + perpY*dist

	startAngle := math.Atan2(p1.Y-cy, p1.X-cx)
	endAngle := math.Atan2(p2.Y-cy, p2.X-cx)
	if bulge < 0 {
		if endAngle > startAngle {
			endAngle -= 2 * math.Pi
		}
	} else if endAngle < startAngle {
		endAngle += 2 * math.Pi
	}

	pts := make([]point, 0, numSegments+1)
	for i := 0; i <= numSegments; i++ {
		t := float64(i) / float64(numSegments)
		angle := startAngle + t*(endAngle-startAngle)
		pts = append(pts, point{X: cx + radius*math.Cos(angle), Y: cy + radius*math.Sin(angle)})
	}
	return pts
}

// circleToPolygon approximates a circle as a regular polygon.
func circleToPolygon(c *entity.Circle, numSegments int) polygon {
	shape := make(polygon, numSegments)
	cx, cy, r := c.Center[0], c.Center[1], c.Radius
	for i := 0; i < numSegments; i++ {
		angle := 2 * math.Pi * float64(i) / float64(numSegments)
		shape[i] = point{X: cx + r*math.Cos(angle), Y: cy + r*math.Sin(angle)}
	}
	return shape
}

// arcToPoints converts a DXF ARC entity to a series of line points.
func arcToPoints(a *entity.Arc, numSegments int) []point {
	cx, cy := a.Circle.Center[0], a.Circle.Center[1]
	r := a.Circle.Radius

	startRad := a.Angle[0] * math.Pi / 180
	endRad := a.Angle[1] * math.Pi / 180
	if endRad <= startRad {
		endRad += 2 * math.Pi
	}

	pts := make([]point, numSegments+1)
	for i := 0; i <= numSegments; i++ {
		t := float64(i) / float64(numSegments)
		angle := startRad + t*(endRad-startRad)
		pts[i] = point{X: cx + r*math.Cos(angle), Y: cy + r*math.Sin(angle)}
	}
	return pts
}

func pointsToSegments(pts []point) []segment {
	segs := make([]segment, 0, len(pts)-1)
	for i := 0; i < len(pts)-1; i++ {
		segs = append(segs, segment{start: pts[i], end: pts[i+1]})
	}
	return segs
}

// chainSegments connects individual segments into closed outlines.
// tolerance is the maximum distance between endpoints to consider them connected.
func chainSegments(segs []segment, tolerance float64) []polygon {
	if len(segs) == 0 {
		return nil
	}

	used := make([]bool, len(segs))
	var shapes []polygon

	for {
		startIdx := -1
		for i, u := range used {
			if !u {
				startIdx = i
				break
			}
		}
		if startIdx == -1 {
			break
		}

		chain := []point{segs[startIdx].start, segs[startIdx].end}
		used[startIdx] = true

		changed := true
		for changed {
			changed = false
			tail := chain[len(chain)-1]

			for i, seg := range segs {
				if used[i] {
					continue
				}
				if pointsClose(tail, seg.start, tolerance) {
					chain = append(chain, seg.end)
					used[i] = true
					changed = true
					break
				}
				if pointsClose(tail, seg.end, tolerance) {
					chain = append(chain, seg.start)
					used[i] = true
					changed = true
					break
				}
			}
		}

		// Open chains are not parts.
		if len(chain) < 4 || !pointsClose(chain[0], chain[len(chain)-1], tolerance) {
			continue
		}
		shapes = append(shapes, polygon(chain[:len(chain)-1]))
	}

	// Largest first for a stable part numbering.
	sort.SliceStable(shapes, func(i, j int) bool {
		return shapes[i].area() > shapes[j].area()
	})

	return shapes
}

func pointsClose(a, b point, tolerance float64) bool {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx+dy*dy) <= tolerance
}
