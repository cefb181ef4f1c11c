package engine

import "github.com/piwi3910/SheetNest/internal/model"

type rect struct {
	x, y, w, h float64
}

func (r rect) area() float64 {
	return r.w * r.h
}

// guillotinePacker implements the guillotine bin-packing algorithm.
// It maintains a list of free rectangles and splits one on each insertion.
type guillotinePacker struct {
	freeRects []rect
	kerf      float64
}

func newGuillotinePacker(width, height, kerf float64) *guillotinePacker {
	return &guillotinePacker{
		freeRects: []rect{{0, 0, width, height}},
		kerf:      kerf,
	}
}

// fit identifies the free rectangle and orientation chosen for an item.
type fit struct {
	index   int
	rotated bool
	area    float64
}

// bestFit finds the smallest-area free rectangle that holds a w x h item
// plus kerf in any of the given orientations, without modifying the packer.
// Ties go to the earlier rectangle, then to the unrotated orientation.
func (gp *guillotinePacker) bestFit(w, h float64, orientations []bool) (fit, bool) {
	best := fit{index: -1}
	for _, rotated := range orientations {
		pw, ph := w, h
		if rotated {
			pw, ph = h, w
		}
		wk := pw + gp.kerf
		hk := ph + gp.kerf

		for i, r := range gp.freeRects {
			if wk > r.w+model.Epsilon || hk > r.h+model.Epsilon {
				continue
			}
			a := r.area()
			if best.index < 0 || a < best.area || (a == best.area && i < best.index) {
				best = fit{index: i, rotated: rotated, area: a}
			}
		}
	}
	return best, best.index >= 0
}

// place consumes the chosen free rectangle for a w x h item and returns the
// item's top-left position.
func (gp *guillotinePacker) place(f fit, w, h float64) (float64, float64) {
	if f.rotated {
		w, h = h, w
	}
	chosen := gp.freeRects[f.index]
	gp.freeRects = append(gp.freeRects[:f.index], gp.freeRects[f.index+1:]...)
	gp.freeRects = append(gp.freeRects, splitGuillotine(chosen, w+gp.kerf, h+gp.kerf)...)
	return chosen.x, chosen.y
}

// splitGuillotine cuts the used w x h corner out of r and returns at most two
// remaining rectangles. Option A keeps a full-height strip on the right,
// option B a full-width strip below; the option whose largest piece is larger
// wins, A on ties.
func splitGuillotine(r rect, w, h float64) []rect {
	rightW := r.w - w
	bottomH := r.h - h

	a := [2]rect{
		{x: r.x + w, y: r.y, w: rightW, h: r.h},
		{x: r.x, y: r.y + h, w: w, h: bottomH},
	}
	b := [2]rect{
		{x: r.x, y: r.y + h, w: r.w, h: bottomH},
		{x: r.x + w, y: r.y, w: rightW, h: h},
	}

	chosen := a
	if largest(b) > largest(a) {
		chosen = b
	}

	var out []rect
	for _, piece := range chosen {
		if piece.w > model.Epsilon && piece.h > model.Epsilon {
			out = append(out, piece)
		}
	}
	return out
}

func largest(pieces [2]rect) float64 {
	best := 0.0
	for _, p := range pieces {
		if p.w > model.Epsilon && p.h > model.Epsilon && p.area() > best {
			best = p.area()
		}
	}
	return best
}
