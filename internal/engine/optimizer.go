package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/piwi3910/SheetNest/internal/model"
)

// ProgressFunc receives advisory progress updates. Percent is in [0, 100].
type ProgressFunc func(message string, percent float64)

// Optimizer runs the 2D nesting algorithm.
type Optimizer struct {
	Settings model.Settings
	// Search, when set, refines the greedy placement order of each material
	// with a genetic search before packing.
	Search *GeneticConfig
}

func New(settings model.Settings) *Optimizer {
	return &Optimizer{Settings: settings}
}

// Optimize is a convenience wrapper for New(settings).Optimize.
func Optimize(ctx context.Context, parts model.PartsByMaterial, settings model.Settings, onProgress ProgressFunc) (model.Result, error) {
	return New(settings).Optimize(ctx, parts, onProgress)
}

// Optimize nests every material of parts independently onto its stock sheet.
//
// Materials without a stock definition produce no boards; their pieces are
// reported as unplaced with a warning. Pieces too large for the sheet in every
// allowed orientation are reported as unplaced and never open a board.
// The context is checked between items; on cancellation the partial layout is
// discarded and ctx.Err() is returned.
func (o *Optimizer) Optimize(ctx context.Context, parts model.PartsByMaterial, onProgress ProgressFunc) (model.Result, error) {
	settings, warnings := o.Settings.Normalize()
	result := model.Result{Warnings: warnings}

	p := &progress{total: parts.TotalQuantity(), fn: onProgress}

	for _, material := range parts.Materials() {
		if err := ctx.Err(); err != nil {
			return model.Result{}, err
		}

		items, invalid, problems := expand(material, parts[material])
		result.Warnings = append(result.Warnings, problems...)
		result.Unplaced = append(result.Unplaced, invalid...)
		for _, u := range invalid {
			p.advance(u.Count, fmt.Sprintf("Skipped %s", u.Name))
		}
		if len(items) == 0 {
			continue
		}

		stock, ok := settings.Stock(material)
		if !ok || stock.Width <= 0 || stock.Height <= 0 {
			result.Warnings = append(result.Warnings, model.Warning{
				Material: material,
				Message:  fmt.Sprintf("no stock definition, %d pieces not nested", len(items)),
			})
			result.Unplaced = append(result.Unplaced, aggregate(items, model.ReasonNoStock)...)
			p.advance(len(items), fmt.Sprintf("Skipped %s: no stock definition", material))
			continue
		}

		boards, unplaced, err := o.nestMaterial(ctx, material, stock, settings, items, p)
		if err != nil {
			return model.Result{}, err
		}
		result.Boards = append(result.Boards, boards...)
		result.Unplaced = append(result.Unplaced, unplaced...)
	}

	finalize(&result)
	p.done()
	return result, nil
}

// openBoard is a board still accepting parts during a solve.
type openBoard struct {
	board  model.Board
	packer *guillotinePacker
}

func (ob *openBoard) place(part model.Part, f fit) {
	x, y := ob.packer.place(f, part.Width, part.Height)
	ob.board.Parts = append(ob.board.Parts, model.Place(part, x, y, f.rotated))
}

// demand is one piece waiting to be nested.
type demand struct {
	part          model.Part
	preferRotated bool
}

// nestMaterial orders the items of one material and packs them. With a
// search configured, the greedy order only seeds the genetic search.
func (o *Optimizer) nestMaterial(ctx context.Context, material string, stock model.StockMaterial, settings model.Settings, items []model.Part, p *progress) ([]model.Board, []model.UnplacedPart, error) {
	sortDemand(items)
	order := make([]demand, len(items))
	for i, it := range items {
		order[i] = demand{part: it}
	}

	if o.Search != nil {
		ga := newGeneticOptimizer(*o.Search, material, stock, settings, order)
		best, err := ga.optimize(ctx, p)
		if err != nil {
			return nil, nil, err
		}
		order = best
	}

	return packMaterial(ctx, material, stock, settings, order, p)
}

// packMaterial places items in the given order. Boards are tried in creation
// order and a new board is opened only when none has room.
func packMaterial(ctx context.Context, material string, stock model.StockMaterial, settings model.Settings, order []demand, p *progress) ([]model.Board, []model.UnplacedPart, error) {
	var open []*openBoard
	var tooLarge []model.Part

	for _, d := range order {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		item := d.part

		orientations := item.Grain.Orientations(settings.AllowRotation)
		if d.preferRotated && len(orientations) == 2 {
			orientations = []bool{true, false}
		}
		empty := newGuillotinePacker(stock.Width, stock.Height, settings.KerfWidth)
		if _, ok := empty.bestFit(item.Width, item.Height, orientations); !ok {
			tooLarge = append(tooLarge, item)
			p.advance(1, fmt.Sprintf("%s: %s does not fit the stock sheet", material, item.Name))
			continue
		}

		placed := false
		for _, ob := range open {
			if f, ok := ob.packer.bestFit(item.Width, item.Height, orientations); ok {
				ob.place(item, f)
				placed = true
				break
			}
		}
		if !placed {
			ob := &openBoard{
				board: model.Board{
					Material:    material,
					StockWidth:  stock.Width,
					StockHeight: stock.Height,
					Thickness:   stock.Thickness,
				},
				packer: empty,
			}
			f, _ := ob.packer.bestFit(item.Width, item.Height, orientations)
			ob.place(item, f)
			open = append(open, ob)
		}
		p.advance(1, fmt.Sprintf("%s: placed %s on board %d", material, item.Name, len(open)))
	}

	boards := make([]model.Board, len(open))
	for i, ob := range open {
		boards[i] = ob.board
	}
	return boards, aggregate(tooLarge, model.ReasonTooLarge), nil
}

// expand flattens part quantities into one demand item per piece. Each item
// carries the material it is nested under. Part types that fail validation
// are returned separately, with one warning per demand line.
func expand(material string, list []model.PartQuantity) ([]model.Part, []model.UnplacedPart, []model.Warning) {
	var items []model.Part
	var invalid []model.Part
	var warnings []model.Warning
	for _, pq := range list {
		part := pq.Part
		part.Material = material
		if pq.Quantity <= 0 {
			continue
		}
		if err := part.Validate(); err != nil {
			warnings = append(warnings, model.Warning{
				Material: material,
				Message:  fmt.Sprintf("%v, %d skipped", err, pq.Quantity),
			})
			for i := 0; i < pq.Quantity; i++ {
				invalid = append(invalid, part)
			}
			continue
		}
		for i := 0; i < pq.Quantity; i++ {
			items = append(items, part)
		}
	}
	return items, aggregate(invalid, model.ReasonInvalid), warnings
}

// sortDemand orders items longest side first, then by shorter side, then by
// name so that equal inputs always produce equal layouts.
func sortDemand(items []model.Part) {
	sort.SliceStable(items, func(i, j int) bool {
		li, si := sides(items[i])
		lj, sj := sides(items[j])
		if li != lj {
			return li > lj
		}
		if si != sj {
			return si > sj
		}
		return items[i].Name < items[j].Name
	})
}

func sides(p model.Part) (long, short float64) {
	if p.Width >= p.Height {
		return p.Width, p.Height
	}
	return p.Height, p.Width
}

// aggregate collapses identical part types into one UnplacedPart with a count,
// keeping first-seen order.
func aggregate(items []model.Part, reason string) []model.UnplacedPart {
	type key struct {
		name, material string
		w, h           float64
	}
	index := map[key]int{}
	var out []model.UnplacedPart
	for _, it := range items {
		k := key{it.Name, it.Material, it.Width, it.Height}
		if i, ok := index[k]; ok {
			out[i].Count++
			continue
		}
		index[k] = len(out)
		out = append(out, model.UnplacedPart{
			Name:     it.Name,
			Material: it.Material,
			Width:    it.Width,
			Height:   it.Height,
			Count:    1,
			Reason:   reason,
		})
	}
	return out
}

// finalize assigns global board indices and sequential instance IDs in
// material, board creation and placement order.
func finalize(result *model.Result) {
	id := 1
	for bi := range result.Boards {
		b := &result.Boards[bi]
		b.Index = bi
		for pi := range b.Parts {
			b.Parts[pi].InstanceID = id
			b.Parts[pi].BoardIndex = bi
			id++
		}
	}
}

// progress tracks processed items and forwards updates to the callback.
type progress struct {
	total     int
	processed int
	fn        ProgressFunc
}

func (p *progress) advance(n int, message string) {
	if p == nil {
		return
	}
	p.processed += n
	if p.fn != nil {
		p.fn(message, p.percent())
	}
}

// note reports message at the current percentage.
func (p *progress) note(message string) {
	if p != nil && p.fn != nil {
		p.fn(message, p.percent())
	}
}

func (p *progress) done() {
	if p != nil && p.fn != nil {
		p.fn("Optimization complete", 100)
	}
}

func (p *progress) percent() float64 {
	if p.total <= 0 {
		return 100
	}
	pct := float64(p.processed) / float64(p.total) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}
