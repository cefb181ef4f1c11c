package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/piwi3910/SheetNest/internal/model"
)

// GeneticConfig holds parameters for the genetic order search.
type GeneticConfig struct {
	PopulationSize int
	Generations    int
	MutationRate   float64
	TournamentSize int
	EliteCount     int
	Seed           int64
}

// DefaultGeneticConfig returns sensible default parameters.
func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{
		PopulationSize: 50,
		Generations:    100,
		MutationRate:   0.15,
		TournamentSize: 3,
		EliteCount:     2,
		Seed:           42,
	}
}

// ScaledGeneticConfig grows the default search for larger piece counts.
func ScaledGeneticConfig(pieces int) GeneticConfig {
	config := DefaultGeneticConfig()
	if pieces > 20 {
		config.Generations = 150
	}
	if pieces > 50 {
		config.Generations = 200
		config.PopulationSize = 80
	}
	return config
}

// gene is one placement decision: which piece goes next and whether the
// rotated orientation is preferred on ties.
type gene struct {
	index         int
	preferRotated bool
}

// chromosome is a candidate placement order.
type chromosome struct {
	genes   []gene
	fitness float64
}

// geneticOptimizer searches placement orders for one material. The greedy
// order is always part of the initial population and elitism keeps the best
// individual, so the search never does worse than the greedy pass.
type geneticOptimizer struct {
	config   GeneticConfig
	material string
	stock    model.StockMaterial
	settings model.Settings
	items    []demand
	rng      *rand.Rand
}

func newGeneticOptimizer(config GeneticConfig, material string, stock model.StockMaterial, settings model.Settings, greedy []demand) *geneticOptimizer {
	if config.PopulationSize < 1 {
		config.PopulationSize = 1
	}
	if config.TournamentSize < 1 {
		config.TournamentSize = 1
	}
	return &geneticOptimizer{
		config:   config,
		material: material,
		stock:    stock,
		settings: settings,
		items:    greedy,
		rng:      rand.New(rand.NewSource(config.Seed)),
	}
}

// optimize runs the evolution loop and returns the best order found. The
// context is checked and progress noted once per generation; no piece counts
// as placed until the final order is packed.
func (g *geneticOptimizer) optimize(ctx context.Context, p *progress) ([]demand, error) {
	if len(g.items) < 2 {
		return g.items, nil
	}

	population := g.initPopulation()
	for i := range population {
		fitness, err := g.evaluate(ctx, population[i])
		if err != nil {
			return nil, err
		}
		population[i].fitness = fitness
	}

	for gen := 0; gen < g.config.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sortByFitness(population)

		next := make([]chromosome, 0, g.config.PopulationSize)
		elite := g.config.EliteCount
		if elite < 1 {
			elite = 1
		}
		if elite > len(population) {
			elite = len(population)
		}
		for i := 0; i < elite; i++ {
			next = append(next, g.copyChromosome(population[i]))
		}

		for len(next) < g.config.PopulationSize {
			child := g.orderCrossover(g.tournamentSelect(population), g.tournamentSelect(population))
			g.mutate(&child)
			fitness, err := g.evaluate(ctx, child)
			if err != nil {
				return nil, err
			}
			child.fitness = fitness
			next = append(next, child)
		}
		population = next
		p.note(fmt.Sprintf("%s: genetic search generation %d/%d", g.material, gen+1, g.config.Generations))
	}

	sortByFitness(population)
	return g.decode(population[0]), nil
}

func sortByFitness(population []chromosome) {
	sort.SliceStable(population, func(i, j int) bool {
		return population[i].fitness > population[j].fitness
	})
}

func (g *geneticOptimizer) initPopulation() []chromosome {
	n := len(g.items)
	population := make([]chromosome, g.config.PopulationSize)

	greedy := make([]gene, n)
	for i := range greedy {
		greedy[i] = gene{index: i}
	}
	population[0] = chromosome{genes: greedy}

	for i := 1; i < len(population); i++ {
		genes := make([]gene, n)
		for j, idx := range g.rng.Perm(n) {
			genes[j] = gene{
				index:         idx,
				preferRotated: g.canRotate(idx) && g.rng.Float64() < 0.5,
			}
		}
		population[i] = chromosome{genes: genes}
	}
	return population
}

func (g *geneticOptimizer) canRotate(index int) bool {
	return len(g.items[index].part.Grain.Orientations(g.settings.AllowRotation)) == 2
}

func (g *geneticOptimizer) decode(c chromosome) []demand {
	order := make([]demand, len(c.genes))
	for i, ge := range c.genes {
		order[i] = demand{part: g.items[ge.index].part, preferRotated: ge.preferRotated}
	}
	return order
}

// evaluate packs the decoded order and scores it by material efficiency,
// penalizing every extra board.
func (g *geneticOptimizer) evaluate(ctx context.Context, c chromosome) (float64, error) {
	boards, _, err := packMaterial(ctx, g.material, g.stock, g.settings, g.decode(c), nil)
	if err != nil {
		return 0, err
	}
	if len(boards) == 0 {
		return 0, nil
	}

	var used, total float64
	for _, b := range boards {
		used += b.UsedArea()
		total += b.TotalArea()
	}
	if total == 0 {
		return 0, nil
	}

	fitness := used/total - float64(len(boards)-1)*0.05
	if fitness < 0 {
		fitness = 0
	}
	return fitness, nil
}

func (g *geneticOptimizer) tournamentSelect(population []chromosome) chromosome {
	best := population[g.rng.Intn(len(population))]
	for i := 1; i < g.config.TournamentSize; i++ {
		candidate := population[g.rng.Intn(len(population))]
		if candidate.fitness > best.fitness {
			best = candidate
		}
	}
	return g.copyChromosome(best)
}

// orderCrossover implements Order Crossover (OX1): a slice of parent1 is kept
// in place and the remaining genes follow parent2's relative order.
func (g *geneticOptimizer) orderCrossover(parent1, parent2 chromosome) chromosome {
	n := len(parent1.genes)
	if n <= 2 {
		return g.copyChromosome(parent1)
	}

	point1 := g.rng.Intn(n)
	point2 := g.rng.Intn(n)
	if point1 > point2 {
		point1, point2 = point2, point1
	}

	child := chromosome{genes: make([]gene, n)}
	inSegment := make(map[int]bool, point2-point1+1)
	for i := point1; i <= point2; i++ {
		child.genes[i] = parent1.genes[i]
		inSegment[parent1.genes[i].index] = true
	}

	childIdx := (point2 + 1) % n
	for _, pg := range parent2.genes {
		if !inSegment[pg.index] {
			child.genes[childIdx] = pg
			childIdx = (childIdx + 1) % n
		}
	}
	return child
}

// mutate applies swap, rotation-preference and inversion mutations.
func (g *geneticOptimizer) mutate(c *chromosome) {
	n := len(c.genes)
	if n < 2 {
		return
	}

	if g.rng.Float64() < g.config.MutationRate {
		i := g.rng.Intn(n)
		j := g.rng.Intn(n)
		c.genes[i], c.genes[j] = c.genes[j], c.genes[i]
	}

	if g.rng.Float64() < g.config.MutationRate {
		i := g.rng.Intn(n)
		if g.canRotate(c.genes[i].index) {
			c.genes[i].preferRotated = !c.genes[i].preferRotated
		}
	}

	if g.rng.Float64() < g.config.MutationRate*0.5 {
		i := g.rng.Intn(n)
		j := g.rng.Intn(n)
		if i > j {
			i, j = j, i
		}
		for i < j {
			c.genes[i], c.genes[j] = c.genes[j], c.genes[i]
			i++
			j--
		}
	}
}

func (g *geneticOptimizer) copyChromosome(c chromosome) chromosome {
	genes := make([]gene, len(c.genes))
	copy(genes, c.genes)
	return chromosome{genes: genes, fitness: c.fitness}
}

// OptimizeGenetic nests parts with a genetic search over each material's
// placement order, scaled to the total piece count.
func OptimizeGenetic(ctx context.Context, parts model.PartsByMaterial, settings model.Settings, onProgress ProgressFunc) (model.Result, error) {
	config := ScaledGeneticConfig(parts.TotalQuantity())
	opt := &Optimizer{Settings: settings, Search: &config}
	return opt.Optimize(ctx, parts, onProgress)
}
