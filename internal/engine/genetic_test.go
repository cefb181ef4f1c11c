package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/piwi3910/SheetNest/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallSearch() *GeneticConfig {
	config := DefaultGeneticConfig()
	config.PopulationSize = 12
	config.Generations = 15
	return &config
}

func TestGeneticSearch_PlacesAllParts(t *testing.T) {
	parts := mixedWorkload()
	opt := &Optimizer{Settings: plywoodSettings(3.2), Search: smallSearch()}

	result, err := opt.Optimize(context.Background(), parts, nil)
	require.NoError(t, err)

	assert.Equal(t, parts.TotalQuantity(), result.PlacedCount())
	assertBoardsValid(t, result, 3.2)
}

func TestGeneticSearch_NeverWorseThanGreedy(t *testing.T) {
	parts := mixedWorkload()
	greedy, err := Optimize(context.Background(), parts, plywoodSettings(3.2), nil)
	require.NoError(t, err)

	opt := &Optimizer{Settings: plywoodSettings(3.2), Search: smallSearch()}
	searched, err := opt.Optimize(context.Background(), parts, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(searched.Boards), len(greedy.Boards))
	assert.GreaterOrEqual(t, searched.TotalEfficiency()+1e-9, greedy.TotalEfficiency())
}

func TestGeneticSearch_RespectsGrain(t *testing.T) {
	opt := &Optimizer{Settings: plywoodSettings(3), Search: smallSearch()}
	result, err := opt.Optimize(context.Background(), mixedWorkload(), nil)
	require.NoError(t, err)

	for _, b := range result.Boards {
		for _, p := range b.Parts {
			switch p.Grain {
			case model.GrainLength:
				assert.False(t, p.Rotated)
			case model.GrainWidth:
				assert.True(t, p.Rotated)
			}
		}
	}
}

func TestGeneticSearch_DeterministicForSeed(t *testing.T) {
	run := func() model.Result {
		opt := &Optimizer{Settings: plywoodSettings(3), Search: smallSearch()}
		r, err := opt.Optimize(context.Background(), mixedWorkload(), nil)
		require.NoError(t, err)
		return r
	}
	assert.Equal(t, run(), run())
}

func TestGeneticSearch_ReportsEveryGeneration(t *testing.T) {
	parts := model.PartsByMaterial{
		"Plywood_18mm": {{Part: plywoodPart("Shelf", 700, 300, model.GrainAny), Quantity: 6}},
	}
	var messages []string
	var percents []float64
	opt := &Optimizer{Settings: plywoodSettings(3), Search: smallSearch()}
	_, err := opt.Optimize(context.Background(), parts, func(msg string, pct float64) {
		messages = append(messages, msg)
		percents = append(percents, pct)
	})
	require.NoError(t, err)

	generations := 0
	for _, m := range messages {
		if strings.Contains(m, "genetic search generation") {
			generations++
		}
	}
	assert.Equal(t, smallSearch().Generations, generations)
	assert.Contains(t, messages, "Plywood_18mm: genetic search generation 15/15")
	for i := 1; i < len(percents); i++ {
		assert.GreaterOrEqual(t, percents[i], percents[i-1])
	}
	assert.Equal(t, 100.0, percents[len(percents)-1])
}

func TestGeneticSearch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opt := &Optimizer{Settings: plywoodSettings(3), Search: smallSearch()}
	_, err := opt.Optimize(ctx, mixedWorkload(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrderCrossoverPreservesAllGenes(t *testing.T) {
	items := make([]demand, 8)
	for i := range items {
		items[i] = demand{part: plywoodPart("P", 100, 100, model.GrainAny)}
	}
	g := newGeneticOptimizer(DefaultGeneticConfig(), "Plywood_18mm", model.StockMaterial{Width: 2440, Height: 1220}, plywoodSettings(3), items)

	p1 := chromosome{}
	p2 := chromosome{}
	for i := 0; i < 8; i++ {
		p1.genes = append(p1.genes, gene{index: i})
		p2.genes = append(p2.genes, gene{index: 7 - i})
	}

	for trial := 0; trial < 20; trial++ {
		child := g.orderCrossover(p1, p2)
		seen := map[int]bool{}
		for _, ge := range child.genes {
			seen[ge.index] = true
		}
		assert.Len(t, seen, 8, "child must be a permutation")
	}
}

func TestScaledGeneticConfig(t *testing.T) {
	assert.Equal(t, DefaultGeneticConfig(), ScaledGeneticConfig(10))
	assert.Equal(t, 150, ScaledGeneticConfig(30).Generations)

	large := ScaledGeneticConfig(60)
	assert.Equal(t, 200, large.Generations)
	assert.Equal(t, 80, large.PopulationSize)
}
