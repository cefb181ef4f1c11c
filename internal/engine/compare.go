package engine

import (
	"context"
	"fmt"

	"github.com/piwi3910/SheetNest/internal/model"
)

// ComparisonScenario defines a named set of settings to compare.
type ComparisonScenario struct {
	Name     string
	Settings model.Settings
	Genetic  bool
}

// ComparisonResult holds the nesting result and computed statistics
// for a single scenario.
type ComparisonResult struct {
	Scenario      ComparisonScenario
	Result        model.Result
	BoardsUsed    int
	PlacedCount   int
	WastePercent  float64
	UnplacedCount int
}

// CompareScenarios nests the same parts once per scenario and returns the
// results in scenario order. It stops at the first cancelled run.
func CompareScenarios(ctx context.Context, scenarios []ComparisonScenario, parts model.PartsByMaterial) ([]ComparisonResult, error) {
	results := make([]ComparisonResult, 0, len(scenarios))

	for _, scenario := range scenarios {
		run := Optimize
		if scenario.Genetic {
			run = OptimizeGenetic
		}
		result, err := run(ctx, parts, scenario.Settings, nil)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", scenario.Name, err)
		}

		waste := 0.0
		if len(result.Boards) > 0 {
			waste = 100.0 - result.TotalEfficiency()
		}

		results = append(results, ComparisonResult{
			Scenario:      scenario,
			Result:        result,
			BoardsUsed:    len(result.Boards),
			PlacedCount:   result.PlacedCount(),
			WastePercent:  waste,
			UnplacedCount: result.UnplacedCount(),
		})
	}

	return results, nil
}

// BuildDefaultScenarios generates what-if alternatives around the current
// settings: a genetic order search, the opposite rotation policy and, for
// kerfs above 1mm, a blade half as wide.
func BuildDefaultScenarios(base model.Settings) []ComparisonScenario {
	scenarios := []ComparisonScenario{
		{Name: "Current Settings", Settings: base},
		{Name: "Genetic Search", Settings: base, Genetic: true},
	}

	flipped := base
	flipped.AllowRotation = !base.AllowRotation
	name := "Rotation Allowed"
	if base.AllowRotation {
		name = "No Rotation"
	}
	scenarios = append(scenarios, ComparisonScenario{Name: name, Settings: flipped})

	if base.KerfWidth > 1.0 {
		thin := base
		thin.KerfWidth = base.KerfWidth * 0.5
		scenarios = append(scenarios, ComparisonScenario{
			Name:     fmt.Sprintf("Kerf %.1fmm (half)", thin.KerfWidth),
			Settings: thin,
		})
	}

	return scenarios
}
