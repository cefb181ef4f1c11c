package export

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/piwi3910/SheetNest/internal/engine"
)

// WriteComparisonChart renders an HTML bar chart comparing scenario runs:
// boards used, waste percentage and unplaced pieces per scenario.
func WriteComparisonChart(w io.Writer, results []engine.ComparisonResult) error {
	if len(results) == 0 {
		return errors.New("no scenarios to chart")
	}

	names := make([]string, len(results))
	boards := make([]opts.BarData, len(results))
	waste := make([]opts.BarData, len(results))
	unplaced := make([]opts.BarData, len(results))
	for i, r := range results {
		names[i] = r.Scenario.Name
		boards[i] = opts.BarData{Value: r.BoardsUsed}
		waste[i] = opts.BarData{Value: math.Round(r.WastePercent*10) / 10}
		unplaced[i] = opts.BarData{Value: r.UnplacedCount}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "SheetNest scenario comparison"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Scenario comparison",
			Subtitle: fmt.Sprintf("%d scenarios", len(results)),
		}),
	)
	bar.SetXAxis(names).
		AddSeries("Boards", boards).
		AddSeries("Waste %", waste).
		AddSeries("Unplaced", unplaced)

	return bar.Render(w)
}
