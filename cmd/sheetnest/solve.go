package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/piwi3910/SheetNest/internal/engine"
	"github.com/piwi3910/SheetNest/internal/export"
	"github.com/piwi3910/SheetNest/internal/importer"
	"github.com/piwi3910/SheetNest/internal/model"
	"github.com/piwi3910/SheetNest/internal/project"
	"github.com/piwi3910/SheetNest/internal/solver"
)

const (
	defaultMaterial  = "Default"
	defaultThickness = 18.0
)

func runSolve(args []string) error {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	partsPath := fs.String("parts", "", "part list to nest (.csv, .xlsx or .dxf)")
	settingsPath := fs.String("settings", "", "nesting settings file (JSON or YAML); defaults come from the config")
	stockPath := fs.String("stock", project.DefaultStockPath(), "stock catalog used for materials the settings do not define")
	material := fs.String("material", defaultMaterial, "material for rows that do not name one")
	thickness := fs.Float64("thickness", defaultThickness, "thickness in mm for rows that do not give one")
	pdfPath := fs.String("pdf", "", "write a PDF layout report")
	labelsPath := fs.String("labels", "", "write QR-coded part labels as PDF")
	jsonPath := fs.String("json", "", `write the result as JSON ("-" for stdout)`)
	comparePath := fs.String("compare", "", "also run what-if scenarios and write an HTML comparison chart")
	_ = fs.Parse(args)

	if *partsPath == "" {
		fs.Usage()
		return errors.New("-parts is required")
	}

	e, err := setup(common)
	if err != nil {
		return err
	}
	defer e.close()
	logger := e.logger

	imported := importParts(*partsPath)
	for _, w := range imported.Warnings {
		logger.Warn("import", "file", *partsPath, "warning", w)
	}
	for _, msg := range imported.Errors {
		logger.Error("import", "file", *partsPath, "error", msg)
	}
	if len(imported.Parts) == 0 {
		return fmt.Errorf("no parts imported from %s", *partsPath)
	}
	parts := imported.ByMaterial(*material, *thickness)

	settings, err := loadSettings(*settingsPath, e.config)
	if err != nil {
		return err
	}
	catalog, err := project.LoadStockCatalog(*stockPath)
	if err != nil {
		return fmt.Errorf("load stock catalog: %w", err)
	}
	settings, fromCatalog := catalog.ApplyTo(settings)
	if len(fromCatalog) > 0 {
		logger.Debug("stock taken from catalog", "materials", strings.Join(fromCatalog, ", "))
	}
	settings, defaulted := settings.EnsureStock(parts)
	for _, m := range defaulted {
		logger.Warn("no stock defined, using the default sheet", "material", m,
			"width", model.DefaultStockWidth, "height", model.DefaultStockHeight)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, err := e.orch.Solve(ctx, parts, settings)
	if err != nil {
		return fmt.Errorf("start solve: %w", err)
	}
	for ev := range job.Events() {
		switch ev.Kind {
		case solver.EventProgress:
			logger.Debug("progress", "percent", fmt.Sprintf("%.0f", ev.Percent), "message", ev.Message)
		case solver.EventCancelled:
			logger.Warn("solve cancelled")
		case solver.EventError:
			logger.Error("solve failed", "error", ev.Err)
		}
	}
	result, err := job.Wait(context.Background())
	if err != nil {
		return err
	}
	if job.Status().CacheHit {
		logger.Info("result loaded from cache", "key", job.Key)
	}

	printSummary(result)
	if err := writeOutputs(result, settings, *pdfPath, *labelsPath, *jsonPath); err != nil {
		return err
	}
	if *comparePath != "" {
		return compare(ctx, *comparePath, parts, settings)
	}
	return nil
}

// compare nests the parts under the default what-if scenarios, prints a table
// and writes the chart.
func compare(ctx context.Context, path string, parts model.PartsByMaterial, settings model.Settings) error {
	results, err := engine.CompareScenarios(ctx, engine.BuildDefaultScenarios(settings), parts)
	if err != nil {
		return fmt.Errorf("compare scenarios: %w", err)
	}
	fmt.Println("Scenarios:")
	for _, r := range results {
		fmt.Printf("  %-22s %3d boards  %5.1f%% waste  %d unplaced\n",
			r.Scenario.Name, r.BoardsUsed, r.WastePercent, r.UnplacedCount)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteComparisonChart(f, results); err != nil {
		f.Close()
		return fmt.Errorf("write comparison chart: %w", err)
	}
	return f.Close()
}

func importParts(path string) importer.ImportResult {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return importer.ImportExcel(path)
	case ".dxf":
		return importer.ImportDXF(path)
	default:
		return importer.ImportCSV(path)
	}
}

// loadSettings reads the settings file, or starts from the defaults with the
// user's configured kerf and rotation preference.
func loadSettings(path string, config model.AppConfig) (model.Settings, error) {
	if path == "" {
		s := model.DefaultSettings()
		config.ApplyToSettings(&s)
		return s, nil
	}
	s, err := project.LoadSettings(path)
	if err != nil {
		return model.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

func printSummary(result model.Result) {
	fmt.Printf("Boards: %d  Placed: %d  Unplaced: %d  Efficiency: %.1f%%\n",
		len(result.Boards), result.PlacedCount(), result.UnplacedCount(), result.TotalEfficiency())
	for _, b := range result.Boards {
		fmt.Printf("  board %d  %-16s %4.0f x %4.0f  %3d parts  %5.1f%%\n",
			b.Index+1, b.Material, b.StockWidth, b.StockHeight, len(b.Parts), b.EfficiencyPercentage())
	}
	for _, u := range result.Unplaced {
		fmt.Printf("  unplaced %dx %s (%s, %.0f x %.0f): %s\n", u.Count, u.Name, u.Material, u.Width, u.Height, u.Reason)
	}
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}

func writeOutputs(result model.Result, settings model.Settings, pdfPath, labelsPath, jsonPath string) error {
	if pdfPath != "" {
		if err := export.ExportPDF(pdfPath, result, settings); err != nil {
			return fmt.Errorf("write PDF report: %w", err)
		}
	}
	if labelsPath != "" {
		if err := export.ExportLabels(labelsPath, result); err != nil {
			return fmt.Errorf("write labels: %w", err)
		}
	}
	if jsonPath != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		if jsonPath == "-" {
			_, err = os.Stdout.Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(jsonPath, data, 0644); err != nil {
			return fmt.Errorf("write JSON result: %w", err)
		}
	}
	return nil
}
