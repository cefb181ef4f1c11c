// Package importer reads part lists from CSV, Excel and DXF files.
// CSV import detects the delimiter automatically, and both CSV and Excel map
// columns by case-insensitive header names.
package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/SheetNest/internal/model"
)

// ImportResult holds the results of an import operation. Row problems are
// collected rather than aborting the import.
type ImportResult struct {
	Parts    []model.PartQuantity
	Errors   []string
	Warnings []string
}

// ByMaterial groups the imported parts by material. Rows without a material
// use defaultMaterial and rows without a thickness use defaultThickness.
func (r ImportResult) ByMaterial(defaultMaterial string, defaultThickness float64) model.PartsByMaterial {
	items := make([]model.PartQuantity, len(r.Parts))
	for i, pq := range r.Parts {
		if pq.Part.Material == "" {
			pq.Part.Material = defaultMaterial
		}
		if pq.Part.Thickness <= 0 {
			pq.Part.Thickness = defaultThickness
		}
		items[i] = pq
	}
	return model.GroupByMaterial(items)
}

// ColumnMapping maps semantic column roles to their indices in the data.
// -1 marks a column that is not present.
type ColumnMapping struct {
	Name        int
	Width       int
	Height      int
	Quantity    int
	Thickness   int
	Material    int
	Grain       int
	EdgeBanding int
}

// positionalMapping is used for files without a header row.
var positionalMapping = ColumnMapping{
	Name:        0,
	Width:       1,
	Height:      2,
	Quantity:    3,
	Thickness:   4,
	Material:    5,
	Grain:       6,
	EdgeBanding: 7,
}

// headerAliases maps canonical column names to their accepted aliases (all lowercase).
var headerAliases = map[string][]string{
	"name":      {"name", "label", "part", "part name", "description", "desc", "piece", "item"},
	"width":     {"width", "w", "length", "len", "x"},
	"height":    {"height", "h", "depth", "d", "y"},
	"quantity":  {"quantity", "qty", "count", "num", "amount", "pcs", "pieces"},
	"thickness": {"thickness", "thick", "t", "th"},
	"material":  {"material", "mat", "stock", "board", "sheet"},
	"grain":     {"grain", "grain direction", "grain_direction", "direction", "grain dir", "orientation"},
	"banding":   {"edge banding", "edge_banding", "edgebanding", "banding", "edges", "edge band"},
}

// DetectCSVDelimiter reads the file content and determines the most likely CSV delimiter.
// It tries comma, semicolon, tab, and pipe. The delimiter that produces the most
// consistent (non-one) column count across lines wins.
func DetectCSVDelimiter(data []byte) rune {
	candidates := []rune{',', ';', '\t', '|'}
	bestDelimiter := ','
	bestScore := 0

	for _, delim := range candidates {
		reader := csv.NewReader(bytes.NewReader(data))
		reader.Comma = delim
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		records, err := reader.ReadAll()
		if err != nil || len(records) < 1 {
			continue
		}

		firstCols := len(records[0])
		if firstCols < 2 {
			continue
		}

		score := 0
		for _, row := range records {
			if len(row) == firstCols {
				score++
			}
		}

		weighted := score*10 + firstCols
		if weighted > bestScore {
			bestScore = weighted
			bestDelimiter = delim
		}
	}

	return bestDelimiter
}

// DetectColumns examines a header row and returns a ColumnMapping.
// It returns the positional mapping and false if fewer than two cells name a
// known column.
func DetectColumns(row []string) (ColumnMapping, bool) {
	mapping := ColumnMapping{-1, -1, -1, -1, -1, -1, -1, -1}

	matches := 0
	for i, cell := range row {
		normalized := strings.ToLower(strings.TrimSpace(cell))
		for role, aliases := range headerAliases {
			for _, alias := range aliases {
				if normalized != alias {
					continue
				}
				matches++
				var slot *int
				switch role {
				case "name":
					slot = &mapping.Name
				case "width":
					slot = &mapping.Width
				case "height":
					slot = &mapping.Height
				case "quantity":
					slot = &mapping.Quantity
				case "thickness":
					slot = &mapping.Thickness
				case "material":
					slot = &mapping.Material
				case "grain":
					slot = &mapping.Grain
				case "banding":
					slot = &mapping.EdgeBanding
				}
				if *slot == -1 {
					*slot = i
				}
			}
		}
	}

	// A single match is more likely a data cell such as grain "h".
	if matches < 2 {
		return positionalMapping, false
	}
	return mapping, true
}

// getCell safely retrieves a cell value from a row by column index.
func getCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseNumber accepts both "12.5" and the decimal-comma form "12,5".
func parseNumber(s string) (float64, error) {
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return strconv.ParseFloat(s, 64)
}

// parseRow extracts a part demand from a row using the given column mapping.
// Returns the demand, any error message, and any warning messages.
func parseRow(row []string, mapping ColumnMapping, rowLabel string, partCount int) (model.PartQuantity, string, []string) {
	name := getCell(row, mapping.Name)
	if name == "" {
		name = fmt.Sprintf("Part %d", partCount+1)
	}

	widthStr := getCell(row, mapping.Width)
	if widthStr == "" {
		return model.PartQuantity{}, fmt.Sprintf("%s: Missing width value", rowLabel), nil
	}
	width, err := parseNumber(widthStr)
	if err != nil {
		return model.PartQuantity{}, fmt.Sprintf("%s: Invalid width '%s'", rowLabel, widthStr), nil
	}

	heightStr := getCell(row, mapping.Height)
	if heightStr == "" {
		return model.PartQuantity{}, fmt.Sprintf("%s: Missing height value", rowLabel), nil
	}
	height, err := parseNumber(heightStr)
	if err != nil {
		return model.PartQuantity{}, fmt.Sprintf("%s: Invalid height '%s'", rowLabel, heightStr), nil
	}

	qtyStr := getCell(row, mapping.Quantity)
	if qtyStr == "" {
		return model.PartQuantity{}, fmt.Sprintf("%s: Missing quantity value", rowLabel), nil
	}
	qty, err := strconv.Atoi(qtyStr)
	if err != nil {
		return model.PartQuantity{}, fmt.Sprintf("%s: Invalid quantity '%s'", rowLabel, qtyStr), nil
	}

	if width <= 0 || height <= 0 || qty <= 0 {
		return model.PartQuantity{}, fmt.Sprintf("%s: Width, height, and quantity must be positive", rowLabel), nil
	}

	var thickness float64
	if s := getCell(row, mapping.Thickness); s != "" {
		thickness, err = parseNumber(s)
		if err != nil || thickness <= 0 {
			return model.PartQuantity{}, fmt.Sprintf("%s: Invalid thickness '%s'", rowLabel, s), nil
		}
	}

	part := model.NewPart(name, width, height, thickness, getCell(row, mapping.Material))

	var warnings []string
	if s := getCell(row, mapping.Grain); s != "" {
		if grain, ok := model.ParseGrain(s); ok {
			part.Grain = grain
		} else {
			warnings = append(warnings, fmt.Sprintf("%s: Unknown grain direction '%s', defaulting to Any", rowLabel, s))
		}
	}
	if s := getCell(row, mapping.EdgeBanding); s != "" {
		if banding, ok := model.ParseEdgeBanding(s); ok {
			part.EdgeBanding = banding
		} else {
			warnings = append(warnings, fmt.Sprintf("%s: Unknown edge banding '%s', defaulting to None", rowLabel, s))
		}
	}

	return model.PartQuantity{Part: part, Quantity: qty}, "", warnings
}

// isEmptyRow returns true if the row has no meaningful content.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ImportCSV imports parts from a CSV file.
// It automatically detects the delimiter and maps columns by header names.
func ImportCSV(path string) ImportResult {
	result := ImportResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open file: %v", err))
		return result
	}

	if len(bytes.TrimSpace(data)) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	delimiter := DetectCSVDelimiter(data)
	if delimiter != ',' {
		delimName := map[rune]string{';': "semicolon", '\t': "tab", '|': "pipe"}[delimiter]
		result.Warnings = append(result.Warnings, fmt.Sprintf("Detected %s delimiter", delimName))
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read CSV: %v", err))
		return result
	}

	return importFromRows(records, "Line", result.Warnings)
}

// ImportCSVFromReader imports parts from a CSV reader with a known delimiter.
func ImportCSVFromReader(reader io.Reader, delimiter rune) ImportResult {
	result := ImportResult{}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = delimiter
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read CSV: %v", err))
		return result
	}

	return importFromRows(records, "Line", nil)
}

// ImportExcel imports parts from the first sheet of an Excel (.xlsx) file.
func ImportExcel(path string) ImportResult {
	result := ImportResult{}

	f, err := excelize.OpenFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open Excel file: %v", err))
		return result
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		result.Errors = append(result.Errors, "Excel file has no sheets")
		return result
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read Excel data: %v", err))
		return result
	}

	return importFromRows(rows, "Row", nil)
}

// importFromRows is the shared import logic for both CSV and Excel data.
func importFromRows(rows [][]string, rowPrefix string, initialWarnings []string) ImportResult {
	result := ImportResult{
		Warnings: initialWarnings,
	}

	if len(rows) == 0 {
		result.Errors = append(result.Errors, "No data rows found")
		return result
	}

	mapping, hasHeader := DetectColumns(rows[0])
	startRow := 0
	if hasHeader {
		startRow = 1
		result.Warnings = append(result.Warnings, "Detected header row, skipping")

		var missing []string
		if mapping.Width == -1 {
			missing = append(missing, "Width")
		}
		if mapping.Height == -1 {
			missing = append(missing, "Height")
		}
		if mapping.Quantity == -1 {
			missing = append(missing, "Quantity")
		}
		if len(missing) > 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("Required columns not found in header: %s", strings.Join(missing, ", ")))
			return result
		}
	} else if len(rows[0]) >= 3 {
		// An unrecognized header still has a non-numeric width column.
		if _, err := parseNumber(strings.TrimSpace(rows[0][1])); err != nil {
			startRow = 1
			result.Warnings = append(result.Warnings, "Detected header row, skipping")
		}
	}

	for i := startRow; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}

		rowLabel := fmt.Sprintf("%s %d", rowPrefix, i+1)
		pq, errMsg, warnings := parseRow(row, mapping, rowLabel, len(result.Parts))
		if errMsg != "" {
			result.Errors = append(result.Errors, errMsg)
			continue
		}
		result.Warnings = append(result.Warnings, warnings...)
		result.Parts = append(result.Parts, pq)
	}

	return result
}
