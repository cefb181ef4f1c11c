// Package export renders nesting results to printable PDF documents.
package export

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-pdf/fpdf"

	"github.com/piwi3910/SheetNest/internal/model"
)

// ErrNothingToExport is returned when a result has no boards to render.
var ErrNothingToExport = errors.New("no boards to export")

// partColor represents an RGB color for a placed part.
type partColor struct {
	R, G, B int
}

var partColors = []partColor{
	{R: 76, G: 175, B: 80},  // green
	{R: 33, G: 150, B: 243}, // blue
	{R: 255, G: 152, B: 0},  // orange
	{R: 156, G: 39, B: 176}, // purple
	{R: 0, G: 188, B: 212},  // cyan
	{R: 244, G: 67, B: 54},  // red
	{R: 255, G: 235, B: 59}, // yellow
	{R: 121, G: 85, B: 72},  // brown
}

// Page layout constants (A4 landscape in mm).
const (
	pageWidth    = 297.0
	pageHeight   = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 15.0
	headerHeight = 12.0
	statsHeight  = 20.0
	drawAreaTop  = marginTop + headerHeight + 5.0
	contentWidth = pageWidth - marginLeft - marginRight
)

// ExportPDF writes a layout report for a result. Each board is rendered on its
// own page with a scaled diagram, followed by summary pages with efficiency,
// unplaced parts, warnings, edge banding and sheet cost.
func ExportPDF(path string, result model.Result, settings model.Settings) error {
	if len(result.Boards) == 0 {
		return ErrNothingToExport
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, marginBottom)

	colors := colorIndex(result)
	for _, board := range result.Boards {
		pdf.AddPage()
		renderBoardPage(pdf, board, colors)
	}

	pdf.AddPage()
	renderSummaryPage(pdf, result, settings)

	return pdf.OutputFileAndClose(path)
}

// colorIndex assigns each part name a stable color so that the same part
// looks the same on every board.
func colorIndex(result model.Result) map[string]partColor {
	var names []string
	seen := map[string]bool{}
	for _, b := range result.Boards {
		for _, p := range b.Parts {
			if !seen[p.Name] {
				seen[p.Name] = true
				names = append(names, p.Name)
			}
		}
	}
	sort.Strings(names)

	colors := make(map[string]partColor, len(names))
	for i, name := range names {
		colors[name] = partColors[i%len(partColors)]
	}
	return colors
}

// renderBoardPage draws a single board on the current PDF page.
func renderBoardPage(pdf *fpdf.Fpdf, board model.Board, colors map[string]partColor) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(marginLeft, marginTop)
	title := fmt.Sprintf("Board %d: %s %.0f mm (%.0f x %.0f mm)",
		board.Index+1, board.Material, board.Thickness, board.StockWidth, board.StockHeight)
	pdf.CellFormat(contentWidth, headerHeight, title, "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(marginLeft, marginTop+headerHeight)
	stats := fmt.Sprintf("Parts: %d | Used area: %.0f mm2 | Waste: %.0f mm2 | Efficiency: %.1f%%",
		len(board.Parts), board.UsedArea(), board.WasteArea(), board.EfficiencyPercentage())
	pdf.CellFormat(contentWidth, 5, stats, "", 0, "L", false, 0, "")

	drawHeight := pageHeight - drawAreaTop - marginBottom - statsHeight
	scale := math.Min(contentWidth/board.StockWidth, drawHeight/board.StockHeight)

	canvasW := board.StockWidth * scale
	canvasH := board.StockHeight * scale
	offsetX := marginLeft + (contentWidth-canvasW)/2
	offsetY := drawAreaTop

	// Stock sheet background (wood color)
	pdf.SetFillColor(210, 180, 140)
	pdf.SetDrawColor(100, 100, 100)
	pdf.SetLineWidth(0.5)
	pdf.Rect(offsetX, offsetY, canvasW, canvasH, "FD")

	for _, p := range board.Parts {
		col := colors[p.Name]
		pw := p.PlacedWidth() * scale
		ph := p.PlacedHeight() * scale
		px := offsetX + p.X*scale
		py := offsetY + p.Y*scale

		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.SetDrawColor(30, 30, 30)
		pdf.SetLineWidth(0.3)
		pdf.Rect(px, py, pw, ph, "FD")

		if p.Grain != model.GrainAny {
			drawGrainLines(pdf, px, py, pw, ph)
		}

		if pw > 15 && ph > 8 {
			pdf.SetFont("Helvetica", "", labelFontSize(pw, ph))
			pdf.SetTextColor(0, 0, 0)

			label := fmt.Sprintf("#%d %s", p.InstanceID, p.Name)
			dims := fmt.Sprintf("%.0fx%.0f", p.Width, p.Height)
			labelW := pdf.GetStringWidth(label)
			dimsW := pdf.GetStringWidth(dims)

			if labelW < pw-2 {
				pdf.SetXY(px+(pw-labelW)/2, py+ph/2-4)
				pdf.CellFormat(labelW, 4, label, "", 0, "C", false, 0, "")
			}
			if ph > 14 && dimsW < pw-2 {
				pdf.SetXY(px+(pw-dimsW)/2, py+ph/2)
				pdf.CellFormat(dimsW, 4, dims, "", 0, "C", false, 0, "")
			}
		}
	}

	drawDimensionAnnotations(pdf, board, offsetX, offsetY, canvasW, canvasH)
	drawPartsLegend(pdf, board, colors, offsetY+canvasH+5)
}

// drawGrainLines strokes thin lines along the sheet's X axis, the direction
// the grain of every constrained part runs once placed.
func drawGrainLines(pdf *fpdf.Fpdf, x, y, w, h float64) {
	pdf.SetDrawColor(90, 60, 30)
	pdf.SetLineWidth(0.1)

	spacing := 3.0
	for ly := y + spacing; ly < y+h; ly += spacing {
		pdf.Line(x+1, ly, x+w-1, ly)
	}
	pdf.SetDrawColor(30, 30, 30)
}

// drawDimensionAnnotations adds width and height labels outside the board rectangle.
func drawDimensionAnnotations(pdf *fpdf.Fpdf, board model.Board, offsetX, offsetY, canvasW, canvasH float64) {
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetTextColor(80, 80, 80)

	widthLabel := fmt.Sprintf("%.0f mm", board.StockWidth)
	wLabelW := pdf.GetStringWidth(widthLabel)
	pdf.SetXY(offsetX+(canvasW-wLabelW)/2, offsetY+canvasH+1)
	pdf.CellFormat(wLabelW, 4, widthLabel, "", 0, "C", false, 0, "")

	heightLabel := fmt.Sprintf("%.0f mm", board.StockHeight)
	pdf.TransformBegin()
	pdf.TransformRotate(90, offsetX-3, offsetY+canvasH/2)
	hLabelW := pdf.GetStringWidth(heightLabel)
	pdf.SetXY(offsetX-3-hLabelW/2, offsetY+canvasH/2-2)
	pdf.CellFormat(hLabelW, 4, heightLabel, "", 0, "C", false, 0, "")
	pdf.TransformEnd()

	pdf.SetTextColor(0, 0, 0)
}

// drawPartsLegend renders a compact legend of placed parts below the board.
func drawPartsLegend(pdf *fpdf.Fpdf, board model.Board, colors map[string]partColor, startY float64) {
	if len(board.Parts) == 0 {
		return
	}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(marginLeft, startY)
	pdf.CellFormat(30, 4, "Parts placed:", "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	xPos := marginLeft + 32
	maxX := pageWidth - marginRight

	for _, p := range board.Parts {
		col := colors[p.Name]
		label := fmt.Sprintf("#%d %s (%.0fx%.0f)", p.InstanceID, p.Name, p.Width, p.Height)
		if p.Rotated {
			label += " R"
		}
		labelW := pdf.GetStringWidth(label) + 6

		if xPos+labelW > maxX {
			startY += 5
			xPos = marginLeft
		}

		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.Rect(xPos, startY+0.5, 3, 3, "F")

		pdf.SetXY(xPos+4, startY)
		pdf.CellFormat(labelW-4, 4, label, "", 0, "L", false, 0, "")

		xPos += labelW + 2
	}
}

// summaryWriter tracks the cursor on the summary pages and starts a new page
// when a block would run into the bottom margin.
type summaryWriter struct {
	pdf *fpdf.Fpdf
	y   float64
}

func (w *summaryWriter) reserve(height float64) {
	if w.y+height > pageHeight-marginBottom-6 {
		w.pdf.AddPage()
		w.y = marginTop
	}
}

func (w *summaryWriter) heading(text string) {
	w.reserve(16)
	w.y += 5
	w.pdf.SetFont("Helvetica", "B", 12)
	w.pdf.SetTextColor(0, 0, 0)
	w.pdf.SetXY(marginLeft, w.y)
	w.pdf.CellFormat(contentWidth, 7, text, "", 0, "L", false, 0, "")
	w.y += 9
}

func (w *summaryWriter) keyValue(label, value string) {
	w.reserve(7)
	w.pdf.SetFont("Helvetica", "", 10)
	w.pdf.SetXY(marginLeft+5, w.y)
	w.pdf.CellFormat(60, 6, label+":", "", 0, "L", false, 0, "")
	w.pdf.SetFont("Helvetica", "B", 10)
	w.pdf.CellFormat(80, 6, value, "", 0, "L", false, 0, "")
	w.y += 7
}

func (w *summaryWriter) line(text string) {
	w.reserve(5)
	w.pdf.SetFont("Helvetica", "", 9)
	w.pdf.SetXY(marginLeft+5, w.y)
	w.pdf.CellFormat(contentWidth-5, 5, text, "", 0, "L", false, 0, "")
	w.y += 5
}

func (w *summaryWriter) table(widths []float64, headers []string, rows [][]string) {
	w.reserve(12)
	w.pdf.SetFont("Helvetica", "B", 9)
	w.pdf.SetFillColor(230, 230, 230)
	xPos := marginLeft
	for i, header := range headers {
		w.pdf.SetXY(xPos, w.y)
		w.pdf.CellFormat(widths[i], 6, header, "1", 0, "C", true, 0, "")
		xPos += widths[i]
	}
	w.y += 6

	w.pdf.SetFont("Helvetica", "", 9)
	for i, row := range rows {
		w.reserve(6)
		if i%2 == 0 {
			w.pdf.SetFillColor(245, 245, 245)
		} else {
			w.pdf.SetFillColor(255, 255, 255)
		}
		xPos = marginLeft
		for j, cell := range row {
			w.pdf.SetXY(xPos, w.y)
			w.pdf.CellFormat(widths[j], 6, cell, "1", 0, "C", true, 0, "")
			xPos += widths[j]
		}
		w.y += 6
	}
}

// renderSummaryPage draws the result summary, continuing onto further pages
// when the lists are long.
func renderSummaryPage(pdf *fpdf.Fpdf, result model.Result, settings model.Settings) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetXY(marginLeft, marginTop)
	pdf.CellFormat(contentWidth, 10, "Nesting Summary", "", 0, "L", false, 0, "")

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.5)
	pdf.Line(marginLeft, marginTop+12, pageWidth-marginRight, marginTop+12)

	w := &summaryWriter{pdf: pdf, y: marginTop + 13}

	w.heading("Overall Statistics")
	w.keyValue("Boards Used", fmt.Sprintf("%d", len(result.Boards)))
	w.keyValue("Overall Efficiency", fmt.Sprintf("%.1f%%", result.TotalEfficiency()))
	w.keyValue("Parts Placed", fmt.Sprintf("%d", result.PlacedCount()))
	w.keyValue("Parts Unplaced", fmt.Sprintf("%d", result.UnplacedCount()))
	w.keyValue("Kerf Width", fmt.Sprintf("%.1f mm", settings.KerfWidth))
	rotation := "not allowed"
	if settings.AllowRotation {
		rotation = "allowed"
	}
	w.keyValue("Rotation", rotation)

	w.heading("Board Breakdown")
	rows := make([][]string, 0, len(result.Boards))
	for _, b := range result.Boards {
		rows = append(rows, []string{
			fmt.Sprintf("%d", b.Index+1),
			b.Material,
			fmt.Sprintf("%.0f x %.0f x %.0f mm", b.StockWidth, b.StockHeight, b.Thickness),
			fmt.Sprintf("%d", len(b.Parts)),
			fmt.Sprintf("%.1f%%", b.EfficiencyPercentage()),
			fmt.Sprintf("%.0f / %.0f mm2", b.UsedArea(), b.TotalArea()),
		})
	}
	w.table([]float64{20, 55, 60, 25, 35, 70},
		[]string{"Board", "Material", "Stock", "Parts", "Efficiency", "Used / Total Area"}, rows)

	if len(result.Unplaced) > 0 {
		w.heading("Unplaced Parts")
		pdf.SetTextColor(200, 0, 0)
		for _, u := range result.Unplaced {
			w.line(fmt.Sprintf("- %s (%s): %.0f x %.0f mm, qty %d: %s",
				u.Name, u.Material, u.Width, u.Height, u.Count, u.Reason))
		}
		pdf.SetTextColor(0, 0, 0)
	}

	if len(result.Warnings) > 0 {
		w.heading("Warnings")
		for _, warning := range result.Warnings {
			w.line("- " + warning.String())
		}
	}

	banding := model.CalculateEdgeBanding(result, 10)
	if banding.PartCount > 0 {
		w.heading("Edge Banding")
		w.keyValue("Pieces / Edges", fmt.Sprintf("%d / %d", banding.PartCount, banding.EdgeCount))
		w.keyValue("Length (+10% waste)", fmt.Sprintf("%.2f m (%.2f m)", banding.TotalLinearM, banding.TotalWithWasteM))
		var bandRows [][]string
		for _, row := range model.CalculatePerPartEdgeBanding(result) {
			bandRows = append(bandRows, []string{
				row.Name,
				fmt.Sprintf("%.0f x %.0f", row.Width, row.Height),
				string(row.Edges),
				fmt.Sprintf("%d", row.Quantity),
				fmt.Sprintf("%.0f mm", row.TotalLength),
			})
		}
		w.table([]float64{70, 50, 40, 25, 50},
			[]string{"Part", "Size", "Edges", "Qty", "Total Length"}, bandRows)
	}

	cost := model.CalculateCost(result, settings)
	if len(cost.Materials) > 0 {
		w.heading("Sheet Cost")
		var costRows [][]string
		for _, mc := range cost.Materials {
			costRows = append(costRows, []string{
				mc.Material,
				fmt.Sprintf("%d", mc.Boards),
				mc.PricePerSheet.StringFixed(2) + " " + mc.Currency,
				mc.Total.StringFixed(2) + " " + mc.Currency,
				fmt.Sprintf("%.2f m2", mc.WasteAreaM2),
			})
		}
		w.table([]float64{70, 25, 45, 45, 45},
			[]string{"Material", "Boards", "Per Sheet", "Total", "Waste"}, costRows)

		currencies := make([]string, 0, len(cost.Totals))
		for c := range cost.Totals {
			currencies = append(currencies, c)
		}
		sort.Strings(currencies)
		w.y += 2
		for _, c := range currencies {
			w.keyValue("Total "+c, cost.Totals[c].StringFixed(2))
		}
	}

	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.SetXY(marginLeft, pageHeight-marginBottom)
	pdf.CellFormat(contentWidth, 4, "Generated by SheetNest", "", 0, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

// labelFontSize returns an appropriate font size based on the rectangle dimensions.
func labelFontSize(w, h float64) float64 {
	minDim := math.Min(w, h)
	switch {
	case minDim > 40:
		return 8
	case minDim > 20:
		return 7
	default:
		return 6
	}
}
