package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/piwi3910/SheetNest/internal/model"
)

// LabelInfo holds the data encoded into each part label's QR code.
type LabelInfo struct {
	InstanceID  int               `json:"id"`
	Name        string            `json:"name"`
	Material    string            `json:"material"`
	Width       float64           `json:"width_mm"`
	Height      float64           `json:"height_mm"`
	Thickness   float64           `json:"thickness_mm"`
	EdgeBanding model.EdgeBanding `json:"edge_banding"`
	Board       int               `json:"board"` // 1-based, as printed on the report
	Rotated     bool              `json:"rotated"`
	X           float64           `json:"x_mm"`
	Y           float64           `json:"y_mm"`
}

// Label layout constants for Avery 5160-compatible labels (3 columns, 10 rows per page).
// Each label cell is approximately 66.7mm x 25.4mm on US Letter paper.
const (
	labelPageWidth  = 215.9 // US Letter width in mm
	labelPageHeight = 279.4 // US Letter height in mm
	labelMarginTop  = 12.7  // mm
	labelMarginLeft = 4.8   // mm
	labelWidth      = 66.7  // mm per label
	labelHeight     = 25.4  // mm per label
	labelCols       = 3
	labelRows       = 10
	labelsPerPage   = labelCols * labelRows
	qrSize          = 20.0 // QR code size in mm
	labelPadding    = 2.0  // mm internal padding
)

// ExportLabels generates a PDF of QR-coded labels, one per placed instance,
// in instance ID order. The QR code carries the instance ID so a scanned
// piece can be found on the layout report.
func ExportLabels(path string, result model.Result) error {
	if len(result.Boards) == 0 {
		return ErrNothingToExport
	}

	labels := CollectLabelInfos(result)
	if len(labels) == 0 {
		return fmt.Errorf("no parts placed to generate labels for")
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)

	for i, label := range labels {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		posOnPage := i % labelsPerPage
		col := posOnPage % labelCols
		row := posOnPage / labelCols

		x := labelMarginLeft + float64(col)*labelWidth
		y := labelMarginTop + float64(row)*labelHeight

		if err := renderLabel(pdf, x, y, label); err != nil {
			return fmt.Errorf("render label #%d %q: %w", label.InstanceID, label.Name, err)
		}
	}

	return pdf.OutputFileAndClose(path)
}

// renderLabel draws a single label at the given position.
func renderLabel(pdf *fpdf.Fpdf, x, y float64, info LabelInfo) error {
	// Light border as a cutting guide
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(0.1)
	pdf.Rect(x, y, labelWidth, labelHeight, "D")

	qrPNG, err := encodeQR(info)
	if err != nil {
		return err
	}

	imgName := fmt.Sprintf("qr_%d", info.InstanceID)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(imgName, opts, bytes.NewReader(qrPNG))

	qrX := x + labelWidth - qrSize - labelPadding
	qrY := y + (labelHeight-qrSize)/2
	pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, opts, 0, "")

	textX := x + labelPadding
	textW := labelWidth - qrSize - 3*labelPadding

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(textX, y+labelPadding)
	pdf.CellFormat(textW, 4.5, truncate(pdf, fmt.Sprintf("#%d %s", info.InstanceID, info.Name), textW), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	pdf.SetXY(textX, y+labelPadding+5)
	dims := fmt.Sprintf("%.0f x %.0f x %.0f mm", info.Width, info.Height, info.Thickness)
	pdf.CellFormat(textW, 3.5, dims, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 6)
	pdf.SetTextColor(100, 100, 100)
	pdf.SetXY(textX, y+labelPadding+9)
	pdf.CellFormat(textW, 3, truncate(pdf, fmt.Sprintf("%s, board %d @ (%.0f, %.0f)", info.Material, info.Board, info.X, info.Y), textW), "", 1, "L", false, 0, "")

	var flags string
	if info.EdgeBanding.EdgeCount() > 0 {
		flags = "Band: " + string(info.EdgeBanding)
	}
	if info.Rotated {
		if flags != "" {
			flags += "  "
		}
		flags += "Rotated 90\xb0"
	}
	if flags != "" {
		pdf.SetXY(textX, y+labelPadding+12.5)
		pdf.SetFont("Helvetica", "I", 6)
		pdf.SetTextColor(150, 100, 0)
		pdf.CellFormat(textW, 3, flags, "", 0, "L", false, 0, "")
	}

	pdf.SetTextColor(0, 0, 0)
	return nil
}

func encodeQR(info LabelInfo) ([]byte, error) {
	payload, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshal label info: %w", err)
	}
	png, err := qrcode.Encode(string(payload), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("generate QR code: %w", err)
	}
	return png, nil
}

func truncate(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}

// CollectLabelInfos extracts one label per placed instance, ordered by
// instance ID.
func CollectLabelInfos(result model.Result) []LabelInfo {
	var labels []LabelInfo
	for _, b := range result.Boards {
		for _, p := range b.Parts {
			labels = append(labels, LabelInfo{
				InstanceID:  p.InstanceID,
				Name:        p.Name,
				Material:    p.Material,
				Width:       p.Width,
				Height:      p.Height,
				Thickness:   p.Thickness,
				EdgeBanding: p.EdgeBanding,
				Board:       b.Index + 1,
				Rotated:     p.Rotated,
				X:           p.X,
				Y:           p.Y,
			})
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].InstanceID < labels[j].InstanceID })
	return labels
}
