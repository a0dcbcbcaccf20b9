package export

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a results table as a landscape A4 report.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF with an optional title and summary line above the
// table. The Feedback column takes the remaining width after fixed-width
// score columns.
func (e *PDFExporter) Render(data Dataset, title, summary string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, errors.New("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
	}
	if summary != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 8, tr(summary), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	widths := columnWidths(data.Headers, 277)

	pdf.SetFont("Arial", "B", 10)
	for i, header := range data.Headers {
		pdf.CellFormat(widths[i], 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			align := "C"
			if header == colStudent || header == colFeedback {
				align = "L"
			}
			value := tr(row[header])
			if header == colFeedback {
				value = fitText(pdf, value, widths[i]-2)
			}
			pdf.CellFormat(widths[i], 7, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(headers []string, total float64) []float64 {
	const studentW, scoreW = 40.0, 18.0
	widths := make([]float64, len(headers))
	fixed := 0.0
	feedback := -1
	for i, h := range headers {
		switch h {
		case colStudent:
			widths[i] = studentW
		case colFeedback:
			feedback = i
			continue
		default:
			widths[i] = scoreW
		}
		fixed += widths[i]
	}
	if feedback >= 0 {
		widths[feedback] = max(total-fixed, 30)
	}
	return widths
}

// fitText truncates s with an ellipsis so it renders within width.
func fitText(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
