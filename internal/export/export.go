// Package export renders graded results as JSON, CSV or a PDF report.
package export

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pavelanni/gradewizard/internal/model"
)

// Format is an export file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json, csv or pdf)", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/json"
}

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

const (
	colStudent  = "Student"
	colTotal    = "Total"
	colFeedback = "Feedback"
)

// FromResults flattens results into one row per student with a column per
// question. Question columns follow the rubric order when a rubric is given,
// and natural id order otherwise.
func FromResults(res model.Results, rubric *model.WizardRubric) Dataset {
	var qids []string
	if rubric != nil {
		for _, q := range rubric.Questions {
			qids = append(qids, q.ID)
		}
	} else {
		seen := map[string]bool{}
		for _, item := range res.Items {
			for _, b := range item.Breakdown {
				if !seen[b.QuestionID] {
					seen[b.QuestionID] = true
					qids = append(qids, b.QuestionID)
				}
			}
		}
		model.SortQuestionIDs(qids)
	}

	headers := append([]string{colStudent}, qids...)
	headers = append(headers, colTotal, colFeedback)

	rows := make([]map[string]string, 0, len(res.Items))
	for _, item := range res.Items {
		row := map[string]string{
			colStudent: item.StudentID,
			colTotal:   formatScore(item.TotalScore),
		}
		if item.Feedback != nil {
			row[colFeedback] = *item.Feedback
		}
		for _, b := range item.Breakdown {
			if !slices.Contains(qids, b.QuestionID) {
				continue
			}
			cell := formatScore(b.Score)
			if b.MaxScore != nil {
				cell += "/" + formatScore(*b.MaxScore)
			}
			row[b.QuestionID] = cell
		}
		rows = append(rows, row)
	}
	return Dataset{Headers: headers, Rows: rows}
}

// Render encodes results in format. The title heads the PDF report.
func Render(format Format, res model.Results, rubric *model.WizardRubric, title string) ([]byte, error) {
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode results: %w", err)
		}
		return b, nil
	case FormatCSV:
		return NewCSVExporter().Render(FromResults(res, rubric))
	case FormatPDF:
		summary := fmt.Sprintf("Students: %d   Average score: %s", len(res.Items), formatScore(res.AverageScore))
		if res.ProfileID != "" {
			summary += "   Profile: " + res.ProfileID
		}
		return NewPDFExporter().Render(FromResults(res, rubric), title, summary)
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
