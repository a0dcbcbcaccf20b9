// Package pdf counts and slices PDF pages locally with pdfcpu, standing in
// for the service's page-count and slice endpoints when working offline.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/pavelanni/gradewizard/internal/model"
)

// Local implements page counting and slicing in-process.
type Local struct {
	logger *slog.Logger
}

// NewLocal returns a Local. A nil logger uses slog.Default.
func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{logger: logger.With("component", "pdf")}
}

// PageCount returns the number of pages in a PDF.
func (l *Local) PageCount(ctx context.Context, filename string, data []byte) (int, error) {
	if err := checkPDF(ctx, filename); err != nil {
		return 0, err
	}
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("count pages of %s: %w", filename, err)
	}
	return n, nil
}

// Slice returns a new PDF holding only the pages in a selection such as
// "1,3-5".
func (l *Local) Slice(ctx context.Context, filename string, data []byte, pages string) ([]byte, error) {
	if err := checkPDF(ctx, filename); err != nil {
		return nil, err
	}
	sel := splitSelection(pages)
	if len(sel) == 0 {
		return nil, fmt.Errorf("slice %s: empty page selection", filename)
	}
	var out bytes.Buffer
	if err := api.Trim(bytes.NewReader(data), &out, sel, nil); err != nil {
		return nil, fmt.Errorf("slice %s pages %s: %w", filename, pages, err)
	}
	l.logger.Debug("pdf sliced", "file", filename, "pages", pages, "in", len(data), "out", out.Len())
	return out.Bytes(), nil
}

func checkPDF(ctx context.Context, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return fmt.Errorf("%s: %w", filename, model.ErrUnsupportedFile)
	}
	return nil
}

func splitSelection(pages string) []string {
	var sel []string
	for _, tok := range strings.Split(pages, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			sel = append(sel, tok)
		}
	}
	return sel
}
