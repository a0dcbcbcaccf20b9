package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/review"
	"github.com/pavelanni/gradewizard/internal/scan"
	"github.com/pavelanni/gradewizard/internal/store"
)

// scanResult is the outcome of one scanned file.
type scanResult struct {
	File     string           `json:"file"`
	Session  string           `json:"session,omitempty"`
	Document *review.Document `json:"document,omitempty"`
	Flagged  int              `json:"flagged,omitempty"`
	Error    *scan.Failure    `json:"error,omitempty"`
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan FILE...",
		Short: "Extract student answers or a rubric from scanned files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			return runScan(cmd, args)
		},
	}

	f := cmd.Flags()
	f.String("type", string(model.UploadStudent), "Upload type (student, rubric)")
	f.String("pages", "", "Page selection for PDFs, e.g. 1-3,5 (empty means all pages)")
	f.String("instructions", "", "Additional extraction instructions")
	f.Int("concurrency", 0, "Files processed in parallel (0 uses the CPU count)")
	f.String("output", "-", "Output file for the JSON results (- for stdout)")
	f.Bool("no-save", false, "Do not save sessions")
	addStoreFlag(cmd)
	addExtractorFlags(cmd)

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	logger := slog.Default()

	kind, err := model.ParseUploadType(v.GetString("type"))
	if err != nil {
		return err
	}
	ex, err := newExtraction(ctx, v, logger)
	if err != nil {
		return err
	}

	var sessions *store.Sessions
	if !v.GetBool("no-save") {
		kv, s, _, err := openStore(ctx, v)
		if err != nil {
			return err
		}
		defer kv.Close()
		sessions = s
	}

	job := scanJob{
		extractor:    ex.extractor,
		options:      append(ex.options, scan.WithLogger(logger)),
		sessions:     sessions,
		kind:         kind,
		pages:        v.GetString("pages"),
		instructions: v.GetString("instructions"),
		logger:       logger,
	}

	results := make([]scanResult, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(v.GetInt("concurrency"), len(args)))
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = job.run(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	out, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func workerCount(requested, files int) int {
	n := requested
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return max(1, min(n, files))
}

// scanJob processes single files with a private review model each.
type scanJob struct {
	extractor    scan.Extractor
	options      []scan.Option
	sessions     *store.Sessions
	kind         model.UploadType
	pages        string
	instructions string
	logger       *slog.Logger
}

func (j scanJob) run(ctx context.Context, path string) scanResult {
	res := scanResult{File: path}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Error = &scan.Failure{Class: scan.ClassOther, Title: "Read error", Message: err.Error(), Err: err}
		return res
	}

	doc := review.New(review.WithLogger(j.logger))
	orch := scan.New(j.extractor, doc, j.options...)
	file := scan.File{Name: filepath.Base(path), Data: data}

	if err := j.process(ctx, orch, file); err != nil {
		res.Error = asFailure(err)
		j.logger.Warn("scan failed", "file", path, "error", err)
		return res
	}

	d, _ := doc.Document()
	res.Document = &d
	for _, id := range doc.CardIDs() {
		if rec, ok := doc.Card(id); ok && rec.Flagged {
			res.Flagged++
		}
	}

	if j.sessions != nil {
		id, err := j.sessions.Save(ctx, file.Name, j.kind, data, documentData(d))
		if err != nil {
			j.logger.Warn("save session failed", "file", path, "error", err)
		} else {
			res.Session = id
		}
	}
	return res
}

func (j scanJob) process(ctx context.Context, orch *scan.Orchestrator, file scan.File) error {
	if err := orch.SubmitFile(file, j.kind); err != nil {
		return err
	}
	if j.pages != "" && file.IsPDF() {
		if _, err := orch.FetchPageCount(ctx); err != nil {
			return err
		}
		if err := orch.SelectPages(j.pages); err != nil {
			return err
		}
	}
	if err := orch.SetInstructions(j.instructions); err != nil {
		return err
	}
	return orch.Process(ctx)
}

// asFailure reports any error as a *scan.Failure.
func asFailure(err error) *scan.Failure {
	var f *scan.Failure
	if errors.As(err, &f) {
		return f
	}
	return &scan.Failure{Class: scan.Classify(err), Title: "Scan error", Message: err.Error(), Err: err}
}

func documentData(doc review.Document) any {
	if doc.Kind == model.UploadRubric {
		return doc.Rubric
	}
	return doc.Student
}
