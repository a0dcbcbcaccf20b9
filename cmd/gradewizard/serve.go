package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/pavelanni/gradewizard/internal/handler"
	"github.com/pavelanni/gradewizard/internal/i18n"
	"github.com/pavelanni/gradewizard/internal/metrics"
	"github.com/pavelanni/gradewizard/internal/review"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the grading workspace server",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			return runServe(cmd)
		},
	}

	f := cmd.Flags()
	f.String("addr", ":8080", "Listen address")
	f.String("lang", "en", "Default UI language (en, ru)")
	f.StringSlice("allowed-origins", nil, "Origins allowed to open the change feed (empty allows all)")
	f.Int("history-limit", 0, "Undo depth of the rubric editor and review (0 uses the default)")
	f.Float64("flag-threshold", review.DefaultFlagThreshold, "Confidence below which extracted answers are auto-flagged")
	f.Duration("autosave-delay", handler.DefaultAutosaveDelay, "Quiet period before review edits are saved to the open session")
	addStoreFlag(cmd)
	addExtractorFlags(cmd)

	return cmd
}

func runServe(cmd *cobra.Command) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	logger := slog.Default()

	kv, sessions, profiles, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer kv.Close()

	ex, err := newExtraction(ctx, v, logger)
	if err != nil {
		return err
	}

	catalog, err := i18n.New(v.GetString("lang"), logger)
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}
	rec := metrics.New()

	deps := handler.Deps{
		Extractor: ex.extractor,
		Sessions:  sessions,
		Profiles:  profiles,
		Catalog:   catalog,
		Metrics:   rec,
		Logger:    logger,
	}
	if ex.backend != nil {
		deps.Grader = ex.backend
		deps.Advisor = ex.backend
		deps.ProfileSource = ex.backend
		deps.ProfileWriter = ex.backend
		deps.QuestionTypes = ex.backend
		deps.Documents = ex.backend
	}
	h, err := handler.New(deps, handler.Config{
		Lang:           v.GetString("lang"),
		AllowedOrigins: v.GetStringSlice("allowed-origins"),
		HistoryLimit:   v.GetInt("history-limit"),
		FlagThreshold:  v.GetFloat64("flag-threshold"),
		AutosaveDelay:  v.GetDuration("autosave-delay"),
		ScanOptions:    ex.options,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}
	defer h.Close()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(catalog.Middleware)
	r.Use(rec.Middleware)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server", "addr", addr, "store", v.GetString("store"), "backend", v.GetString("backend-url") != "")
	return http.ListenAndServe(addr, r)
}
