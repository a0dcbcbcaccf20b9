package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/gradewizard/internal/backend"
	"github.com/pavelanni/gradewizard/internal/llm"
	"github.com/pavelanni/gradewizard/internal/pdf"
	"github.com/pavelanni/gradewizard/internal/scan"
	"github.com/pavelanni/gradewizard/internal/store"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gradewizard",
		Short:        "AI-assisted grading workspace: scan, review, edit rubrics and grade",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	serve := serveCmd()
	root.AddCommand(serve, scanCmd(), gradeCmd(), exportCmd(), rubricCmd(), sessionsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.InheritedFlags())

	v.SetEnvPrefix("GRADEWIZARD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("gradewizard")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/gradewizard")
	v.AddConfigPath("/etc/gradewizard")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// addStoreFlag registers the saved-session store location.
func addStoreFlag(cmd *cobra.Command) {
	cmd.Flags().String("store", "gradewizard.db", "SQLite path or redis:// URL for saved sessions and profiles")
}

// addExtractorFlags registers the extraction backend options.
func addExtractorFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("backend-url", "", "Grading service base URL; when set it handles extraction, page counts and grading")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL for direct image extraction")
	f.String("llm-key", "ollama", "API key for the LLM")
	f.String("llm-model", "llama3.2-vision", "Vision model name")
	f.Bool("presplit", false, "Cut PDFs to the selected pages before extraction")
	f.Duration("scan-timeout", scan.DefaultTimeout, "Timeout of one extraction attempt")
}

// extraction is the configured extraction stack.
type extraction struct {
	extractor scan.Extractor
	backend   *backend.Client
	options   []scan.Option
}

// newExtraction builds the extractor from flags: the grading service when
// backend-url is set, the LLM directly otherwise. Page counting and PDF
// slicing go to the service when it is set and to the local PDF tools
// otherwise.
func newExtraction(ctx context.Context, v *viper.Viper, logger *slog.Logger) (*extraction, error) {
	var slicer scan.Slicer
	local := pdf.NewLocal(logger)
	ex := &extraction{
		options: []scan.Option{
			scan.WithTimeout(v.GetDuration("scan-timeout")),
		},
	}

	if url := v.GetString("backend-url"); url != "" {
		c, err := backend.New(url, backend.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("create backend client: %w", err)
		}
		ex.extractor = c
		ex.backend = c
		ex.options = append(ex.options, scan.WithPageCounter(c))
		slicer = c
	} else {
		e, err := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), logger)
		if err != nil {
			return nil, fmt.Errorf("create LLM client: %w", err)
		}
		if err := e.Ping(ctx); err != nil {
			return nil, fmt.Errorf("LLM health check: %w", err)
		}
		logger.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		ex.extractor = e
		ex.options = append(ex.options, scan.WithPageCounter(local))
		slicer = local
	}
	if v.GetBool("presplit") {
		ex.options = append(ex.options, scan.WithSlicer(slicer))
	}
	return ex, nil
}

// openStore opens the session and profile repositories.
func openStore(ctx context.Context, v *viper.Viper) (store.KV, *store.Sessions, *store.Profiles, error) {
	kv, err := store.Open(ctx, v.GetString("store"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	return kv, store.NewSessions(kv), store.NewProfiles(kv), nil
}

// openOutput returns stdout for "" or "-", else a created file.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
