package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pavelanni/gradewizard/internal/backend"
	"github.com/pavelanni/gradewizard/internal/export"
	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/wizard"
)

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade answers against a rubric with the grading service",
		Long: `Runs the grading wizard without the server: selects a profile, loads a
rubric and answers, submits them and writes the results.

Answers come from an answers JSON file, from saved student sessions, or both.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			return runGrade(cmd)
		},
	}

	f := cmd.Flags()
	f.String("backend-url", "", "Grading service base URL")
	f.String("profile", "", "Grading profile id")
	f.String("rubric", "", "Rubric JSON file")
	f.Bool("editor-rubric", false, "The rubric file uses the editor schema instead of the grading schema")
	f.String("answers", "", "Answers JSON file")
	f.StringSlice("session", nil, "Saved student session ids to add to the answers")
	f.String("format", "json", "Output format (json, csv, pdf)")
	f.String("output", "-", "Output file (- for stdout)")
	addStoreFlag(cmd)

	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("rubric")

	return cmd
}

func runGrade(cmd *cobra.Command) error {
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	logger := slog.Default()

	url := v.GetString("backend-url")
	if url == "" {
		return fmt.Errorf("grading needs --backend-url")
	}
	format, err := export.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}
	client, err := backend.New(url, backend.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create backend client: %w", err)
	}

	flow := wizard.New(wizard.WithLogger(logger))
	if err := flow.SetProfile(v.GetString("profile")); err != nil {
		return err
	}
	flow.Next()

	if err := loadRubric(flow, v.GetString("rubric"), v.GetBool("editor-rubric")); err != nil {
		return err
	}
	flow.Next()

	if path := v.GetString("answers"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read answers: %w", err)
		}
		if err := flow.SetAnswersJSON(data); err != nil {
			return err
		}
	}
	if ids := v.GetStringSlice("session"); len(ids) > 0 {
		kv, sessions, _, err := openStore(ctx, v)
		if err != nil {
			return err
		}
		defer kv.Close()
		for _, id := range ids {
			sess, err := sessions.Get(ctx, id)
			if err != nil {
				return err
			}
			if sess.UploadType != model.UploadStudent {
				return fmt.Errorf("session %s is a %s extraction, not a student", id, sess.UploadType)
			}
			var s model.StudentExtraction
			if err := json.Unmarshal(sess.Data, &s); err != nil {
				return fmt.Errorf("decode session %s: %w", id, err)
			}
			if err := flow.MergeSubmission(wizard.SubmissionFromExtraction(s)); err != nil {
				return fmt.Errorf("session %s: %w", id, err)
			}
		}
	}
	flow.Next()

	if err := flow.Run(ctx, client); err != nil {
		return err
	}
	st := flow.State()

	title := st.Rubric.Title
	body, err := export.Render(format, *st.Results, st.Rubric, title)
	if err != nil {
		return err
	}
	out, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := out.Write(body); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	slog.Info("graded", "students", len(st.Results.Items), "average", st.Results.AverageScore)
	return nil
}

func loadRubric(flow *wizard.Flow, path string, editorSchema bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rubric: %w", err)
	}
	if !editorSchema {
		return flow.SetRubricJSON(data)
	}
	var r model.Rubric
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("%w: rubric: %v", wizard.ErrValidation, err)
	}
	return flow.AdoptRubric(r)
}
