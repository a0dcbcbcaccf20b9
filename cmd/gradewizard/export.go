package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pavelanni/gradewizard/internal/export"
	"github.com/pavelanni/gradewizard/internal/model"
	"github.com/pavelanni/gradewizard/internal/rubric"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export RESULTS",
		Short: "Render a grading results file as JSON, CSV or a PDF report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			return runExport(cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.String("rubric", "", "Rubric JSON file (grading schema) for question order and title")
	f.String("format", "csv", "Output format (json, csv, pdf)")
	f.String("title", "", "Report title (defaults to the rubric title)")
	f.String("output", "-", "Output file (- for stdout)")

	return cmd
}

func runExport(cmd *cobra.Command, path string) error {
	v := viperForCmd(cmd)

	format, err := export.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}
	var res model.Results
	if err := readJSON(path, &res); err != nil {
		return fmt.Errorf("results: %w", err)
	}

	var wr *model.WizardRubric
	title := v.GetString("title")
	if p := v.GetString("rubric"); p != "" {
		wr = &model.WizardRubric{}
		if err := readJSON(p, wr); err != nil {
			return fmt.Errorf("rubric: %w", err)
		}
		if title == "" {
			title = wr.Title
		}
	}
	if title == "" {
		title = "Grading results"
	}

	body, err := export.Render(format, res, wr, title)
	if err != nil {
		return err
	}
	out, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := out.Write(body); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func rubricCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rubric",
		Short: "Rubric utilities",
	}
	validate := &cobra.Command{
		Use:   "validate FILE",
		Short: "Report advisory issues in an editor rubric",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			var r model.Rubric
			if err := readJSON(args[0], &r); err != nil {
				return fmt.Errorf("rubric: %w", err)
			}
			ed := rubric.NewEditor()
			ed.Load(r)
			issues := ed.Validate()
			for _, is := range issues {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", is.QuestionID, is.Kind, is.Message)
			}
			if len(issues) > 0 {
				return fmt.Errorf("%d issues found", len(issues))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "no issues")
			return nil
		},
	}
	cmd.AddCommand(validate)
	return cmd
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
