package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"utforge/internal/coverage"
	"utforge/internal/perception"
	"utforge/internal/pipeline"
	"utforge/internal/report"
	"utforge/internal/stage"
	"utforge/internal/store"
	"utforge/internal/toolchain"
)

var (
	genFiles    []string
	genOut      string
	genTimeout  string
	genKeepWork bool
	genModel    string
	genHints    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate, build, and run unit tests for C source files",
	Long: `Reads the given C sources, asks the model for a Unity test suite, then
compiles and runs it with coverage instrumentation. Artifacts and a CSV
test-case summary are written to the output directory.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringSliceVarP(&genFiles, "file", "f", nil, "C source or header file (repeatable)")
	generateCmd.Flags().StringVarP(&genOut, "out", "o", "", "directory to write artifacts to")
	generateCmd.Flags().StringVar(&genTimeout, "timeout", "", "toolchain deadline override (e.g. 90s)")
	generateCmd.Flags().BoolVar(&genKeepWork, "keep-workspace", false, "keep the build workspace after the run")
	generateCmd.Flags().StringVar(&genModel, "model", "", "model override")
	generateCmd.Flags().StringVar(&genHints, "hints", "", "extra instructions appended to the prompt")
	generateCmd.MarkFlagRequired("file")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sources, err := readSources(genFiles)
	if err != nil {
		return err
	}

	if genModel != "" {
		cfg.LLM.Model = genModel
	}
	llmTimeout, err := cfg.LLMTimeout()
	if err != nil {
		return err
	}
	runTimeout, err := cfg.RunTimeout()
	if err != nil {
		return err
	}
	if runTimeout, err = durationFlag(genTimeout, runTimeout); err != nil {
		return err
	}

	client, err := perception.NewGeminiClient(ctx, perception.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: llmTimeout,
	})
	if err != nil {
		return err
	}

	var history *store.Store
	if cfg.Store.Enabled {
		history, err = store.Open(cfg.Store.DatabasePath)
		if err != nil {
			// History is a convenience; a generation run should not die on it.
			fmt.Fprintf(os.Stderr, "warning: run history disabled: %v\n", err)
		} else {
			defer history.Close()
		}
	}

	p := pipeline.New(
		client,
		stage.NewStager(cfg.Toolchain.WorkspaceRoot, genKeepWork || cfg.Toolchain.KeepArtifacts),
		toolchain.NewRunner(cfg.Toolchain.MakePath, runTimeout, int64(cfg.Toolchain.MaxOutputKB)*1024),
		coverage.NewAggregator(cfg.Toolchain.GcovPath, 0),
		history,
		cfg.Pipeline.MaxConcurrentRuns,
	)

	rep, err := p.Generate(ctx, pipeline.Request{Sources: sources, Hints: genHints})
	if rep != nil {
		printReport(rep)
		if genOut != "" {
			if werr := writeArtifacts(genOut, rep); werr != nil {
				return werr
			}
		}
	}
	return err
}

func readSources(paths []string) ([]stage.SourceFile, error) {
	var sources []stage.SourceFile
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading source %s: %w", p, err)
		}
		sources = append(sources, stage.SourceFile{
			Filename: filepath.Base(p),
			Content:  string(data),
			Size:     int64(len(data)),
		})
	}
	return sources, nil
}

func printReport(rep *report.FinalReport) {
	fmt.Printf("request %s: %s\n", rep.RequestID, rep.Stage)
	if rep.Run != nil {
		fmt.Printf("toolchain: %s in %s\n", rep.Run.Status, rep.Run.Duration.Round(time.Millisecond))
		if rep.Run.Diagnostics != "" {
			fmt.Printf("diagnostics:\n%s\n", indent(rep.Run.Diagnostics))
		}
	}
	for _, tc := range rep.TestCases {
		mark := "-"
		switch {
		case tc.Executed && tc.Passed:
			mark = "PASS"
		case tc.Executed:
			mark = "FAIL"
		}
		line := fmt.Sprintf("  [%s] %s %s", mark, tc.ID, tc.FunctionName)
		if tc.Message != "" {
			line += " (" + tc.Message + ")"
		}
		fmt.Println(line)
	}
	if rep.Stage == report.StageComplete {
		fmt.Printf("%d passed, %d failed, %.2f%% line coverage\n",
			rep.Passed(), rep.Failed(), rep.Coverage.Overall)
	}
	for _, iss := range rep.Issues {
		fmt.Printf("  issue: %s\n", iss)
	}
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n    ")
}

// writeArtifacts persists the generated scripts and a CSV of test cases.
func writeArtifacts(dir string, rep *report.FinalReport) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	if rep.RunnerScript != "" {
		if err := os.WriteFile(filepath.Join(dir, "test_runner.c"), []byte(rep.RunnerScript), 0644); err != nil {
			return err
		}
	}
	if rep.BuildScript != "" {
		if err := os.WriteFile(filepath.Join(dir, "Makefile"), []byte(rep.BuildScript), 0644); err != nil {
			return err
		}
	}

	f, err := os.Create(filepath.Join(dir, "test_cases.csv"))
	if err != nil {
		return fmt.Errorf("creating test_cases.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"id", "function_name", "description", "input_data", "expected_output", "category", "executed", "passed", "message", "low_confidence"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, tc := range rep.TestCases {
		row := []string{
			tc.ID, tc.FunctionName, tc.Description, tc.InputData, tc.ExpectedOutput,
			string(tc.Category),
			strconv.FormatBool(tc.Executed), strconv.FormatBool(tc.Passed),
			tc.Message,
			strconv.FormatBool(tc.LowConfidence),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
