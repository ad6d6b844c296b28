package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
)

var runOutput string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full ingestion pipeline",
	Long:  "Discovers accessible reports, schedules exports, polls and downloads results, attributes rows to teams and writes the XLSX workbook.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out := runOutput
		if out == "" {
			out = cfg.Output.WorkbookPath
		}

		summary, workbook, err := env.runOnce(ctx, out)
		if err != nil {
			if summary != nil {
				printSummary(summary, workbook)
			}
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("ingestion complete",
			zap.Int("scheduled", summary.Scheduled),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.String("workbook", workbook),
		)
		return printSummary(summary, workbook)
	},
}

func printSummary(summary *model.RunSummary, workbook string) error {
	out := struct {
		*model.RunSummary
		Workbook string `json:"workbook,omitempty"`
	}{summary, workbook}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	runCmd.Flags().StringVar(&runOutput, "output", "", "workbook output path (default from config)")
	rootCmd.AddCommand(runCmd)
}
