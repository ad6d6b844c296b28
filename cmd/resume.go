package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resumeOutput string

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume a suspended run",
	Long:  "Re-enters the processing phase of a suspended run at the first non-terminal job. Completed jobs are not re-polled or re-downloaded.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out := resumeOutput
		if out == "" {
			out = cfg.Output.WorkbookPath
		}

		summary, workbook, err := env.resumeOnce(ctx, args[0], out)
		if err != nil {
			if summary != nil {
				printSummary(summary, workbook)
			}
			return eris.Wrap(err, "pipeline resume")
		}

		zap.L().Info("resume complete",
			zap.String("run_id", args[0]),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
		)
		return printSummary(summary, workbook)
	},
}

func init() {
	resumeCmd.Flags().StringVar(&resumeOutput, "output", "", "workbook output path (default from config)")
	rootCmd.AddCommand(resumeCmd)
}
