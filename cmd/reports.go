package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lorenzlk/impactreportingapi-sub002/internal/model"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect the upstream report catalog",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API-accessible reports in the catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		reports, err := env.Gateway.DiscoverReports(ctx)
		if err != nil {
			return eris.Wrap(err, "discover reports")
		}

		formatReportsList(os.Stdout, reports)
		return nil
	},
}

func formatReportsList(w io.Writer, reports []model.ReportDescriptor) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\n", r.ID, r.Name)
	}
	tw.Flush()
}

func init() {
	reportsCmd.AddCommand(reportsListCmd)
	rootCmd.AddCommand(reportsCmd)
}
