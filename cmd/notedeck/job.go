// Job inspection commands for the notedeck CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var jobListLimit int

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect background job records",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := tracker.EnsureSchema(cmd.Context()); err != nil {
			return err
		}
		list, err := tracker.List(cmd.Context(), jobListLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAPP\tCOMMAND\tSTATUS\tPROGRESS\tUPDATED")
		for _, job := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				job.ID, job.App, job.Command, job.Status, job.Progress, job.Updated)
		}
		return w.Flush()
	},
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show one job record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := tracker.GetStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	jobListCmd.Flags().IntVar(&jobListLimit, "limit", 20, "maximum number of jobs to list")
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobStatusCmd)
}
