package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get the status of a generation job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newClient().JobStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Job:       %s\n", job.ID)
		fmt.Fprintf(out, "Status:    %s\n", job.Status)
		fmt.Fprintf(out, "Progress:  %d%%\n", job.ProgressPercent)
		fmt.Fprintf(out, "Message:   %s\n", job.Message)
		if job.ModelUsed != nil {
			fmt.Fprintf(out, "Model:     %s\n", *job.ModelUsed)
		}
		fmt.Fprintf(out, "Updated:   %s\n", job.UpdatedAt.Format("Mon, 02 Jan 2006 15:04:05 MST"))
		if job.ErrorDetail != nil {
			fmt.Fprintf(out, "Error:     %s\n", *job.ErrorDetail)
		}
		if job.Result != nil {
			fmt.Fprintf(out, "\n%s\n", *job.Result)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
