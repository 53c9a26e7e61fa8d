package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var timeoutCmd = &cobra.Command{
	Use:   "timeout [job_id]",
	Short: "Mark a job as abandoned by the client",
	Long: `Tell the server the client stopped waiting for a job. A job that is still
pending or processing ends in the error status; a finished job is left as it is.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newClient().MarkJobTimeout(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s is now %s\n", args[0], status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(timeoutCmd)
}
