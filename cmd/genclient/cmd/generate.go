package cmd

import (
	"fmt"

	"github.com/F-kaue/WorkflowApp-sub000/internal/client"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
	"github.com/spf13/cobra"
)

const (
	modePoll   = "poll"
	modeStream = "stream"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a service request document",
	Long: `Send a service request and print the generated document.

In poll mode a background job is submitted and its status is polled until it
finishes; a job still running at the deadline is marked as timed out. In
stream mode the document is read as it is produced, and a stream that stalls
after enough content is returned as a partial result.

Example:
  genclient generate --scope SindicatoX --text "Precisamos excluir 500 registros de boletos duplicados no banco de dados"
  genclient generate --scope SindicatoX --text "Configurar VPN" --mode stream`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		scope, _ := flags.GetString("scope")
		text, _ := flags.GetString("text")
		mode, _ := flags.GetString("mode")

		if scope == "" {
			return fmt.Errorf("--scope is required")
		}
		if text == "" {
			return fmt.Errorf("--text is required")
		}

		c := newClient()
		req := models.GenerationRequest{Scope: scope, RequestText: text}

		var (
			res *client.Result
			err error
		)
		switch mode {
		case modePoll:
			res, err = c.GeneratePolling(cmd.Context(), req)
		case modeStream:
			res, err = c.GenerateStreaming(cmd.Context(), req)
		default:
			return fmt.Errorf("unknown --mode %q (want %s or %s)", mode, modePoll, modeStream)
		}
		if err != nil {
			return fmt.Errorf("generation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, res.Content)
		switch {
		case res.Cached:
			cmd.PrintErrln("(served from cache)")
		case res.Partial:
			cmd.PrintErrln("(partial result)")
		}
		if res.JobID != "" {
			cmd.PrintErrf("job %s", res.JobID)
			if res.ModelUsed != "" {
				cmd.PrintErrf(" via %s", res.ModelUsed)
			}
			cmd.PrintErrln()
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().String("scope", "", "requesting organization")
	generateCmd.Flags().String("text", "", "free-text description of the service request")
	generateCmd.Flags().String("mode", modePoll, "transport: poll or stream")
	rootCmd.AddCommand(generateCmd)
}
