package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/internal/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "genclient",
	Short: "genclient generates service request documents through the generation API",
	Long: `genclient is the command-line client of the document generation API.

It submits service requests and waits for the generated document, either by
polling a background job or by reading a live stream.

Common workflows:

  Generate a document by polling a job:
    genclient generate --scope SindicatoX --text "Precisamos excluir registros duplicados"

  Generate a document over a stream:
    genclient generate --scope SindicatoX --text "..." --mode stream

  Check a job:
    genclient status <job-id>

  Give up on a job:
    genclient timeout <job-id>

Configuration:
  Flags, environment variables or $HOME/.genclient.yaml:
    GENCLIENT_URL             API endpoint (default: http://localhost:8080)
    GENCLIENT_KEY             API key sent as a Bearer token
    GENCLIENT_DEADLINE        Overall deadline of a generation (default: 30s)
    GENCLIENT_POLL_INTERVAL   Interval between status polls (default: 1.5s)`,
	SilenceUsage: true,
}

// Execute runs the root command. An interrupt cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".genclient"
		viper.AddConfigPath(home)
		viper.SetConfigName(".genclient")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "GENCLIENT_VARNAME"
	viper.SetEnvPrefix("GENCLIENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.genclient.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "Generation API URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("key", "k", "", "API key for authentication")
	viper.BindPFlag("key", rootCmd.PersistentFlags().Lookup("key"))

	rootCmd.PersistentFlags().Duration("deadline", 30*time.Second, "overall deadline of a generation")
	viper.BindPFlag("deadline", rootCmd.PersistentFlags().Lookup("deadline"))

	rootCmd.PersistentFlags().Duration("poll-interval", 1500*time.Millisecond, "interval between job status polls")
	viper.BindPFlag("poll-interval", rootCmd.PersistentFlags().Lookup("poll-interval"))
}

// newClient builds an API client from the resolved configuration.
func newClient() *client.Client {
	return client.New(client.Config{
		BaseURL:      viper.GetString("url"),
		APIKey:       viper.GetString("key"),
		Deadline:     viper.GetDuration("deadline"),
		PollInterval: viper.GetDuration("poll-interval"),
	})
}
