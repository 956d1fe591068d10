package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gemini_agent_api/backend/go/internal/agentctl"

	"github.com/spf13/cobra"
)

type options struct {
	server string
	apiKey string
	raw    bool
}

func (o *options) client() *agentctl.Client {
	return agentctl.NewClient(o.server, o.apiKey)
}

// NewRootCmd builds the agentctl command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "agentctl",
		Short:         "A CLI client for the Gemini Agent API",
		Long:          `A command-line interface for chatting with agents and managing the agent registry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	serverDefault := agentctl.DefaultServer
	if v := os.Getenv("AGENT_API_URL"); v != "" {
		serverDefault = v
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", serverDefault, "API server address (env AGENT_API_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("AGENT_API_KEY"), "API key sent as X-API-Key (env AGENT_API_KEY)")
	rootCmd.PersistentFlags().BoolVar(&opts.raw, "raw", false, "print the raw JSON response")

	rootCmd.AddCommand(
		newHealthCmd(opts),
		newMessageCmd(opts),
		newSummarizeCmd(opts),
		newSentimentCmd(opts),
		newQuestionCmd(opts),
		newAgentsCmd(opts),
	)
	return rootCmd
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := NewRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// printJSON pretty prints a JSON response.
func printJSON(cmd *cobra.Command, data []byte) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return err
}
