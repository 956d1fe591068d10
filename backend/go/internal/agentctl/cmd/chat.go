package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// printReply prints the "response" field of a message response, or the raw JSON with --raw.
func printReply(cmd *cobra.Command, opts *options, data []byte) error {
	if opts.raw {
		return printJSON(cmd, data)
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), resp.Response)
	return err
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the API health status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.client().Do(cmd.Context(), http.MethodGet, "/health", nil)
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	}
}

func newMessageCmd(opts *options) *cobra.Command {
	var agentName, systemPrompt string
	cmd := &cobra.Command{
		Use:   "message [text]",
		Short: "Send a message to an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"message": args[0], "agent_name": agentName}
			if systemPrompt != "" {
				payload["system_prompt"] = systemPrompt
			}
			data, err := opts.client().Do(cmd.Context(), http.MethodPost, "/message", payload)
			if err != nil {
				return err
			}
			return printReply(cmd, opts, data)
		},
	}
	cmd.Flags().StringVarP(&agentName, "agent", "a", "default", "agent name")
	cmd.Flags().StringVarP(&systemPrompt, "system", "s", "", "optional system prompt")
	return cmd
}

func newSummarizeCmd(opts *options) *cobra.Command {
	var agentName string
	var maxLength int
	cmd := &cobra.Command{
		Use:   "summarize [text]",
		Short: "Summarize a text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{"text": args[0], "max_length": maxLength, "agent_name": agentName}
			data, err := opts.client().Do(cmd.Context(), http.MethodPost, "/summarize", payload)
			if err != nil {
				return err
			}
			return printReply(cmd, opts, data)
		},
	}
	cmd.Flags().StringVarP(&agentName, "agent", "a", "default", "agent name")
	cmd.Flags().IntVarP(&maxLength, "max-length", "m", 200, "maximum summary length in words (10-1000)")
	return cmd
}

func newSentimentCmd(opts *options) *cobra.Command {
	var agentName string
	cmd := &cobra.Command{
		Use:   "sentiment [text]",
		Short: "Analyze the sentiment of a text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"text": args[0], "agent_name": agentName}
			data, err := opts.client().Do(cmd.Context(), http.MethodPost, "/sentiment", payload)
			if err != nil {
				return err
			}
			return printReply(cmd, opts, data)
		},
	}
	cmd.Flags().StringVarP(&agentName, "agent", "a", "default", "agent name")
	return cmd
}

func newQuestionCmd(opts *options) *cobra.Command {
	var agentName, contextText string
	cmd := &cobra.Command{
		Use:   "question [question]",
		Short: "Answer a question, optionally with context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"question": args[0], "agent_name": agentName}
			if contextText != "" {
				payload["context"] = contextText
			}
			data, err := opts.client().Do(cmd.Context(), http.MethodPost, "/question", payload)
			if err != nil {
				return err
			}
			return printReply(cmd, opts, data)
		},
	}
	cmd.Flags().StringVarP(&agentName, "agent", "a", "default", "agent name")
	cmd.Flags().StringVar(&contextText, "context", "", "context to answer from")
	return cmd
}
