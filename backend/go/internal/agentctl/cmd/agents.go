package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"gemini_agent_api/backend/go/internal/agentctl"

	"github.com/spf13/cobra"
)

func newAgentsCmd(opts *options) *cobra.Command {
	agentsCmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage agents",
	}
	agentsCmd.AddCommand(
		newAgentsListCmd(opts),
		newAgentsCreateCmd(opts),
		newAgentsDeleteCmd(opts),
		newAgentsHistoryCmd(opts),
		newAgentsClearCmd(opts),
	)
	return agentsCmd
}

func newAgentsListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.client().Do(cmd.Context(), http.MethodGet, "/agents", nil)
			if err != nil {
				return err
			}
			if opts.raw {
				return printJSON(cmd, data)
			}
			var names []string
			if err := json.Unmarshal(data, &names); err != nil {
				return fmt.Errorf("error decoding response: %w", err)
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newAgentsCreateCmd(opts *options) *cobra.Command {
	var model string
	var temperature float64
	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{"name": args[0]}
			if cmd.Flags().Changed("temperature") {
				payload["temperature"] = temperature
			}
			if model != "" {
				payload["model_name"] = model
			}
			data, err := opts.client().Do(cmd.Context(), http.MethodPost, "/agents", payload)
			if err != nil {
				return err
			}
			return printJSON(cmd, data)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model name (server default when empty)")
	cmd.Flags().Float64VarP(&temperature, "temperature", "t", 0.7, "sampling temperature (0-1)")
	return cmd
}

func newAgentsDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := opts.client().Do(cmd.Context(), http.MethodDelete, agentctl.AgentPath(args[0]), nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent '%s' deleted\n", args[0])
			return nil
		},
	}
}

func newAgentsHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history [name]",
		Short: "Show the conversation history of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.client().Do(cmd.Context(), http.MethodGet, agentctl.AgentPath(args[0], "/history"), nil)
			if err != nil {
				return err
			}
			if opts.raw {
				return printJSON(cmd, data)
			}
			var resp struct {
				History []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"history"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				return fmt.Errorf("error decoding response: %w", err)
			}
			for _, turn := range resp.History {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", turn.Role, turn.Content)
			}
			return nil
		},
	}
}

func newAgentsClearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [name]",
		Short: "Clear the conversation history of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := opts.client().Do(cmd.Context(), http.MethodPost, agentctl.AgentPath(args[0], "/clear-history"), nil)
			if err != nil {
				return err
			}
			var resp struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				return fmt.Errorf("error decoding response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
}
