package main

import "gemini_agent_api/backend/go/internal/agentctl/cmd"

func main() {
	cmd.Execute()
}
