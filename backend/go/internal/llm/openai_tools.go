package llm

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/meguminnnnnnnnn/go-openai"
)

// ConvertMCPToolsToOpenAI converts MCP tool definitions to the tool list expected by the OpenAI SDK.
func ConvertMCPToolsToOpenAI(tools []*mcp.Tool) ([]openai.Tool, error) {
	var openAITools []openai.Tool
	for _, tool := range tools {
		openAITools = append(openAITools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  convertMCPParamsToOpenAISchema(tool.InputSchema),
			},
		})
	}
	return openAITools, nil
}

// convertMCPParamsToOpenAISchema passes the JSON schema through; OpenAI accepts it as is.
func convertMCPParamsToOpenAISchema(params mcp.ToolInputSchema) map[string]any {
	if len(params.Properties) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return map[string]any{
		"type":       "object",
		"properties": params.Properties,
		"required":   params.Required,
	}
}
