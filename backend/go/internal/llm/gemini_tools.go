package llm

import (
	"fmt"
	"sort"

	"github.com/google/generative-ai-go/genai"
	"github.com/mark3labs/mcp-go/mcp"
)

// ConvertMCPToolsToGemini 将 MCP 工具定义转换为 Gemini Go SDK 所需的 FunctionDeclaration 列表。
func ConvertMCPToolsToGemini(tools []*mcp.Tool) ([]*genai.FunctionDeclaration, error) {
	var declarations []*genai.FunctionDeclaration
	for _, tool := range tools {
		params, err := convertMCPParamsToGeminiSchema(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("error converting parameters for tool '%s': %w", tool.Name, err)
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}
	return declarations, nil
}

// convertMCPParamsToGeminiSchema 把 JSON Schema 风格的参数描述转换为 genai.Schema。
func convertMCPParamsToGeminiSchema(params mcp.ToolInputSchema) (*genai.Schema, error) {
	if len(params.Properties) == 0 {
		return nil, nil
	}

	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(params.Properties)),
		Required:   params.Required,
	}

	names := make([]string, 0, len(params.Properties))
	for name := range params.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := params.Properties[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid parameter format for %s", name)
		}
		propSchema := &genai.Schema{}
		if desc, ok := prop["description"].(string); ok {
			propSchema.Description = desc
		}
		typ, ok := prop["type"].(string)
		if !ok {
			return nil, fmt.Errorf("parameter type not specified for %s", name)
		}
		if propSchema.Type, ok = geminiTypes[typ]; !ok {
			return nil, fmt.Errorf("unsupported parameter type: %s", typ)
		}
		schema.Properties[name] = propSchema
	}
	return schema, nil
}

var geminiTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"integer": genai.TypeInteger,
	"number":  genai.TypeNumber,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}
