package agent

import (
	"fmt"
	"strings"
)

// ContextEntry 是附加在消息前的一条上下文，按给定顺序渲染。
type ContextEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func systemPromptTemplate(systemPrompt, message string) string {
	return systemPrompt + "\n\nUser: " + message
}

func contextTemplate(message string, entries []ContextEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Key+": "+e.Value)
	}
	return "Context:\n" + strings.Join(lines, "\n") + "\n\nUser Query: " + message
}

func summarizeTemplate(text string, maxWords int) string {
	return fmt.Sprintf("Please provide a concise summary of the following text in no more than %d words:\n\n%s", maxWords, text)
}

func sentimentTemplate(text string) string {
	return "Analyze the sentiment of the following text. Provide the overall sentiment (positive, negative, neutral) and a brief explanation:\n\n" + text
}

func questionTemplate(question, context string) string {
	if context == "" {
		return question
	}
	return "Based on the following context, answer the question.\n\nContext: " + context + "\n\nQuestion: " + question
}

func entitiesTemplate(text string) string {
	return "Extract all named entities from the following text. Return the result as JSON with categories like person, organization, location, date, etc.:\n\n" + text
}

func structuredTemplate(prompt, format string) string {
	return "Please provide your response in " + format + " format.\n\n" + prompt
}
