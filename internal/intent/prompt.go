package intent

import "github.com/kalambet/mcpd/internal/model"

const classifySystemPrompt = `You are an intent classification engine for a command orchestrator. Analyze the user's command and output ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Actions:
- "store_context": user wants to save a value under a key
- "retrieve_context": user wants a previously saved value back
- "list_tools": user wants to know which tools exist
- "execute_tool": user wants a specific tool run (put the tool name in parameters.tool)
- "search": user wants documents similar to a query
- "workflow": user describes a multi-step chain of tool invocations
- "other": anything else, including general questions

Rules:
- Put extracted values (key, value, tool, query) into the parameters object.
- Set confidence between 0 and 1 reflecting how certain the classification is.`

// classifyPrompt constructs the chat messages for fallback classification.
func classifyPrompt(rawCommand string) []model.Message {
	return []model.Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: rawCommand},
	}
}

// classifySchema returns the JSON schema for structured classifier output.
func classifySchema() *model.Schema {
	return &model.Schema{
		Type: "object",
		Properties: map[string]model.SchemaProperty{
			"action":     {Type: "string", Description: "One of: store_context, retrieve_context, list_tools, execute_tool, search, workflow, other"},
			"parameters": {Type: "object", Description: "Extracted parameters such as key, value, tool, query"},
			"confidence": {Type: "number", Description: "Classification confidence between 0 and 1"},
		},
		Required: []string{"action", "confidence"},
	}
}
