package schema

import "encoding/json"

// Tool projections render a collection model as a function-calling tool
// definition so AI clients can emit conforming records directly.

// ToolOpenAI returns the model as an OpenAI function tool. Parameters carry
// the property map of the projected schema.
func (c *Compiled) ToolOpenAI() json.RawMessage {
	tool := map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":        c.ToolName(),
			"description": c.desc,
			"parameters":  c.projDoc["properties"],
		},
	}
	return json.RawMessage(canonicalize(tool))
}

// ToolAnthropic returns the model as an Anthropic tool definition with the
// projected schema as input_schema.
func (c *Compiled) ToolAnthropic() json.RawMessage {
	tool := map[string]interface{}{
		"name":          c.ToolName(),
		"description":   c.desc,
		"input_schema":  c.projDoc,
		"cache_control": map[string]interface{}{"type": "ephemeral"},
	}
	return json.RawMessage(canonicalize(tool))
}

// ToolName derives a function-safe name from the schema title. Tool names
// are restricted to [a-zA-Z0-9_-] and 64 characters.
func (c *Compiled) ToolName() string {
	name := make([]rune, 0, len(c.title))
	for _, r := range c.title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			name = append(name, r)
		case r == ' ':
			name = append(name, '_')
		}
	}
	if len(name) == 0 {
		return "Record"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return string(name)
}
