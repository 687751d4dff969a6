package agui

import (
	"encoding/json"
)

// Tool represents a tool definition from the AG-UI protocol.
// Frontend applications send these to define capabilities the client
// resolves itself.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolNames extracts the names from a slice of tools.
func ToolNames(tools []Tool) []string {
	if len(tools) == 0 {
		return nil
	}

	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
