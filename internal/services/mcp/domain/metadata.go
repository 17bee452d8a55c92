package domain

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/reviewforge/reviewforge/internal/platform/id"
)

// invocationIDKey is the tool result metadata key carrying the invocation
// identifier for log correlation.
const invocationIDKey = "invocation_id"

// searchCallTimeout bounds index-backed tool calls. Model invocations are
// excluded; the gateway client carries its own, much longer timeout.
const searchCallTimeout = 30 * time.Second

// ToolCallMetadata carries correlation identifiers for MCP tool calls.
type ToolCallMetadata struct {
	InvocationID string
}

// NewInvocationID generates an invocation identifier for a tool call.
func NewInvocationID() (string, error) {
	return id.NewID()
}

// CallToolResultWithMetadata builds a tool result with correlation metadata.
func CallToolResultWithMetadata(meta ToolCallMetadata) *mcp.CallToolResult {
	result := &mcp.CallToolResult{}
	if meta.InvocationID != "" {
		result.Meta = map[string]any{invocationIDKey: meta.InvocationID}
	}
	return result
}
