package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ModelInvoker invokes a named model on the LLM gateway.
type ModelInvoker interface {
	Invoke(ctx context.Context, model string, payload map[string]any) (map[string]any, error)
}

// LLMInvokeInput represents the MCP tool input for invoking a model.
type LLMInvokeInput struct {
	ModelName string `json:"model_name" jsonschema:"name of the model to invoke on the LLM gateway"`
	Inputs    string `json:"inputs" jsonschema:"prompt text passed to the model"`
}

// LLMInvokeResult represents the MCP tool output for invoking a model.
type LLMInvokeResult struct {
	ResponseData map[string]any `json:"response_data" jsonschema:"raw JSON response returned by the model"`
}

// LLMInvokeTool defines the MCP tool schema for invoking a model.
func LLMInvokeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "llm_invoke_model",
		Description: "Invokes a model on the configured LLM gateway and returns its raw JSON response.",
	}
}

// LLMInvokeHandler executes a model invocation request.
func LLMInvokeHandler(invoker ModelInvoker) mcp.ToolHandlerFor[LLMInvokeInput, LLMInvokeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input LLMInvokeInput) (*mcp.CallToolResult, LLMInvokeResult, error) {
		if invoker == nil {
			return nil, LLMInvokeResult{}, fmt.Errorf("llm gateway is not configured")
		}
		if strings.TrimSpace(input.ModelName) == "" {
			return nil, LLMInvokeResult{}, fmt.Errorf("model_name is required")
		}

		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, LLMInvokeResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		// No handler-level timeout: generation is bounded by the gateway
		// client's own invocation timeout.
		response, err := invoker.Invoke(ctx, input.ModelName, map[string]any{"inputs": input.Inputs})
		if err != nil {
			return nil, LLMInvokeResult{}, fmt.Errorf("invoke model %s: %w", input.ModelName, err)
		}

		result := LLMInvokeResult{ResponseData: response}
		return CallToolResultWithMetadata(ToolCallMetadata{InvocationID: invocationID}), result, nil
	}
}
