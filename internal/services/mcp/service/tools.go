package service

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/reviewforge/reviewforge/internal/guidelines"
	"github.com/reviewforge/reviewforge/internal/index"
	"github.com/reviewforge/reviewforge/internal/llm"
	"github.com/reviewforge/reviewforge/internal/services/mcp/domain"
)

// registerReviewTools registers the model invocation tool. A nil gateway is
// passed through as a nil interface so the handler reports "not configured"
// instead of calling through a nil client.
func registerReviewTools(registrar registrationTarget, gateway *llm.Client) error {
	var invoker domain.ModelInvoker
	if gateway != nil {
		invoker = gateway
	}
	return registerTool(registrar, domain.LLMInvokeTool(), domain.LLMInvokeHandler(invoker))
}

// registerGuidelinesTools registers the guideline search and listing tools.
func registerGuidelinesTools(registrar registrationTarget, idx *index.Index, doc *guidelines.Document) error {
	var searcher domain.GuidelineSearcher
	if idx != nil {
		searcher = idx
	}
	if err := registerTool(registrar, domain.GuidelinesSearchTool(), domain.GuidelinesSearchHandler(searcher)); err != nil {
		return err
	}
	return registerTool(registrar, domain.GuidelinesListTool(), domain.GuidelinesListHandler(doc))
}

func registerTool(registrar registrationTarget, tool *mcp.Tool, handler any) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	return registrar.AddTool(tool, handler)
}

// registerGuidelinesResources registers the readable guidelines MCP resources.
func registerGuidelinesResources(registrar registrationTarget, doc *guidelines.Document) {
	registrar.AddResource(domain.DocumentResource(), domain.DocumentResourceHandler(doc))
	registrar.AddResourceTemplate(domain.SectionResourceTemplate(), domain.SectionResourceHandler(doc))
}
