package service

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/reviewforge/reviewforge/internal/services/mcp/domain"
)

// registrationTarget abstracts the MCP server so registration helpers can be
// exercised against fakes.
type registrationTarget interface {
	AddTool(*mcp.Tool, any) error
	AddResourceTemplate(*mcp.ResourceTemplate, mcp.ResourceHandler)
	AddResource(*mcp.Resource, mcp.ResourceHandler)
}

type registrationKind int

const (
	registrationKindTools registrationKind = iota
	registrationKindResources
)

type registrationModule struct {
	name     string
	kind     registrationKind
	register func(registrationTarget) error
}

const (
	reviewToolsModuleName        = "review-tools"
	guidelinesToolsModuleName    = "guidelines-tools"
	guidelinesResourceModuleName = "guidelines-resources"
)

type serverRegistrationAdapter struct {
	server *mcp.Server
}

func (r serverRegistrationAdapter) AddTool(tool *mcp.Tool, handler any) error {
	return addTool(r.server, tool, handler)
}

func (r serverRegistrationAdapter) AddResourceTemplate(resourceTemplate *mcp.ResourceTemplate, handler mcp.ResourceHandler) {
	r.server.AddResourceTemplate(resourceTemplate, handler)
}

func (r serverRegistrationAdapter) AddResource(resource *mcp.Resource, handler mcp.ResourceHandler) {
	r.server.AddResource(resource, handler)
}

type toolRegistrar struct {
	matches func(any) bool
	add     func(*mcp.Server, *mcp.Tool, any)
}

func newToolRegistrar[I any, O any]() toolRegistrar {
	return toolRegistrar{
		matches: func(handler any) bool {
			_, ok := handler.(mcp.ToolHandlerFor[I, O])
			return ok
		},
		add: func(server *mcp.Server, tool *mcp.Tool, handler any) {
			mcp.AddTool(server, tool, handler.(mcp.ToolHandlerFor[I, O]))
		},
	}
}

var toolRegistrars = []toolRegistrar{
	newToolRegistrar[domain.LLMInvokeInput, domain.LLMInvokeResult](),
	newToolRegistrar[domain.GuidelinesSearchInput, domain.GuidelinesSearchResult](),
	newToolRegistrar[domain.GuidelinesListInput, domain.GuidelinesListResult](),
}

func addTool(server *mcp.Server, tool *mcp.Tool, handler any) error {
	for _, registrar := range toolRegistrars {
		if registrar.matches(handler) {
			registrar.add(server, tool, handler)
			return nil
		}
	}
	toolName := "<nil>"
	if tool != nil {
		toolName = tool.Name
	}
	return fmt.Errorf("mcp registration adapter does not support handler type %T for tool %q", handler, toolName)
}

func newRegistrationModules(deps Deps) []registrationModule {
	return []registrationModule{
		{
			name: reviewToolsModuleName,
			kind: registrationKindTools,
			register: func(registrar registrationTarget) error {
				return registerReviewTools(registrar, deps.Gateway)
			},
		},
		{
			name: guidelinesToolsModuleName,
			kind: registrationKindTools,
			register: func(registrar registrationTarget) error {
				return registerGuidelinesTools(registrar, deps.Index, deps.Guidelines)
			},
		},
		{
			name: guidelinesResourceModuleName,
			kind: registrationKindResources,
			register: func(registrar registrationTarget) error {
				registerGuidelinesResources(registrar, deps.Guidelines)
				return nil
			},
		},
	}
}
