package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/reviewforge/reviewforge/internal/guidelines"
	"github.com/reviewforge/reviewforge/internal/index"
)

// GuidelineSearcher ranks guideline chunks for a query.
type GuidelineSearcher interface {
	Search(ctx context.Context, query string, topK int, section string) ([]index.Match, error)
}

// GuidelinesSearchInput represents the MCP tool input for guideline search.
type GuidelinesSearchInput struct {
	Query   string `json:"query" jsonschema:"free-text description of the code or concern under review"`
	TopK    int    `json:"top_k,omitempty" jsonschema:"maximum number of guideline chunks to return (default 4)"`
	Section string `json:"section,omitempty" jsonschema:"optional section filter (Security, Performance, Maintainability, Testing)"`
}

// GuidelineMatch is one ranked guideline chunk.
type GuidelineMatch struct {
	Section string  `json:"section" jsonschema:"section the chunk belongs to"`
	Heading string  `json:"heading" jsonschema:"heading path of the chunk"`
	Text    string  `json:"text" jsonschema:"guideline text"`
	Score   float64 `json:"score" jsonschema:"relevance score, higher is more relevant"`
}

// GuidelinesSearchResult represents the MCP tool output for guideline search.
type GuidelinesSearchResult struct {
	Matches []GuidelineMatch `json:"matches" jsonschema:"guideline chunks ranked by relevance"`
}

// GuidelinesSearchTool defines the MCP tool schema for guideline search.
func GuidelinesSearchTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "guidelines_search",
		Description: "Retrieves the review guideline chunks most relevant to a query, optionally restricted to one section.",
	}
}

// GuidelinesSearchHandler executes a guideline search request.
func GuidelinesSearchHandler(searcher GuidelineSearcher) mcp.ToolHandlerFor[GuidelinesSearchInput, GuidelinesSearchResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GuidelinesSearchInput) (*mcp.CallToolResult, GuidelinesSearchResult, error) {
		if searcher == nil {
			return nil, GuidelinesSearchResult{}, fmt.Errorf("guidelines index is not configured")
		}
		if strings.TrimSpace(input.Query) == "" {
			return nil, GuidelinesSearchResult{}, fmt.Errorf("query is required")
		}

		invocationID, err := NewInvocationID()
		if err != nil {
			return nil, GuidelinesSearchResult{}, fmt.Errorf("generate invocation id: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, searchCallTimeout)
		defer cancel()

		matches, err := searcher.Search(runCtx, input.Query, input.TopK, input.Section)
		if err != nil {
			return nil, GuidelinesSearchResult{}, fmt.Errorf("guidelines search failed: %w", err)
		}

		result := GuidelinesSearchResult{Matches: make([]GuidelineMatch, 0, len(matches))}
		for _, match := range matches {
			result.Matches = append(result.Matches, GuidelineMatch{
				Section: match.Chunk.Section,
				Heading: strings.Join(match.Chunk.HeadingPath, " > "),
				Text:    match.Chunk.Body,
				Score:   match.Score,
			})
		}

		return CallToolResultWithMetadata(ToolCallMetadata{InvocationID: invocationID}), result, nil
	}
}

// GuidelinesListInput represents the MCP tool input for listing sections.
type GuidelinesListInput struct{}

// SectionSummary describes one guidelines section.
type SectionSummary struct {
	Name      string `json:"name" jsonschema:"section name"`
	ItemCount int    `json:"item_count" jsonschema:"number of checklist items in the section"`
}

// GuidelinesListResult represents the MCP tool output for listing sections.
type GuidelinesListResult struct {
	Sections []SectionSummary `json:"sections" jsonschema:"sections of the guidelines document"`
}

// GuidelinesListTool defines the MCP tool schema for listing sections.
func GuidelinesListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "guidelines_list",
		Description: "Lists the sections of the review guidelines document and their checklist item counts.",
	}
}

// GuidelinesListHandler executes a section listing request.
func GuidelinesListHandler(doc *guidelines.Document) mcp.ToolHandlerFor[GuidelinesListInput, GuidelinesListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ GuidelinesListInput) (*mcp.CallToolResult, GuidelinesListResult, error) {
		if doc == nil {
			return nil, GuidelinesListResult{}, fmt.Errorf("guidelines document is not configured")
		}

		result := GuidelinesListResult{Sections: make([]SectionSummary, 0, len(doc.Sections))}
		for _, section := range doc.Sections {
			result.Sections = append(result.Sections, SectionSummary{
				Name:      section.Name,
				ItemCount: len(section.Items),
			})
		}
		return nil, result, nil
	}
}
