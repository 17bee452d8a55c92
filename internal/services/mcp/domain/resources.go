package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/reviewforge/reviewforge/internal/guidelines"
)

const documentResourceURI = "guidelines://document"

// DocumentResource defines the readable resource for the full guidelines
// document.
func DocumentResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "guidelines_document",
		Title:       "Review Guidelines",
		Description: "The full review guidelines document in markdown.",
		MIMEType:    "text/markdown",
		URI:         documentResourceURI,
	}
}

// DocumentResourceHandler serves the full guidelines document.
func DocumentResourceHandler(doc *guidelines.Document) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if doc == nil {
			return nil, fmt.Errorf("guidelines document is not configured")
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      documentResourceURI,
					MIMEType: "text/markdown",
					Text:     doc.Markdown(),
				},
			},
		}, nil
	}
}

// SectionResourceTemplate defines the readable resource template for one
// guidelines section.
func SectionResourceTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		Name:        "guidelines_section",
		Title:       "Guidelines Section",
		Description: "One section of the review guidelines. URI format: guidelines://{section}",
		MIMEType:    "text/markdown",
		URITemplate: "guidelines://{section}",
	}
}

// SectionResourceHandler serves a single guidelines section.
func SectionResourceHandler(doc *guidelines.Document) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		if doc == nil {
			return nil, fmt.Errorf("guidelines document is not configured")
		}
		if req == nil || req.Params == nil || req.Params.URI == "" {
			return nil, fmt.Errorf("section is required; use URI format guidelines://{section}")
		}
		uri := req.Params.URI

		section, err := parseSectionFromURI(uri)
		if err != nil {
			return nil, fmt.Errorf("parse section from URI: %w", err)
		}

		markdown, ok := doc.SectionMarkdown(section)
		if !ok {
			return nil, fmt.Errorf("unknown guidelines section %q", section)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     markdown,
				},
			},
		}, nil
	}
}

// parseSectionFromURI extracts the section name from a URI of the form
// guidelines://{section}.
func parseSectionFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "guidelines://")
	if !ok {
		return "", fmt.Errorf("URI %q does not use the guidelines:// scheme", uri)
	}
	section := strings.Trim(rest, "/")
	if section == "" || strings.Contains(section, "/") {
		return "", fmt.Errorf("URI %q does not name a single section", uri)
	}
	return section, nil
}
