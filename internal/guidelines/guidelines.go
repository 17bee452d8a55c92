// Package guidelines models the review guidelines document.
//
// The canonical document ships embedded in the binary. It is a markdown
// checklist with one H2 section per review concern; the structural contract
// (exactly the four named sections, each a non-empty bulleted list) is
// enforced by Validate so a malformed document fails at startup instead of
// surfacing as empty search results.
package guidelines

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

//go:embed guidelines.md
var embedded []byte

// RequiredSections lists the H2 sections the document must contain, in order.
var RequiredSections = []string{"Security", "Performance", "Maintainability", "Testing"}

// Section is one H2 section of the document and its checklist items.
type Section struct {
	Name  string
	Items []string
}

// Chunk is a retrieval unit: the text under one heading path. Chunks are
// what the index embeds and searches, mirroring a header-based splitter
// rather than a per-line one.
type Chunk struct {
	HeadingPath []string
	Section     string
	Body        string
}

// Document is a parsed guidelines document.
type Document struct {
	Source   []byte
	Sections []Section
	Chunks   []Chunk
}

// Load parses and validates the guidelines document at path, or the
// embedded copy when path is empty.
func Load(path string) (*Document, error) {
	source := embedded
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read guidelines file: %w", err)
		}
		source = content
	}

	doc, err := Parse(source)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate enforces the document's structural contract: exactly the four
// required H2 sections, in order, each with at least one checklist item.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("document is nil")
	}
	if len(d.Sections) != len(RequiredSections) {
		return fmt.Errorf("expected %d sections, found %d", len(RequiredSections), len(d.Sections))
	}
	for i, name := range RequiredSections {
		section := d.Sections[i]
		if section.Name != name {
			return fmt.Errorf("expected section %q at position %d, found %q", name, i+1, section.Name)
		}
		if len(section.Items) == 0 {
			return fmt.Errorf("section %q has no checklist items", name)
		}
	}
	return nil
}

// Markdown returns the document source.
func (d *Document) Markdown() string {
	if d == nil {
		return ""
	}
	return string(d.Source)
}

// Fingerprint returns a stable digest of the document source. The index
// uses it to detect a changed document and rebuild.
func (d *Document) Fingerprint() string {
	if d == nil {
		return ""
	}
	sum := sha256.Sum256(d.Source)
	return hex.EncodeToString(sum[:])
}

// Section returns the named section.
func (d *Document) Section(name string) (Section, bool) {
	if d == nil {
		return Section{}, false
	}
	for _, section := range d.Sections {
		if strings.EqualFold(section.Name, name) {
			return section, true
		}
	}
	return Section{}, false
}

// SectionMarkdown renders one section back to markdown for resource reads.
func (d *Document) SectionMarkdown(name string) (string, bool) {
	section, ok := d.Section(name)
	if !ok {
		return "", false
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", section.Name)
	for _, item := range section.Items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return b.String(), true
}
