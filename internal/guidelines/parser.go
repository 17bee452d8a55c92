package guidelines

import (
	"fmt"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// maxSplitLevel is the deepest heading level that starts a new chunk.
// Deeper headings stay inside their parent chunk's body.
const maxSplitLevel = 3

// markdownParserInstance is initialized once and reused. The parser
// configuration never changes and the goldmark Parser is safe to share;
// actual parsing creates per-call state via Parse(reader).
var (
	markdownParserInstance goldmark.Markdown
	markdownParserOnce     sync.Once
)

func getMarkdownParser() goldmark.Markdown {
	markdownParserOnce.Do(func() {
		markdownParserInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownParserInstance
}

// Parse builds a Document from markdown source. Headings up to level three
// open a new chunk carrying the full heading path; H2 headings additionally
// open a new Section whose bulleted list items are collected verbatim.
func Parse(source []byte) (*Document, error) {
	if len(strings.TrimSpace(string(source))) == 0 {
		return nil, fmt.Errorf("guidelines document is empty")
	}

	root := getMarkdownParser().Parser().Parse(text.NewReader(source))

	builder := &documentBuilder{source: source}
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		builder.consume(node)
	}
	builder.flushChunk()

	return &Document{
		Source:   source,
		Sections: builder.sections,
		Chunks:   builder.chunks,
	}, nil
}

// documentBuilder accumulates sections and chunks during a single pass over
// the top-level nodes of the markdown AST.
type documentBuilder struct {
	source   []byte
	sections []Section
	chunks   []Chunk

	headingPath [maxSplitLevel]string
	sectionName string
	body        strings.Builder
}

func (b *documentBuilder) consume(node ast.Node) {
	switch typed := node.(type) {
	case *ast.Heading:
		title := string(typed.Text(b.source))
		if typed.Level > maxSplitLevel {
			b.appendLine(strings.Repeat("#", typed.Level) + " " + title)
			return
		}
		b.flushChunk()
		b.headingPath[typed.Level-1] = title
		for level := typed.Level; level < maxSplitLevel; level++ {
			b.headingPath[level] = ""
		}
		if typed.Level == 2 {
			b.sectionName = title
			b.sections = append(b.sections, Section{Name: title})
		} else if typed.Level == 1 {
			b.sectionName = ""
		}
	case *ast.List:
		for item := typed.FirstChild(); item != nil; item = item.NextSibling() {
			line := strings.TrimSpace(string(item.Text(b.source)))
			if line == "" {
				continue
			}
			b.appendLine("- " + line)
			if b.sectionName != "" && len(b.sections) > 0 {
				last := len(b.sections) - 1
				b.sections[last].Items = append(b.sections[last].Items, line)
			}
		}
	default:
		line := strings.TrimSpace(string(node.Text(b.source)))
		if line != "" {
			b.appendLine(line)
		}
	}
}

func (b *documentBuilder) appendLine(line string) {
	if b.body.Len() > 0 {
		b.body.WriteByte('\n')
	}
	b.body.WriteString(line)
}

// flushChunk closes the chunk under the current heading path. Headings with
// no content under them produce no chunk.
func (b *documentBuilder) flushChunk() {
	body := strings.TrimSpace(b.body.String())
	b.body.Reset()
	if body == "" {
		return
	}

	var path []string
	for _, part := range b.headingPath {
		if part != "" {
			path = append(path, part)
		}
	}

	b.chunks = append(b.chunks, Chunk{
		HeadingPath: path,
		Section:     b.sectionName,
		Body:        body,
	})
}
