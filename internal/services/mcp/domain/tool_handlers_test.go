package domain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/reviewforge/reviewforge/internal/guidelines"
	"github.com/reviewforge/reviewforge/internal/index"
)

type fakeInvoker struct {
	lastModel   string
	lastPayload map[string]any
	response    map[string]any
	err         error
}

func (f *fakeInvoker) Invoke(ctx context.Context, model string, payload map[string]any) (map[string]any, error) {
	f.lastModel = model
	f.lastPayload = payload
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakeSearcher struct {
	lastQuery   string
	lastTopK    int
	lastSection string
	matches     []index.Match
	err         error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, topK int, section string) ([]index.Match, error) {
	f.lastQuery = query
	f.lastTopK = topK
	f.lastSection = section
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func testGuidelinesDocument(t *testing.T) *guidelines.Document {
	t.Helper()
	doc, err := guidelines.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return doc
}

func TestLLMInvokeHandler(t *testing.T) {
	t.Run("returns gateway response", func(t *testing.T) {
		invoker := &fakeInvoker{response: map[string]any{"generated_text": "looks fine"}}
		handler := LLMInvokeHandler(invoker)

		result, out, err := handler(context.Background(), nil, LLMInvokeInput{
			ModelName: "review-model",
			Inputs:    "diff content",
		})
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if invoker.lastModel != "review-model" {
			t.Fatalf("model = %q, want review-model", invoker.lastModel)
		}
		if got := invoker.lastPayload["inputs"]; got != "diff content" {
			t.Fatalf("payload inputs = %v, want diff content", got)
		}
		if out.ResponseData["generated_text"] != "looks fine" {
			t.Fatalf("response data = %v", out.ResponseData)
		}
		if result == nil || result.Meta[invocationIDKey] == "" {
			t.Fatalf("expected invocation id metadata, got %+v", result)
		}
	})

	t.Run("requires model name", func(t *testing.T) {
		handler := LLMInvokeHandler(&fakeInvoker{})
		_, _, err := handler(context.Background(), nil, LLMInvokeInput{Inputs: "diff"})
		if err == nil || !strings.Contains(err.Error(), "model_name is required") {
			t.Fatalf("err = %v, want model_name is required", err)
		}
	})

	t.Run("rejects nil invoker", func(t *testing.T) {
		handler := LLMInvokeHandler(nil)
		_, _, err := handler(context.Background(), nil, LLMInvokeInput{ModelName: "m"})
		if err == nil || !strings.Contains(err.Error(), "not configured") {
			t.Fatalf("err = %v, want not configured", err)
		}
	})

	t.Run("wraps gateway errors", func(t *testing.T) {
		invoker := &fakeInvoker{err: errors.New("gateway down")}
		handler := LLMInvokeHandler(invoker)
		_, _, err := handler(context.Background(), nil, LLMInvokeInput{ModelName: "m", Inputs: "x"})
		if err == nil || !strings.Contains(err.Error(), "gateway down") {
			t.Fatalf("err = %v, want wrapped gateway error", err)
		}
	})
}

func TestGuidelinesSearchHandler(t *testing.T) {
	t.Run("returns ranked matches", func(t *testing.T) {
		searcher := &fakeSearcher{matches: []index.Match{
			{
				Chunk: guidelines.Chunk{
					HeadingPath: []string{"Code Review Guidelines", "Security"},
					Section:     "Security",
					Body:        "- Never log credentials",
				},
				Score: 0.91,
			},
		}}
		handler := GuidelinesSearchHandler(searcher)

		result, out, err := handler(context.Background(), nil, GuidelinesSearchInput{
			Query:   "credential handling",
			TopK:    2,
			Section: "Security",
		})
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if searcher.lastQuery != "credential handling" || searcher.lastTopK != 2 || searcher.lastSection != "Security" {
			t.Fatalf("search args = (%q, %d, %q)", searcher.lastQuery, searcher.lastTopK, searcher.lastSection)
		}
		if len(out.Matches) != 1 {
			t.Fatalf("matches = %d, want 1", len(out.Matches))
		}
		match := out.Matches[0]
		if match.Section != "Security" {
			t.Fatalf("section = %q", match.Section)
		}
		if match.Heading != "Code Review Guidelines > Security" {
			t.Fatalf("heading = %q", match.Heading)
		}
		if match.Score != 0.91 {
			t.Fatalf("score = %v", match.Score)
		}
		if result == nil || result.Meta[invocationIDKey] == "" {
			t.Fatalf("expected invocation id metadata, got %+v", result)
		}
	})

	t.Run("requires query", func(t *testing.T) {
		handler := GuidelinesSearchHandler(&fakeSearcher{})
		_, _, err := handler(context.Background(), nil, GuidelinesSearchInput{Query: "   "})
		if err == nil || !strings.Contains(err.Error(), "query is required") {
			t.Fatalf("err = %v, want query is required", err)
		}
	})

	t.Run("rejects nil searcher", func(t *testing.T) {
		handler := GuidelinesSearchHandler(nil)
		_, _, err := handler(context.Background(), nil, GuidelinesSearchInput{Query: "q"})
		if err == nil || !strings.Contains(err.Error(), "not configured") {
			t.Fatalf("err = %v, want not configured", err)
		}
	})

	t.Run("wraps search errors", func(t *testing.T) {
		searcher := &fakeSearcher{err: errors.New("index locked")}
		handler := GuidelinesSearchHandler(searcher)
		_, _, err := handler(context.Background(), nil, GuidelinesSearchInput{Query: "q"})
		if err == nil || !strings.Contains(err.Error(), "index locked") {
			t.Fatalf("err = %v, want wrapped search error", err)
		}
	})
}

func TestGuidelinesListHandler(t *testing.T) {
	t.Run("lists sections in order", func(t *testing.T) {
		doc := testGuidelinesDocument(t)
		handler := GuidelinesListHandler(doc)

		_, out, err := handler(context.Background(), nil, GuidelinesListInput{})
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if len(out.Sections) != len(guidelines.RequiredSections) {
			t.Fatalf("sections = %d, want %d", len(out.Sections), len(guidelines.RequiredSections))
		}
		for i, want := range guidelines.RequiredSections {
			if out.Sections[i].Name != want {
				t.Fatalf("section %d = %q, want %q", i, out.Sections[i].Name, want)
			}
			if out.Sections[i].ItemCount == 0 {
				t.Fatalf("section %q has no items", want)
			}
		}
	})

	t.Run("rejects nil document", func(t *testing.T) {
		handler := GuidelinesListHandler(nil)
		_, _, err := handler(context.Background(), nil, GuidelinesListInput{})
		if err == nil || !strings.Contains(err.Error(), "not configured") {
			t.Fatalf("err = %v, want not configured", err)
		}
	})
}
