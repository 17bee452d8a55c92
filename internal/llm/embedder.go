package llm

import "context"

// ModelEmbedder binds a client to one embedding model so callers that only
// embed do not carry model names around.
type ModelEmbedder struct {
	client *Client
	model  string
}

// EmbedderFor returns an embedder bound to the named model, or nil when no
// model is configured.
func (c *Client) EmbedderFor(model string) *ModelEmbedder {
	if c == nil || model == "" {
		return nil
	}
	return &ModelEmbedder{client: c, model: model}
}

// Embed returns one vector per input text.
func (m *ModelEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return m.client.Embed(ctx, m.model, texts)
}
