// Package domain translates MCP tool calls into review-support operations.
//
// The package is intentionally explicit about that mapping:
// - parse MCP tool input into gateway or index requests,
// - route calls to the LLM client or the guidelines index,
// - and surface structured outputs that MCP clients can render.
//
// Handlers accept small interfaces so tests can substitute fakes for the
// gateway client and the index.
package domain
