// Package mcp exposes workflow state and the activity log as MCP tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// over stdio and reads directly from a workflow manager and an activity log.
// Text returned to clients is scrubbed for secrets.
package mcp
