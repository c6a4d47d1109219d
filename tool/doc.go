// Package tool holds the tool catalog and dispatches calls to it.
//
// The package is split by concern:
//   - schema: declarative parameter lists, argument binding and JSON Schema export
//   - registry: definitions, registration and lookup
//   - dispatch: call routing, validation and observability
//   - error: structured error codes shared with the protocol bridge
//
// It is transport-agnostic: the MCP bridge and the CLI both dispatch through the
// same Registry.
package tool
