// Package executor runs external programs on behalf of tool handlers.
//
// Every invocation is bounded by a wall-clock timeout and a per-stream output
// ceiling, and its outcome (clean exit, non-zero exit, timeout, cancellation or
// spawn failure) is reduced to a single text blob before it leaves the package.
// Handlers therefore never branch on exit status themselves.
package executor
