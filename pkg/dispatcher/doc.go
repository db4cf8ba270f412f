// Package dispatcher is the public façade over the internal dispatch
// engine: a single-reactor-owned worker pool that submits, executes and
// settles named or custom tasks without requiring callers to hold a
// lock. Internal packages (internal/dispatch, internal/reactor,
// internal/task, internal/promise) carry the actual implementation;
// this package wires them together behind a small, stable surface
// suitable for embedding in another Go program.
package dispatcher
