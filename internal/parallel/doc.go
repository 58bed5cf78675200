// Package parallel is a small parallel-execution library with pluggable
// backends.
//
// It provides:
//   - Backend / BackendType: the executor capability and its constructor
//   - Registry: named backend types, lazy external factories, registration
//     hooks and the process-wide active backend selection
//   - Parallel: the driver that dispatches calls to a backend and hands the
//     backend's nested choice to every call through its context
//   - WorkerPool: bounded concurrency pool used by the pool backend
//
// Built-in backends degrade on nesting: a call running inside a parallel
// call gets a threading backend, and anything deeper runs sequentially.
package parallel
