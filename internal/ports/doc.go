// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the application core and the outside
// world. They define what the worker pool needs from storage and from the
// executors without specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [CaseStore]: Claims batches and records results
//   - [ProgressSource]: Reads aggregate progress counts
//   - [Executor]: Performs the unit of work for one case
//   - [ExecutorFactory]: Builds a fresh executor for a supervisor slot
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// implementations (SQLite, HTTP, external commands, zerolog).
package ports
