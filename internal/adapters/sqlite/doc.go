// Package sqlite implements the durable case store on top of SQLite.
//
// The store is the single source of truth for case state. Every mutation is
// serialized by a mutex held inside the store, and claims run in one
// exclusive transaction so that concurrent workers, in this process or in
// another one sharing the file, never receive overlapping batches.
//
// Reads (counts, listing, result iteration) do not take the mutex. The
// database runs in WAL mode, so they proceed alongside a pending write
// transaction and observe only committed state.
package sqlite
