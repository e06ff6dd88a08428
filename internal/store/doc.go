// Package store provides SQLite-backed durable storage for subject state.
//
// The store persists what the engine needs to resume a subject after a
// restart:
//   - Artifacts: lifecycle status, content and the attempt that produced it
//   - Attempts: per-artifact generation attempt counters
//   - Cards: every event card instance, dismissed ones included
//   - Transitions: each moment's last evaluation result and the turn number
//
// Store implements engine.Persister; LoadSnapshot reads a subject back as an
// ir.SubjectSnapshot for engine.Restore.
//
// # Ordering
//
// Queries that return lists order by a stable key (artifact id, card seq,
// moment id) so a loaded snapshot is identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Two drivers are supported: "sqlite3" (mattn/go-sqlite3, cgo) and
// "sqlite" (modernc.org/sqlite, pure Go).
//
// Content is stored as canonical JSON (see internal/ir/canonical.go).
package store
