// Package ir holds the shared types of the moment engine: the catalog of
// moment, artifact, action and card definitions loaded at startup, the
// per-subject runtime records (artifacts, active cards), and the turn result
// handed back to callers.
//
// ir imports only the condition package; every other internal package
// imports ir. Catalog types are immutable once built by the compiler.
//
// Key design constraints:
//   - All JSON tags use snake_case
//   - Compiled condition trees are kept next to their raw source so records
//     can be persisted and recompiled
//   - Content-addressed hashes use canonical JSON (see canonical.go)
package ir
