// Package notify pushes artifact and card changes to connected clients.
//
// Dispatchers are fire-and-forget: they must never block the engine. Hub
// fans events out to per-subscriber buffered channels and drops events for
// subscribers that fall behind; ServeSSE streams a subject's events as
// server-sent events.
package notify
