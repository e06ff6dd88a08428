// Package engine implements the moment lifecycle engine.
//
// After every user turn the engine decides what became possible and acts on
// it exactly once: it detects moments whose prerequisite flipped from unmet
// to met, starts bounded background generation for their artifacts, and
// creates, refreshes and dismisses UI cards.
//
// ARCHITECTURE:
//
// Per-Subject Actor:
// Each subject (family, session, ...) owns its artifacts, attempt counters
// and cards. All mutations of that state happen in one goroutine fed by an
// unbounded mailbox. Turns, background completions, dismissals and
// restores are all messages, so there is no locking of subject state.
//
// Turn Flow:
//  1. Build the evaluation view: caller context plus artifacts.<id> entries
//  2. Tracker detects firings against that single snapshot
//  3. Orchestrator writes generating placeholders and launches tasks
//  4. Card creation pass, then maintenance of older cards
//  5. Transition state is swapped as a whole; the summary is returned
//
// Background Generation:
// Tasks run on a per-subject errgroup, bounded per subject and globally by a
// weighted semaphore. A task never touches subject state: it posts its
// result back to the mailbox. Panics are recovered at the task boundary and
// become ordinary failures.
//
// Nothing in a turn returns an error to the caller except cancellation and
// use after Close; every failure ends in a logged state change or no-op.
package engine
