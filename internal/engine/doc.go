// Package engine implements the timer lifecycle and interruption engine.
//
// The engine keeps at most one running timer per user across every context
// (workspaces and the personal context), periodically asks whether the user
// is still working, auto-stops abandoned sessions, drives the optional
// Pomodoro work/break cycle and raises budget alerts.
//
// ARCHITECTURE:
//
// Single-Writer Transactions:
// Every mutation runs inside store.InTx. SQLite serializes writers, so an
// invariant check ("does this user already have a timer?") is atomic with
// the insert or delete that depends on it. No in-process locking is used.
//
// Durable Callbacks:
// Interrupt checks, grace-period auto-stops and Pomodoro transitions are
// scheduled as callbacks written in the same transaction as the state
// change. Callbacks are never cancelled. Each carries the timestamp it was
// scheduled against (nextInterruptAt, interruptShownAt or the Pomodoro
// transition time); the handler re-reads the timer and no-ops when the stamp
// no longer matches. The most recently scheduled event for a timer wins.
//
// Best-Effort Alerts:
// Alerts are collected during a transaction and handed to the Notifier
// after commit. Delivery failures never roll back or fail the operation.
//
// Liveness Sweep:
// A periodic sweep repairs drift left by lost callbacks or dead clients:
// stale heartbeats and expired grace periods are auto-stopped, missed
// interrupt checks are run and overdue Pomodoro transitions are processed.
//
// Expected no-ops (no running timer, stale callback, already acknowledged)
// are reported as an Outcome with Success=false, never as errors.
package engine
