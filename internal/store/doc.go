// Package store provides SQLite-backed durable storage for timekeep.
//
// The store holds:
//   - Running timers: one row per (user, workspace context)
//   - Time entries: billable time, open while stopped_at is NULL
//   - Timer history: audit rows for every ended timer
//   - Callbacks: the durable at-time scheduler queue
//   - Alerts: outbox of dispatched notifications
//   - Directory tables: workspaces, memberships, projects and settings
//
// # Invariants
//
// One running timer per (user, context):
//   - UNIQUE(user_id, workspace_id) on running_timers
//   - The "one timer per user across all contexts" rule is enforced by the
//     engine inside the same transaction that inserts the timer
//
// One open entry per (user, project, context):
//   - Partial UNIQUE index on time_entries WHERE stopped_at IS NULL
//
// Interrupt and Pomodoro state are exclusive:
//   - CHECK (NOT (pomodoro_enabled = 1 AND next_interrupt_at IS NOT NULL))
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - _txlock=immediate: every transaction takes the write lock up front, so
//     mutations are serialized single-writer transactions and a read inside
//     a transaction can never be upgraded into a deadlock
package store
