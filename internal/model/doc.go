// Package model defines the records shared by the timer engine, the store
// and the API layer.
//
// # Records
//
//   - RunningTimer: the single live session pointer for a user in one
//     workspace context. Its interrupt and Pomodoro state is a Mode variant,
//     so a timer carries either a standard interrupt schedule or a Pomodoro
//     cycle, never both.
//   - TimeEntry: billable time. Open while StoppedAt is nil, immutable once
//     closed.
//   - UserSettings, Project: read-only inputs owned by other services.
//   - Callback: a durable scheduler command carrying the timestamp it was
//     scheduled for, so a handler can tell a current event from a stale one.
//   - Alert: an outbound notification.
//
// All timestamps are truncated to millisecond precision when persisted.
package model
