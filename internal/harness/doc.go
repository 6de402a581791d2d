// Package harness runs timekeep scenarios: scripted sequences of user
// actions and background jobs against a real engine, store and durable
// scheduler, driven by a mock clock.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	seed:
//	  workspaces: [{id: ws1, name: Acme, members: [u1]}]
//	  users: [{id: u1, settings: {grace_period: 60}}]
//	  projects: [{id: p1, name: Website, owner_id: u1}]
//	steps:
//	  - op: start
//	    user: u1
//	    project: p1
//	  - op: advance
//	    duration: 30m
//	  - op: dispatch
//	    expect:
//	      outcome: handled=1
//	      alerts: [interrupt]
//	assertions:
//	  - type: alert_count
//	    alert: interrupt
//	    count: 1
//	  - type: final_state
//	    table: time_entries
//	    where: {user_id: u1}
//	    expect: {source: autoStop}
//
// # Steps
//
// User actions: start, stop, reset, heartbeat, ack, request_interrupt,
// switch (change the active workspace). Jobs: sweep, nudge, dispatch (run
// the callbacks that are due). Time: advance.
//
// Each step except advance appends one TraceEvent recording the wall-clock
// time, the outcome and the alerts it produced. The trace is what golden
// files capture.
//
// # Assertion Types
//
//   - trace_contains: a step with the given op (and outcome, if set) ran
//   - trace_order: ops appear in the given order
//   - trace_count: an op (with an optional outcome) ran exactly N times
//   - alert_count: N alerts of a type (optionally for one user) were sent
//   - timers: a user has exactly N running timers
//   - final_state: queries a table and verifies expected column values
package harness
