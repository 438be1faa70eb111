// Package harness runs scripted editing scenarios against the real
// engine, store, resolver and autosave session.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scheduled_cta
//	description: "Scheduled content stays hidden until its time"
//	start: 2026-01-05T09:00:00Z
//	users:
//	  bob: editor
//	steps:
//	  - op: save
//	    section: cta
//	    key: heading
//	    value: "Spring sale"
//	  - op: schedule
//	    section: cta
//	    key: heading
//	    in: 2h
//	  - op: advance
//	    by: 2h
//	assertions:
//	  - type: resolved
//	    path: cta.heading
//	    equals: "Spring sale"
//
// Steps run as the user named by "as" (default "editor"; "admin" is
// also granted). A step without an expect clause must succeed; with one
// it must fail with the given engine error code. The fake clock only
// moves on advance steps, which also fire autosave timers.
//
// # Assertion Types
//
//   - resolved: the public tree has equals at path
//   - absent: the public tree has nothing at path
//   - state: the stored unit is draft, published, scheduled or none
//   - stored: the stored unit's content equals the value, drafts included
//   - revisions: the unit has exactly count revisions
//   - trace_count: count steps ran op (with outcome, when given)
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON of the step trace with
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
