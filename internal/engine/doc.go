// Package engine implements draft, publish, schedule and rollback of site
// content.
//
// Content is stored per unit, a (section, key) pair:
//   - key "default" holds a whole singleton section (or a partial overlay
//     of its defaults)
//   - a field name holds one field of a singleton section, e.g.
//     contact/phone
//   - any other key of a keyed section holds one collection entry, e.g.
//     service_areas/springfield
//
// State machine per unit:
//
//	Draft ──publish──▶ Published
//	  │                   │
//	  └─schedule─▶ Scheduled ──(time passes)──▶ Published
//
// save and rollback move any state back to Draft. Saving while Scheduled
// cancels the schedule. Rollback is durable immediately: it writes the
// revision content as a new draft and records a revision of whatever it
// replaced.
//
// Validation blocks Save, Publish and Schedule with the complete list of
// violations. SaveDraft (autosave) skips it. Authorization is checked
// before anything else, so a rejected caller never reaches the store.
package engine
