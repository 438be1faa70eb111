package engine

import (
	"time"

	"github.com/roach88/sitecms/internal/store"
)

// State is the publish state of a content item.
type State string

const (
	// StateDraft is stored but not public.
	StateDraft State = "draft"

	// StatePublished is public now.
	StatePublished State = "published"

	// StateScheduled is stored as published but hidden until scheduled_for.
	StateScheduled State = "scheduled"
)

// StateOf derives the state of it at now. A schedule that has passed is
// Published without any write.
func StateOf(it store.Item, now time.Time) State {
	switch {
	case it.IsDraft:
		return StateDraft
	case it.ScheduledFor != nil && it.ScheduledFor.After(now):
		return StateScheduled
	default:
		return StatePublished
	}
}

// ItemState pairs a stored item with its derived state.
type ItemState struct {
	store.Item
	State State `json:"state"`
}

// Transitions:
//
//	save      any       -> Draft      (revision of the replaced value)
//	rollback  any       -> Draft      (through the save path)
//	publish   Draft     -> Published
//	publish   Scheduled -> Published  (immediately)
//	publish   Published -> Published  (no-op)
//	schedule  Draft     -> Scheduled
//	schedule  Scheduled -> Scheduled  (new instant)

func canSchedule(s State) bool {
	return s == StateDraft || s == StateScheduled
}

func needsPublish(s State) bool {
	return s != StatePublished
}
