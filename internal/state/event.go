package state

import (
	"fmt"
	"slices"
)

// Action classifies what happened to a state node.
type Action string

const (
	// ActionCreated marks a new field or collection entity.
	ActionCreated Action = "created"
	// ActionUpdated marks an attribute or entity change.
	ActionUpdated Action = "updated"
	// ActionDeleted marks a removed field or entity.
	ActionDeleted Action = "deleted"
	// ActionLoaded marks the one-time initial state load.
	ActionLoaded Action = "loaded"
)

// EventStateLoaded fires exactly once, when the initial state becomes
// available. Its Value is the full state tree.
const EventStateLoaded = "state:loaded"

// EventStateUpdated is the catch-all event accompanying every write.
const EventStateUpdated = "state:updated"

// Event is a named change fact flushed to listeners when a mutation
// window closes.
//
// Name encodes the affected path: "field:action", "field[id]:action",
// "field.prop:action" or "field[id].prop:action". ID is the entity id
// for collection-scoped events and 0 otherwise; (Name, ID) is the
// deduplication key within one flush.
type Event struct {
	Name   string
	Action Action
	ID     int64
	Value  any
	Seq    int64
}

// eventNames synthesizes the related event names for a single write, most
// specific first. Up to four names: attribute-scoped, attribute+id-scoped,
// field-scoped, field+id-scoped. The catch-all state:updated is appended
// by the manager.
func eventNames(field, prop string, id int64, action Action) []string {
	names := make([]string, 0, 4)
	if prop != "" {
		if id != 0 {
			names = append(names, fmt.Sprintf("%s[%d].%s:%s", field, id, prop, action))
		}
		names = append(names, fmt.Sprintf("%s.%s:%s", field, prop, action))
	}
	if id != 0 {
		names = append(names, fmt.Sprintf("%s[%d]:%s", field, id, action))
	}
	names = append(names, fmt.Sprintf("%s:%s", field, action))
	return names
}

// actionPriority orders flushed events: creations first so listeners see
// new entities before updates referencing them, deletions last.
func actionPriority(a Action) int {
	switch a {
	case ActionCreated:
		return 0
	case ActionUpdated:
		return 1
	case ActionDeleted:
		return 2
	default:
		return 3
	}
}

// sortEvents orders a buffered batch for dispatch: action priority
// created < updated < deleted, tie-broken by event-name length ascending.
// The sort is stable, so events with equal priority and name length keep
// their arrival (seq) order. The result is deterministic across repeated
// runs of the same state transition.
func sortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		if pa, pb := actionPriority(a.Action), actionPriority(b.Action); pa != pb {
			return pa - pb
		}
		return len(a.Name) - len(b.Name)
	})
}

// dedupeEvents collapses duplicate (Name, ID) pairs, keeping the first
// occurrence in post-sort order. Multiple writes to the same logical node
// within one mutation window therefore emit once.
func dedupeEvents(events []Event) []Event {
	type key struct {
		name string
		id   int64
	}
	seen := make(map[key]bool, len(events))
	out := events[:0]
	for _, ev := range events {
		k := key{ev.Name, ev.ID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, ev)
	}
	return out
}
