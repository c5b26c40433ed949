package testutil

import "github.com/roach88/reflow/internal/state"

// EventNames projects a flushed batch to its event names, in flush
// order. Most ordering assertions only care about names.
func EventNames(events []state.Event) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Name
	}
	return names
}
