package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestEventNames(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		prop   string
		id     int64
		action Action
		want   []string
	}{
		{
			name: "field only", field: "course", action: ActionUpdated,
			want: []string{"course:updated"},
		},
		{
			name: "field and prop", field: "course", prop: "name", action: ActionUpdated,
			want: []string{"course.name:updated", "course:updated"},
		},
		{
			name: "entity", field: "cm", id: 5, action: ActionCreated,
			want: []string{"cm[5]:created", "cm:created"},
		},
		{
			name: "entity and prop", field: "cm", prop: "visible", id: 5, action: ActionUpdated,
			want: []string{"cm[5].visible:updated", "cm.visible:updated", "cm[5]:updated", "cm:updated"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eventNames(tt.field, tt.prop, tt.id, tt.action)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("eventNames mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSortEventsActionPriority(t *testing.T) {
	events := []Event{
		{Name: "cm[3]:deleted", Action: ActionDeleted, ID: 3, Seq: 1},
		{Name: "cm[2]:updated", Action: ActionUpdated, ID: 2, Seq: 2},
		{Name: "cm[1]:created", Action: ActionCreated, ID: 1, Seq: 3},
	}
	sortEvents(events)

	assert.Equal(t, ActionCreated, events[0].Action)
	assert.Equal(t, ActionUpdated, events[1].Action)
	assert.Equal(t, ActionDeleted, events[2].Action)
}

func TestSortEventsNameLengthTieBreak(t *testing.T) {
	events := []Event{
		{Name: "cm[5].visible:updated", Action: ActionUpdated, ID: 5, Seq: 1},
		{Name: "cm:updated", Action: ActionUpdated, ID: 5, Seq: 2},
		{Name: "cm[5]:updated", Action: ActionUpdated, ID: 5, Seq: 3},
	}
	sortEvents(events)

	assert.Equal(t, "cm:updated", events[0].Name)
	assert.Equal(t, "cm[5]:updated", events[1].Name)
	assert.Equal(t, "cm[5].visible:updated", events[2].Name)
}

func TestSortEventsStableForEqualKeys(t *testing.T) {
	events := []Event{
		{Name: "aa:updated", Action: ActionUpdated, ID: 1, Seq: 1},
		{Name: "bb:updated", Action: ActionUpdated, ID: 2, Seq: 2},
	}
	sortEvents(events)

	// Equal priority and length keep arrival order.
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(2), events[1].Seq)
}

func TestDedupeEventsKeepsFirstPerNameAndID(t *testing.T) {
	events := []Event{
		{Name: "cm:updated", ID: 5, Seq: 1},
		{Name: "cm:updated", ID: 6, Seq: 2},
		{Name: "cm:updated", ID: 5, Seq: 3},
		{Name: "state:updated", Seq: 4},
		{Name: "state:updated", Seq: 5},
	}
	out := dedupeEvents(events)

	assert.Len(t, out, 3)
	assert.Equal(t, int64(1), out[0].Seq)
	assert.Equal(t, int64(2), out[1].Seq)
	assert.Equal(t, int64(4), out[2].Seq)
}
