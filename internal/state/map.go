package state

import (
	"encoding/json"
	"fmt"
)

// Map is an ordered-by-insertion, keyed-by-identity collection of records.
// It participates in the same event and read-only discipline as the rest
// of the state tree: every element is a *Record whose storage key equals
// its id attribute, and all writes register change events on the owning
// manager.
//
// Only root-level fields may be Maps; records never nest collections.
type Map struct {
	m     *Manager
	field string
	order []int64
	items map[int64]*Record
}

func newMap(m *Manager, field string) *Map {
	return &Map{m: m, field: field, items: make(map[int64]*Record)}
}

// Len returns the number of entities.
func (mp *Map) Len() int {
	return len(mp.items)
}

// Has reports whether an entity with the given id exists.
func (mp *Map) Has(id int64) bool {
	_, ok := mp.items[id]
	return ok
}

// Get returns the entity record for id.
func (mp *Map) Get(id int64) (*Record, bool) {
	r, ok := mp.items[id]
	return r, ok
}

// IDs returns entity ids in insertion order.
func (mp *Map) IDs() []int64 {
	out := make([]int64, len(mp.order))
	copy(out, mp.order)
	return out
}

// Values returns entity records in insertion order.
func (mp *Map) Values() []*Record {
	out := make([]*Record, 0, len(mp.order))
	for _, id := range mp.order {
		out = append(out, mp.items[id])
	}
	return out
}

// Set stores an entity under key. The element's id attribute MUST equal
// the storage key; a mismatch is a programming error and fails loudly
// without touching the collection. Emits created when the key is new,
// updated otherwise.
func (mp *Map) Set(key int64, fields map[string]any) error {
	if err := mp.m.checkWritable(mp.field, ""); err != nil {
		return err
	}
	id, err := entityID(fields)
	if err != nil {
		return &Error{Code: ErrCodeMissingID, Message: "collection element has no id", Field: mp.field, ID: key}
	}
	if id != key {
		return &Error{
			Code:    ErrCodeKeyMismatch,
			Message: fmt.Sprintf("storage key %d does not match element id %d", key, id),
			Field:   mp.field,
			ID:      key,
		}
	}

	action := ActionUpdated
	if _, ok := mp.items[key]; !ok {
		action = ActionCreated
		mp.order = append(mp.order, key)
	}
	rec := newRecord(mp.m, mp.field, key, fields)
	mp.items[key] = rec
	mp.m.registerStateAction(mp.field, "", key, action, rec)
	return nil
}

// Add stores an entity under its own id attribute.
func (mp *Map) Add(fields map[string]any) error {
	id, err := entityID(fields)
	if err != nil {
		return &Error{Code: ErrCodeMissingID, Message: "collection element has no id", Field: mp.field}
	}
	return mp.Set(id, fields)
}

// Delete removes an entity, emitting deleted with the previous record as
// payload. Returns false without error when the id is absent.
func (mp *Map) Delete(id int64) (bool, error) {
	if err := mp.m.checkWritable(mp.field, ""); err != nil {
		return false, err
	}
	prev, ok := mp.items[id]
	if !ok {
		return false, nil
	}
	delete(mp.items, id)
	for i, existing := range mp.order {
		if existing == id {
			mp.order = append(mp.order[:i], mp.order[i+1:]...)
			break
		}
	}
	mp.m.registerStateAction(mp.field, "", id, ActionDeleted, prev)
	return true, nil
}

// LoadValues bulk-inserts entities during the initial state load. Every
// element must carry an id. No events are emitted: the load is announced
// by the single state:loaded event instead.
func (mp *Map) LoadValues(list []map[string]any) error {
	if mp.m.Loaded() {
		return &Error{Code: ErrCodeAlreadyLoaded, Message: "loadValues is only legal during the initial load", Field: mp.field}
	}
	for i, fields := range list {
		id, err := entityID(fields)
		if err != nil {
			return &Error{
				Code:    ErrCodeMissingID,
				Message: fmt.Sprintf("element %d has no id", i),
				Field:   mp.field,
			}
		}
		if _, ok := mp.items[id]; !ok {
			mp.order = append(mp.order, id)
		}
		mp.items[id] = newRecord(mp.m, mp.field, id, fields)
	}
	return nil
}

// ToSlice serializes the collection to plain attribute maps in insertion
// order. The result shares no structure with the map, so deep-equality
// comparisons elsewhere never observe manager internals.
func (mp *Map) ToSlice() []map[string]any {
	out := make([]map[string]any, 0, len(mp.order))
	for _, id := range mp.order {
		out = append(out, mp.items[id].Fields())
	}
	return out
}

// MarshalJSON serializes the collection as a plain array.
func (mp *Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(mp.ToSlice())
}

// entityID extracts the mandatory id attribute. Numeric ids survive YAML
// and JSON decoding as several concrete types.
func entityID(fields map[string]any) (int64, error) {
	raw, ok := fields["id"]
	if !ok {
		return 0, fmt.Errorf("missing id")
	}
	switch id := raw.(type) {
	case int64:
		return id, nil
	case int:
		return int64(id), nil
	case float64:
		if id != float64(int64(id)) {
			return 0, fmt.Errorf("non-integer id %v", id)
		}
		return int64(id), nil
	case json.Number:
		n, err := id.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid id %q", id.String())
		}
		return n, nil
	default:
		return 0, fmt.Errorf("invalid id type %T", raw)
	}
}
