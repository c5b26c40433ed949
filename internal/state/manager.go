// Package state implements the single-writer reactive state tree.
//
// The tree has exactly two kinds of root values: a Record (plain keyed
// attributes) or a Map (ordered collection of records keyed by entity id).
// All writes happen inside an explicit mutation window; closing the window
// flushes a deduplicated, deterministically ordered batch of change events
// to the registered sink.
//
// Mutation discipline:
//   - The tree starts read-only and empty.
//   - SetInitialState opens the only load window and emits state:loaded.
//   - Mutate opens a scoped write window; its *Writer is the only handle
//     carrying write access, and the window relocks on return even when
//     the mutation fails. Reentrant windows fail fast.
//
// All "concurrency" here is cooperative interleaving: a single goroutine
// (the render loop) owns the manager. The event buffer and flags are
// mutex-guarded so misuse is detected rather than silently racy.
package state

import (
	"fmt"
	"log/slog"
	"sync"
)

// FlushSink receives each flushed event batch. Bound once by the
// orchestrator; batches flushed with no sink are dropped.
type FlushSink func([]Event)

// UpdateMessage is the wire shape of one server-driven state update, as
// produced by the web-service layer: a target field name, an action
// (create, update, delete; empty means update), and the fields payload.
type UpdateMessage struct {
	Name   string         `json:"name" yaml:"name"`
	Action string         `json:"action,omitempty" yaml:"action,omitempty"`
	Fields map[string]any `json:"fields" yaml:"fields"`
}

// Manager owns the mutable state tree and converts raw field writes into
// canonical, deduplicated, ordered batches of change events.
type Manager struct {
	mu       sync.Mutex
	logger   *slog.Logger
	clock    *Clock
	readOnly bool
	loaded   bool
	ready    chan struct{}
	fields   map[string]any // field name -> *Record | *Map
	buffer   []Event
	sink     FlushSink
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock sets the logical clock stamping buffered events. Used by
// journal replay to resume a recorded seq position.
func WithClock(clock *Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// New creates an empty, read-only manager. State arrives later via
// SetInitialState.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger:   slog.Default(),
		clock:    NewClock(),
		readOnly: true,
		ready:    make(chan struct{}),
		fields:   make(map[string]any),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnFlush binds the sink receiving flushed event batches. The last bound
// sink wins; the orchestrator binds exactly one.
func (m *Manager) OnFlush(sink FlushSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// Ready returns a channel closed exactly once, when the initial state
// load completes. Late subscribers observe an already-closed channel, so
// every component sees the snapshot regardless of registration order.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Loaded reports whether the initial state has been set.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// ReadOnly reports whether the tree is currently locked.
func (m *Manager) ReadOnly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readOnly
}

// Field returns the raw root value (*Record or *Map) for name.
func (m *Manager) Field(name string) (any, bool) {
	v, ok := m.fields[name]
	return v, ok
}

// Record returns the root record for name, failing when the field is
// absent or is a collection.
func (m *Manager) Record(name string) (*Record, error) {
	v, ok := m.fields[name]
	if !ok {
		return nil, &Error{Code: ErrCodeFieldNotFound, Message: "field does not exist", Field: name}
	}
	rec, ok := v.(*Record)
	if !ok {
		return nil, &Error{Code: ErrCodeFieldNotFound, Message: "field is a collection, not a record", Field: name}
	}
	return rec, nil
}

// Map returns the root collection for name, failing when the field is
// absent or is a plain record.
func (m *Manager) Map(name string) (*Map, error) {
	v, ok := m.fields[name]
	if !ok {
		return nil, &Error{Code: ErrCodeFieldNotFound, Message: "field does not exist", Field: name}
	}
	mp, ok := v.(*Map)
	if !ok {
		return nil, &Error{Code: ErrCodeFieldNotFound, Message: "field is a record, not a collection", Field: name}
	}
	return mp, nil
}

// Export serializes the full tree to plain maps and slices, leaking no
// internal references.
func (m *Manager) Export() map[string]any {
	out := make(map[string]any, len(m.fields))
	for name, v := range m.fields {
		switch node := v.(type) {
		case *Record:
			out[name] = node.Fields()
		case *Map:
			out[name] = node.ToSlice()
		}
	}
	return out
}

// SetInitialState loads the state document. Root fields become Records;
// lists become Maps keyed by each element's mandatory id. Fails on a
// second call without touching the already-loaded state. On success the
// tree is read-only, the ready channel closes, and a single state:loaded
// event carries the full state to the sink.
func (m *Manager) SetInitialState(doc map[string]any) error {
	m.mu.Lock()
	if m.loaded {
		m.mu.Unlock()
		return &Error{Code: ErrCodeAlreadyLoaded, Message: "initial state already defined"}
	}
	m.mu.Unlock()

	staged := make(map[string]any, len(doc))
	for name, raw := range doc {
		node, err := m.buildField(name, raw)
		if err != nil {
			return err
		}
		staged[name] = node
	}

	m.mu.Lock()
	m.fields = staged
	m.loaded = true
	m.readOnly = true
	m.mu.Unlock()

	close(m.ready)
	m.logger.Debug("initial state loaded", "fields", len(staged))
	m.emit([]Event{{
		Name:   EventStateLoaded,
		Action: ActionLoaded,
		Value:  m,
		Seq:    m.clock.Next(),
	}})
	return nil
}

func (m *Manager) buildField(name string, raw any) (any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return newRecord(m, name, 0, v), nil
	case []map[string]any:
		mp := newMap(m, name)
		if err := mp.LoadValues(v); err != nil {
			return nil, err
		}
		return mp, nil
	case []any:
		list := make([]map[string]any, 0, len(v))
		for i, elem := range v {
			fields, ok := elem.(map[string]any)
			if !ok {
				return nil, &Error{
					Code:    ErrCodeInvalidDocument,
					Message: fmt.Sprintf("collection element %d is not a record", i),
					Field:   name,
				}
			}
			list = append(list, fields)
		}
		mp := newMap(m, name)
		if err := mp.LoadValues(list); err != nil {
			return nil, err
		}
		return mp, nil
	default:
		return nil, &Error{
			Code:    ErrCodeInvalidDocument,
			Message: fmt.Sprintf("root field must be a record or a collection, got %T", raw),
			Field:   name,
		}
	}
}

// SetReadOnly toggles the write lock. Unlocking while already unlocked is
// a reentrant mutation and fails fast. Relocking flushes the buffered
// events as one deduplicated, sorted batch.
func (m *Manager) SetReadOnly(readOnly bool) error {
	m.mu.Lock()
	if !readOnly && !m.readOnly {
		m.mu.Unlock()
		return &Error{Code: ErrCodeReentrantMutation, Message: "mutation window already open"}
	}
	m.readOnly = readOnly
	if !readOnly {
		m.mu.Unlock()
		return nil
	}
	batch := m.buffer
	m.buffer = nil
	m.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	sortEvents(batch)
	batch = dedupeEvents(batch)
	m.logger.Debug("state flush", "events", len(batch))
	m.emit(batch)
	return nil
}

// Mutate opens a scoped write window, runs fn with the only handle that
// carries write access, and relocks on return regardless of outcome.
// "Forgetting to relock" is therefore structurally impossible. Nested
// Mutate calls fail with a reentrant-mutation error before fn runs.
func (m *Manager) Mutate(fn func(*Writer) error) error {
	if err := m.SetReadOnly(false); err != nil {
		return err
	}
	w := &Writer{m: m}
	defer func() {
		w.closed = true
		if err := m.SetReadOnly(true); err != nil {
			m.logger.Error("relock failed", "error", err)
		}
	}()
	return fn(w)
}

// ProcessUpdates applies a batch of externally supplied update records in
// order, stopping at the first failure.
func (m *Manager) ProcessUpdates(updates []UpdateMessage) error {
	for i, u := range updates {
		if err := m.ProcessUpdate(u.Name, u.Action, u.Fields); err != nil {
			return fmt.Errorf("update %d: %w", i, err)
		}
	}
	return nil
}

// ProcessUpdate applies one update record. create inserts into a
// collection target or replaces/creates a record field; delete removes by
// id (collection) or drops the field (record); anything else, including
// an empty action, shallow-merges fields into the current value. Unknown
// fields referenced by a non-create action and unknown entity ids fail.
func (m *Manager) ProcessUpdate(name, action string, fields map[string]any) error {
	if name == "" {
		return &Error{Code: ErrCodeMissingName, Message: "update has no name"}
	}
	if fields == nil {
		return &Error{Code: ErrCodeMissingFields, Message: "update has no fields", Field: name}
	}

	switch action {
	case "create":
		return m.applyCreate(name, fields)
	case "delete":
		return m.applyDelete(name, fields)
	default:
		return m.applyUpdate(name, fields)
	}
}

func (m *Manager) applyCreate(name string, fields map[string]any) error {
	if mp, ok := m.fields[name].(*Map); ok {
		return mp.Add(fields)
	}
	if err := m.checkWritable(name, ""); err != nil {
		return err
	}
	rec := newRecord(m, name, 0, fields)
	m.fields[name] = rec
	m.registerStateAction(name, "", 0, ActionCreated, rec)
	return nil
}

func (m *Manager) applyUpdate(name string, fields map[string]any) error {
	target, ok := m.fields[name]
	if !ok {
		return &Error{Code: ErrCodeFieldNotFound, Message: "field does not exist", Field: name}
	}
	switch node := target.(type) {
	case *Map:
		id, err := entityID(fields)
		if err != nil {
			return &Error{Code: ErrCodeMissingID, Message: "collection update has no id", Field: name}
		}
		rec, ok := node.Get(id)
		if !ok {
			return &Error{Code: ErrCodeEntityNotFound, Message: "entity not found", Field: name, ID: id}
		}
		return rec.merge(fields)
	case *Record:
		return node.merge(fields)
	default:
		return &Error{Code: ErrCodeFieldNotFound, Message: "field does not exist", Field: name}
	}
}

func (m *Manager) applyDelete(name string, fields map[string]any) error {
	target, ok := m.fields[name]
	if !ok {
		return &Error{Code: ErrCodeFieldNotFound, Message: "field does not exist", Field: name}
	}
	switch node := target.(type) {
	case *Map:
		id, err := entityID(fields)
		if err != nil {
			return &Error{Code: ErrCodeMissingID, Message: "collection delete has no id", Field: name}
		}
		deleted, err := node.Delete(id)
		if err != nil {
			return err
		}
		if !deleted {
			return &Error{Code: ErrCodeEntityNotFound, Message: "entity not found", Field: name, ID: id}
		}
		return nil
	case *Record:
		if err := m.checkWritable(name, ""); err != nil {
			return err
		}
		delete(m.fields, name)
		m.registerStateAction(name, "", 0, ActionDeleted, node)
		return nil
	default:
		return &Error{Code: ErrCodeFieldNotFound, Message: "field does not exist", Field: name}
	}
}

// checkWritable fails with a descriptive read-only violation naming the
// field and attribute unless a mutation window is open.
func (m *Manager) checkWritable(field, prop string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return &Error{
			Code:    ErrCodeReadOnly,
			Message: "state is read only",
			Field:   field,
			Prop:    prop,
		}
	}
	return nil
}

// registerStateAction is the canonical event-emission primitive. A single
// field write synthesizes up to four related event names plus the
// catch-all state:updated, all buffered for the next flush.
func (m *Manager) registerStateAction(field, prop string, id int64, action Action, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range eventNames(field, prop, id, action) {
		m.buffer = append(m.buffer, Event{
			Name:   name,
			Action: action,
			ID:     id,
			Value:  value,
			Seq:    m.clock.Next(),
		})
	}
	m.buffer = append(m.buffer, Event{
		Name:   EventStateUpdated,
		Action: ActionUpdated,
		Seq:    m.clock.Next(),
	})
}

func (m *Manager) emit(batch []Event) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink == nil {
		m.logger.Debug("flush dropped, no sink bound", "events", len(batch))
		return
	}
	sink(batch)
}

// Writer is the scoped write handle passed to mutation functions. It is
// valid only for the duration of one Mutate call.
type Writer struct {
	m      *Manager
	closed bool
}

func (w *Writer) guard() error {
	if w.closed {
		return &Error{Code: ErrCodeReadOnly, Message: "writer used outside its mutation window"}
	}
	return nil
}

// Record returns the root record for name.
func (w *Writer) Record(name string) (*Record, error) {
	if err := w.guard(); err != nil {
		return nil, err
	}
	return w.m.Record(name)
}

// Map returns the root collection for name.
func (w *Writer) Map(name string) (*Map, error) {
	if err := w.guard(); err != nil {
		return nil, err
	}
	return w.m.Map(name)
}

// Set writes one attribute on a root record.
func (w *Writer) Set(field, prop string, value any) error {
	if err := w.guard(); err != nil {
		return err
	}
	rec, err := w.m.Record(field)
	if err != nil {
		return err
	}
	return rec.Set(prop, value)
}

// ProcessUpdates applies a server-shaped update batch inside this window.
func (w *Writer) ProcessUpdates(updates []UpdateMessage) error {
	if err := w.guard(); err != nil {
		return err
	}
	return w.m.ProcessUpdates(updates)
}
