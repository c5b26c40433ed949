package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/reflow/internal/state"
)

// Dispatch is one journaled mutation dispatch.
type Dispatch struct {
	Token    string
	Mutation string
	Args     []any
}

// EventRecord is one journaled state change event.
type EventRecord struct {
	Seq    int64
	Token  string
	Name   string
	Action string
	ID     int64
	Value  json.RawMessage
}

// Trace is a dispatch together with the events it flushed.
type Trace struct {
	Dispatch Dispatch
	Events   []EventRecord
}

// Dispatches returns every journaled dispatch in dispatch order.
// Returns an empty slice (not nil) when the journal is empty.
func (j *Journal) Dispatches(ctx context.Context) ([]Dispatch, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT token, mutation, args
		FROM dispatches
		ORDER BY ord ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	dispatches := []Dispatch{}
	for rows.Next() {
		var d Dispatch
		var argsJSON string
		if err := rows.Scan(&d.Token, &d.Mutation, &argsJSON); err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		if err := json.Unmarshal([]byte(argsJSON), &d.Args); err != nil {
			return nil, fmt.Errorf("decode dispatch args: %w", err)
		}
		dispatches = append(dispatches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return dispatches, nil
}

// Events returns journaled events ordered by seq ascending, so read-back
// is deterministic across runs. An empty token returns every event;
// otherwise only the events of that dispatch.
func (j *Journal) Events(ctx context.Context, token string) ([]EventRecord, error) {
	query := `
		SELECT seq, token, name, action, entity_id, value
		FROM events
		ORDER BY seq ASC
	`
	args := []any{}
	if token != "" {
		query = `
			SELECT seq, token, name, action, entity_id, value
			FROM events
			WHERE token = ?
			ORDER BY seq ASC
		`
		args = append(args, token)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		var ev EventRecord
		var value string
		if err := rows.Scan(&ev.Seq, &ev.Token, &ev.Name, &ev.Action, &ev.ID, &value); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Value = json.RawMessage(value)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Traces returns every dispatch with its correlated events, in dispatch
// order. Events flushed outside any dispatch are not included; read them
// with Events(ctx, "").
func (j *Journal) Traces(ctx context.Context) ([]Trace, error) {
	dispatches, err := j.Dispatches(ctx)
	if err != nil {
		return nil, err
	}

	traces := make([]Trace, 0, len(dispatches))
	for _, d := range dispatches {
		events, err := j.Events(ctx, d.Token)
		if err != nil {
			return nil, err
		}
		traces = append(traces, Trace{Dispatch: d, Events: events})
	}
	return traces, nil
}

// LastSeq returns the highest journaled event seq, 0 when empty. A
// manager resuming a journaled session seeds its clock past this value.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM events
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}

// Replay walks every journaled event in seq order, invoking fn for each.
// Stops at the first error from fn.
func (j *Journal) Replay(ctx context.Context, fn func(EventRecord) error) error {
	events, err := j.Events(ctx, "")
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := fn(ev); err != nil {
			return fmt.Errorf("replay seq %d: %w", ev.Seq, err)
		}
	}
	return nil
}

// ResumeClock builds a logical clock positioned after the last journaled
// event, so a resumed session's new events never collide with recorded
// seqs.
func (j *Journal) ResumeClock(ctx context.Context) (*state.Clock, error) {
	seq, err := j.LastSeq(ctx)
	if err != nil {
		return nil, err
	}
	return state.NewClockAt(seq), nil
}
