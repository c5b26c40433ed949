package journal

import (
	"context"
	"fmt"

	"github.com/roach88/reflow/internal/canonical"
	"github.com/roach88/reflow/internal/state"
)

// RecordDispatch inserts a dispatch record. Arguments are serialized to
// canonical JSON per RFC 8785 so identical dispatches journal
// identically. Duplicate tokens are silently ignored for idempotency.
func (j *Journal) RecordDispatch(ctx context.Context, token, mutation string, args []any) error {
	if args == nil {
		args = []any{}
	}
	argsJSON, err := canonical.Marshal(args)
	if err != nil {
		return fmt.Errorf("record dispatch: marshal args: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO dispatches (token, mutation, args)
		VALUES (?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`, token, mutation, string(argsJSON))
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

// RecordFlush inserts one flushed event batch in a single transaction,
// correlated to the dispatch token (empty for flushes outside a
// dispatch). Event values are serialized to canonical JSON; re-recording
// a seq already journaled is silently ignored.
func (j *Journal) RecordFlush(ctx context.Context, token string, events []state.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record flush: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		valueJSON, err := marshalEventValue(ev.Value)
		if err != nil {
			return fmt.Errorf("record flush: marshal value for %s: %w", ev.Name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (seq, token, name, action, entity_id, value)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(seq) DO NOTHING
		`, ev.Seq, token, ev.Name, string(ev.Action), ev.ID, valueJSON)
		if err != nil {
			return fmt.Errorf("record flush: insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record flush: commit: %w", err)
	}
	return nil
}

// marshalEventValue serializes an event value. The full-manager value of
// the load event is exported to plain maps first; nil values journal as
// JSON null.
func marshalEventValue(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	if m, ok := v.(*state.Manager); ok {
		v = m.Export()
	}
	data, err := canonical.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
