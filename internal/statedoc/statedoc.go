// Package statedoc loads state documents and update batches from YAML,
// validated against an embedded CUE schema before they reach the state
// manager. Schema violations carry the offending path so authoring
// mistakes point at the exact field.
package statedoc

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/reflow/internal/state"
)

//go:embed schema.cue
var schemaCUE string

// Error code constants for document loading.
const (
	ErrCodeRead   = "READ_ERROR"   // File read failed
	ErrCodeParse  = "PARSE_ERROR"  // YAML parse failed
	ErrCodeSchema = "SCHEMA_ERROR" // CUE schema violation
)

// Error is a document loading failure.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaVal  cue.Value
	schemaErr  error
)

func schema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaVal = schemaCtx.CompileString(schemaCUE)
		if err := schemaVal.Err(); err != nil {
			schemaErr = fmt.Errorf("compile embedded schema: %w", err)
		}
	})
	return schemaCtx, schemaVal, schemaErr
}

// validate unifies data with the named schema definition and reports the
// first violation with its path.
func validate(data any, definition string) error {
	ctx, root, err := schema()
	if err != nil {
		return &Error{Code: ErrCodeSchema, Message: err.Error()}
	}

	def := root.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return &Error{Code: ErrCodeSchema, Message: fmt.Sprintf("unknown schema definition %s", definition)}
	}

	value := ctx.Encode(data)
	if err := value.Err(); err != nil {
		return &Error{Code: ErrCodeSchema, Message: fmt.Sprintf("encode document: %v", err)}
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &Error{Code: ErrCodeSchema, Message: cueerrors.Details(err, nil)}
	}
	return nil
}

// ParseDocument decodes and validates a YAML state document.
func ParseDocument(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Code: ErrCodeParse, Message: err.Error()}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := validate(doc, "#StateDocument"); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadDocument reads and parses a YAML state document from path.
func LoadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeRead, Message: err.Error()}
	}
	return ParseDocument(data)
}

// ParseUpdates decodes and validates a YAML update batch.
func ParseUpdates(data []byte) ([]state.UpdateMessage, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Code: ErrCodeParse, Message: err.Error()}
	}
	if raw == nil {
		return []state.UpdateMessage{}, nil
	}
	if err := validate(raw, "#UpdateBatch"); err != nil {
		return nil, err
	}

	var updates []state.UpdateMessage
	if err := yaml.Unmarshal(data, &updates); err != nil {
		return nil, &Error{Code: ErrCodeParse, Message: err.Error()}
	}
	return updates, nil
}

// LoadUpdates reads and parses a YAML update batch from path.
func LoadUpdates(path string) ([]state.UpdateMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeRead, Message: err.Error()}
	}
	return ParseUpdates(data)
}
