package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/journal"
	"github.com/roach88/reflow/internal/state"
)

const testDocument = `course:
  name: Algebra
cm:
  - id: 1
    name: Intro
    visible: true
`

const testUpdates = `- name: cm
  action: create
  fields:
    id: 5
    name: Forum
    visible: true
- name: course
  fields:
    name: Renamed
`

// runCommand executes the root command with args, capturing stdout and
// stderr.
func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateCommandValidDocument(t *testing.T) {
	docPath := writeFile(t, t.TempDir(), "state.yaml", testDocument)

	out, _, err := runCommand(t, "validate", docPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Document valid")
}

func TestValidateCommandWithUpdates(t *testing.T) {
	dir := t.TempDir()
	docPath := writeFile(t, dir, "state.yaml", testDocument)
	updatesPath := writeFile(t, dir, "updates.yaml", testUpdates)

	_, _, err := runCommand(t, "validate", docPath, "--updates", updatesPath)
	require.NoError(t, err)
}

func TestValidateCommandSchemaViolation(t *testing.T) {
	docPath := writeFile(t, t.TempDir(), "state.yaml", "cm:\n  - name: no-id\n")

	out, _, err := runCommand(t, "validate", docPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "SCHEMA_ERROR")
}

func TestValidateCommandMissingFile(t *testing.T) {
	_, _, err := runCommand(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateCommandJSONOutput(t *testing.T) {
	docPath := writeFile(t, t.TempDir(), "state.yaml", testDocument)

	out, _, err := runCommand(t, "validate", docPath, "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestValidateCommandRejectsBadFormat(t *testing.T) {
	docPath := writeFile(t, t.TempDir(), "state.yaml", testDocument)

	_, _, err := runCommand(t, "validate", docPath, "--format", "xml")
	require.Error(t, err)
}

func TestApplyCommandTextOutput(t *testing.T) {
	dir := t.TempDir()
	docPath := writeFile(t, dir, "state.yaml", testDocument)
	updatesPath := writeFile(t, dir, "updates.yaml", testUpdates)

	out, _, err := runCommand(t, "apply", docPath, updatesPath)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "apply_text", []byte(out))
}

func TestApplyCommandJSONOutput(t *testing.T) {
	dir := t.TempDir()
	docPath := writeFile(t, dir, "state.yaml", testDocument)
	updatesPath := writeFile(t, dir, "updates.yaml", testUpdates)

	out, _, err := runCommand(t, "apply", docPath, updatesPath, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   ApplyResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data.Events, 6)

	course, ok := resp.Data.State["course"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Renamed", course["name"])

	cm, ok := resp.Data.State["cm"].([]any)
	require.True(t, ok)
	assert.Len(t, cm, 2)
}

func TestApplyCommandRejectsBadUpdate(t *testing.T) {
	dir := t.TempDir()
	docPath := writeFile(t, dir, "state.yaml", testDocument)
	updatesPath := writeFile(t, dir, "updates.yaml", "- name: missing\n  fields:\n    x: 1\n")

	_, _, err := runCommand(t, "apply", docPath, updatesPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestApplyCommandRecordsJournal(t *testing.T) {
	dir := t.TempDir()
	docPath := writeFile(t, dir, "state.yaml", testDocument)
	updatesPath := writeFile(t, dir, "updates.yaml", testUpdates)
	journalPath := filepath.Join(dir, "trace.db")

	_, _, err := runCommand(t, "apply", docPath, updatesPath, "--journal", journalPath)
	require.NoError(t, err)

	j, err := journal.Open(journalPath)
	require.NoError(t, err)
	defer j.Close()

	events, err := j.Events(context.Background(), "")
	require.NoError(t, err)
	// state:loaded plus the five deduplicated update events.
	assert.Len(t, events, 6)
}

func TestReplayCommandTextOutput(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "trace.db")

	j, err := journal.Open(journalPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, j.RecordDispatch(ctx, "tok-1", "cmVisibility", []any{int64(5), true}))
	require.NoError(t, j.RecordFlush(ctx, "tok-1", []state.Event{
		{Name: "cm[5].visible:updated", Action: state.ActionUpdated, ID: 5, Seq: 2, Value: true},
		{Name: "state:updated", Action: state.ActionUpdated, Seq: 3},
	}))
	require.NoError(t, j.Close())

	out, _, err := runCommand(t, "replay", journalPath)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "replay_text", []byte(out))
}

func TestReplayCommandTokenFilter(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "trace.db")

	j, err := journal.Open(journalPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, j.RecordFlush(ctx, "tok-1", []state.Event{
		{Name: "a:updated", Action: state.ActionUpdated, Seq: 1},
	}))
	require.NoError(t, j.RecordFlush(ctx, "tok-2", []state.Event{
		{Name: "b:updated", Action: state.ActionUpdated, Seq: 2},
	}))
	require.NoError(t, j.Close())

	out, _, err := runCommand(t, "replay", journalPath, "--token", "tok-2")
	require.NoError(t, err)
	assert.Contains(t, out, "b:updated")
	assert.NotContains(t, out, "a:updated")
}

func TestReplayCommandMissingJournal(t *testing.T) {
	_, _, err := runCommand(t, "replay", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDiffCommandReportsMutations(t *testing.T) {
	dir := t.TempDir()
	livePath := writeFile(t, dir, "live.html", `<div class="a"><p>old</p></div>`)
	nextPath := writeFile(t, dir, "next.html", `<div class="b"><p>new</p></div>`)

	out, _, err := runCommand(t, "diff", livePath, nextPath)
	require.NoError(t, err)
	assert.Contains(t, out, `<div class="b"><p>new</p></div>`)
	assert.Contains(t, out, "2 mutation(s)")
}

func TestDiffCommandReportsDelegations(t *testing.T) {
	dir := t.TempDir()
	livePath := writeFile(t, dir, "live.html",
		`<div><section data-reflow-id="cmp-1"><p>keep</p></section></div>`)
	nextPath := writeFile(t, dir, "next.html",
		`<div><section><p>replace</p></section></div>`)

	out, _, err := runCommand(t, "diff", livePath, nextPath)
	require.NoError(t, err)
	assert.Contains(t, out, "delegated: cmp-1")
	// The delegated subtree is untouched.
	assert.Contains(t, out, "<p>keep</p>")
}

func TestDiffCommandIdenticalFragments(t *testing.T) {
	dir := t.TempDir()
	livePath := writeFile(t, dir, "live.html", `<div><p>same</p></div>`)
	nextPath := writeFile(t, dir, "next.html", `<div><p>same</p></div>`)

	out, _, err := runCommand(t, "diff", livePath, nextPath)
	require.NoError(t, err)
	assert.Contains(t, out, "0 mutation(s)")
}
