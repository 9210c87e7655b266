package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formforge/internal/session"
)

const contactSession = `
fields:
  new1: {type: email, label: Email, isRequired: true}
  new2: {type: text, label: Name}
  new3: {type: button, label: Send}
actions:
  new4:
    type: form.email
    name: Notify
    properties:
      mappedFields: {target: new1}
`

type cliEnv struct {
	t          *testing.T
	dir        string
	config     string
	sessionDir string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{t: t, dir: dir, sessionDir: filepath.Join(dir, "sessions")}
	env.config = env.write("formforge.yaml", fmt.Sprintf(`
database:
  driver: sqlite3
  dsn: %s
session:
  backend: file
  dir: %s
log:
  level: error
`, filepath.Join(dir, "forms.db"), env.sessionDir))
	return env
}

func (e *cliEnv) write(name, content string) string {
	e.t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(e.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the CLI and returns the exit code, stdout and stderr.
func (e *cliEnv) run(args ...string) (int, string, string) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", e.config}, args...)
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func (e *cliEnv) runJSON(args ...string) (int, jsonResponse) {
	e.t.Helper()
	code, stdout, stderr := e.run(append([]string{"--format", "json"}, args...)...)
	var resp jsonResponse
	require.NoError(e.t, json.Unmarshal([]byte(stdout), &resp), "stdout=%q stderr=%q", stdout, stderr)
	return code, resp
}

func (e *cliEnv) createContact() FormSummary {
	e.t.Helper()
	file := e.write("contact.yaml", contactSession)
	code, resp := e.runJSON("save", "--name", "Contact us", "--file", file)
	require.Equal(e.t, ExitSuccess, code, "%+v", resp.Error)

	var summary FormSummary
	require.NoError(e.t, json.Unmarshal(resp.Data, &summary))
	return summary
}

func TestSave_CreateFromFile(t *testing.T) {
	env := newCLIEnv(t)
	summary := env.createContact()

	assert.Equal(t, "contactus", summary.Alias)
	assert.Equal(t, []string{"email", "name", "send"}, summary.Fields)
	assert.Equal(t, 1, summary.Actions)
	assert.Equal(t, fmt.Sprintf("form_results_%d_contactus", summary.ID), summary.Table)

	code, stdout, _ := env.run("columns", strconv.FormatInt(summary.ID, 10))
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, summary.Table)
	assert.Regexp(t, `submission_id\s+integer\s+NOT NULL`, stdout)
	assert.Regexp(t, `email\s+text\s+NULL`, stdout)
	assert.NotContains(t, stdout, "send")
}

func TestSave_ExportRoundTrip(t *testing.T) {
	env := newCLIEnv(t)
	summary := env.createContact()
	id := strconv.FormatInt(summary.ID, 10)

	code, exported, _ := env.run("export", id)
	require.Equal(t, ExitSuccess, code)
	snap, err := session.DecodeYAML([]byte(exported))
	require.NoError(t, err)
	require.Len(t, snap.Fields, 3)

	// Rename one field and save the export back.
	snap.Fields[1].Props["label"] = "Full name"
	data, err := session.EncodeYAML(snap)
	require.NoError(t, err)
	file := env.write("edited.yaml", string(data))

	code, resp := env.runJSON("save", id, "--file", file, "--description", "Updated")
	require.Equal(t, ExitSuccess, code, "%+v", resp.Error)
	var updated FormSummary
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	assert.Equal(t, summary.ID, updated.ID)
	assert.Equal(t, "Contact us", updated.Name)
	// Aliases are kept on update.
	assert.Equal(t, []string{"email", "name", "send"}, updated.Fields)
}

func TestSave_FromStoredSession(t *testing.T) {
	env := newCLIEnv(t)
	store, err := session.NewFileStore(env.sessionDir)
	require.NoError(t, err)
	snap, err := session.DecodeYAML([]byte(contactSession))
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), "draft", snap))

	code, resp := env.runJSON("save", "--name", "Stored", "--session", "draft")
	require.Equal(t, ExitSuccess, code, "%+v", resp.Error)

	_, err = store.Read(context.Background(), "draft")
	assert.ErrorIs(t, err, session.ErrNotFound)

	code, resp = env.runJSON("save", "--name", "Again", "--session", "draft")
	assert.Equal(t, ExitFailure, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestSave_Failures(t *testing.T) {
	env := newCLIEnv(t)

	broken := env.write("broken.yaml", `
actions:
  new1:
    type: form.email
    properties:
      mappedFields: {target: new7}
`)
	code, resp := env.runJSON("save", "--name", "Broken", "--file", broken)
	assert.Equal(t, ExitFailure, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeReference, resp.Error.Code)

	code, _, stderr := env.run("save", "--file", broken)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "--name is required")

	code, _, stderr = env.run("save", "5")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "--file or --session is required")

	code, _, _ = env.run("save", "abc", "--file", broken)
	assert.Equal(t, ExitCommandError, code)

	code, _, stderr = env.run("save", "--name", "X", "--file", filepath.Join(env.dir, "missing.yaml"))
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "failed to read session file")

	code, resp = env.runJSON("show", "99")
	assert.Equal(t, ExitFailure, code)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)

	code, stdout, _ := env.run("list")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "no forms\n", stdout)
}

func TestDeleteAndRebuild(t *testing.T) {
	env := newCLIEnv(t)
	first := env.createContact()
	second := env.createContact()

	code, stdout, _ := env.run("list")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Contact us")

	code, _, stderr := env.run("rebuild", strconv.FormatInt(first.ID, 10))
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "--yes")

	code, resp := env.runJSON("rebuild", strconv.FormatInt(first.ID, 10), "--yes")
	require.Equal(t, ExitSuccess, code)
	var rebuilt RebuildResult
	require.NoError(t, json.Unmarshal(resp.Data, &rebuilt))
	assert.True(t, rebuilt.Dropped)
	assert.Equal(t, first.Table, rebuilt.Table)

	code, resp = env.runJSON("delete", strconv.FormatInt(second.ID, 10), strconv.FormatInt(first.ID, 10), "404")
	require.Equal(t, ExitSuccess, code)
	var deleted DeleteResult
	require.NoError(t, json.Unmarshal(resp.Data, &deleted))
	assert.Equal(t, []int64{first.ID, second.ID}, deleted.Deleted)

	code, stdout, _ = env.run("delete", strconv.FormatInt(first.ID, 10))
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "nothing deleted\n", stdout)
}

func TestTypesCommand(t *testing.T) {
	env := newCLIEnv(t)
	extra := env.write("extra.cue", `fields: signature: {label: "Signature", attributes: ["label", "alias", "isRequired"]}`)
	cfg := env.write("with-types.yaml", fmt.Sprintf("registry:\n  files: [%s]\n", extra))

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"--config", cfg, "types"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.Contains(t, stdout.String(), "Field types:")
	assert.Regexp(t, `signature\s+Signature`, stdout.String())
	assert.Contains(t, stdout.String(), "form.email")

	bad := env.write("bad.cue", `fields: broken: {label: ""}`)
	cfg = env.write("bad-types.yaml", fmt.Sprintf("registry:\n  files: [%s]\n", bad))
	stdout.Reset()
	stderr.Reset()
	code = Execute(context.Background(), []string{"--config", cfg, "types"}, &stdout, &stderr)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr.String(), "failed to load type registry")
}

func TestServe(t *testing.T) {
	env := newCLIEnv(t)
	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text", Config: env.config},
		Addr:        "127.0.0.1:0",
		ready:       ready,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
