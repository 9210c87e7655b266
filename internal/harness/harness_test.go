package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(scenario.Steps))
		})
	}
}

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(doc))
	require.NoError(t, err)
	return s
}

func TestRun_ReportsMismatches(t *testing.T) {
	s := mustParse(t, `
name: mismatches
description: every expectation is wrong
steps:
  - op: save
    form: f
    name: Feedback
    session:
      fields:
        new1: {type: text, label: Comment}
    expect:
      fields: [remark]
      columns: [submission_id, form_id]
  - op: rebuild
    form: f
    expect:
      error: NOT_FOUND
assertions:
  - type: form_count
    count: 2
  - type: table_absent
    form: f
  - type: columns
    form: f
    expect: [submission_id]
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "fields [comment], expected [remark]")
	assert.Contains(t, result.Errors[1], "columns [submission_id form_id comment]")
	assert.Contains(t, result.Errors[2], "outcome ok, expected NOT_FOUND")
	assert.Contains(t, result.Errors[3], "expected 2 forms, got 1")
	assert.Contains(t, result.Errors[4], "still exists")
	assert.Contains(t, result.Errors[5], "assertion 2 (columns)")
}

func TestRun_ReferencesAcrossForms(t *testing.T) {
	s := mustParse(t, `
name: cross_form
description: a mapping may not name another form's field
steps:
  - op: save
    form: a
    name: First
    session:
      fields:
        new1: {type: email, label: Email}
  - op: save
    form: b
    name: Second
    session:
      fields:
        new1: {type: text, label: Name}
      actions:
        new2:
          type: form.email
          properties:
            mappedFields: {target: "@a.email"}
    expect:
      error: UNRESOLVED_REFERENCE
assertions:
  - type: form_count
    count: 1
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "UNRESOLVED_REFERENCE", result.Trace[1].Outcome)
	assert.Empty(t, result.Trace[1].Table)
}

func TestRun_BrokenScenarios(t *testing.T) {
	tests := map[string]struct {
		steps string
		want  string
	}{
		"unknown handle in reference": {
			steps: `
  - op: save
    form: a
    name: A
    session:
      fields:
        new1: {id: "@nope.email", type: text}`,
			want: `unknown form "nope"`,
		},
		"unknown alias in reference": {
			steps: `
  - op: save
    form: a
    name: A
  - op: save
    form: a
    session:
      fields:
        x: {id: "@a.email", type: text}`,
			want: `form "a" has no field "email"`,
		},
		"malformed reference": {
			steps: `
  - op: save
    form: a
    name: A
    session:
      fields:
        new1: {id: "@a", type: text}`,
			want: "malformed reference @a",
		},
		"rebuild before save": {
			steps: `
  - op: rebuild
    form: a`,
			want: `unknown form "a"`,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := mustParse(t, "name: broken\ndescription: broken\nsteps:"+tt.steps+"\n")
			_, err := Run(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseScenario_Invalid(t *testing.T) {
	const header = "name: s\ndescription: d\n"
	tests := map[string]struct {
		doc  string
		want string
	}{
		"missing name": {
			doc:  "description: d\nsteps: [{op: rebuild, form: a}]\n",
			want: "name is required",
		},
		"missing description": {
			doc:  "name: s\nsteps: [{op: rebuild, form: a}]\n",
			want: "description is required",
		},
		"no steps": {
			doc:  header,
			want: "steps list is required",
		},
		"typo in key": {
			doc:  header + "steps: [{op: rebuild, form: a}]\nassertion: []\n",
			want: "field assertion not found",
		},
		"unknown op": {
			doc:  header + "steps: [{op: publish, form: a}]\n",
			want: `unknown op "publish"`,
		},
		"missing form": {
			doc:  header + "steps: [{op: save, name: A}]\n",
			want: "form is required",
		},
		"first save without name": {
			doc:  header + "steps: [{op: save, form: a}]\n",
			want: `name is required for the first save of "a"`,
		},
		"session on rebuild": {
			doc:  header + "steps: [{op: rebuild, form: a, session: {fields: {}}}]\n",
			want: "session is only valid for save",
		},
		"bad session": {
			doc:  header + "steps: [{op: save, form: a, name: A, session: {widgets: {}}}]\n",
			want: `unknown key "widgets"`,
		},
		"unknown assertion": {
			doc:  header + "steps: [{op: rebuild, form: a}]\nassertions: [{type: rows}]\n",
			want: `unknown assertion type "rows"`,
		},
		"incomplete mapped_field": {
			doc:  header + "steps: [{op: rebuild, form: a}]\nassertions: [{type: mapped_field, form: a, mapping: to}]\n",
			want: "form, action, mapping and field are required",
		},
		"columns without expect": {
			doc:  header + "steps: [{op: rebuild, form: a}]\nassertions: [{type: columns, form: a}]\n",
			want: "form and expect are required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to read scenario file"))
}

func TestTraceSnapshot_Marshal(t *testing.T) {
	snap := TraceSnapshot{Scenario: "s", Trace: []TraceEvent{{Step: 1, Op: OpDelete, Form: "a", Outcome: OutcomeNotFound}}}
	data, err := snap.Marshal()
	require.NoError(t, err)
	assert.Equal(t, `{
  "scenario": "s",
  "trace": [
    {
      "step": 1,
      "op": "delete",
      "form": "a",
      "outcome": "NOT_FOUND"
    }
  ]
}
`, string(data))
}
