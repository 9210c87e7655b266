// Package harness runs form-builder scenarios: scripted sequences of saves,
// rebuilds and deletes against a fresh database, checked step by step and
// by final assertions.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	steps:
//	  - op: save
//	    form: contact            # handle naming the form across steps
//	    name: Contact us         # required when the handle is new
//	    session:                 # same format as session files
//	      fields:
//	        new1: {type: email, label: Email}
//	      actions:
//	        new2: {type: form.email, properties: {mappedFields: {target: new1}}}
//	    expect:
//	      fields: [email]
//	      columns: [submission_id, form_id, email]
//	  - op: rebuild
//	    form: contact
//	  - op: delete
//	    form: contact
//	    expect:
//	      error: NOT_FOUND
//	assertions:
//	  - type: columns
//	    form: contact
//	    expect: [submission_id, form_id, email]
//	  - type: mapped_field
//	    form: contact
//	    action: 1
//	    mapping: target
//	    field: email
//
// Within a save session a field entry may refer to a field saved in an
// earlier step as "@handle.alias"; the harness replaces it with that
// field's id before the save. The same syntax works in mappedFields.
//
// # Assertion Types
//
//   - columns: the form's results table has exactly these columns, in order
//   - table_exists: the form's results table exists
//   - table_absent: the form's results table does not exist
//   - form_count: exactly count forms are stored
//   - mapped_field: an action's mappedFields entry names the field with this alias
//
// # Deterministic Testing
//
// Each scenario runs in its own in-memory SQLite database, so form ids,
// table names and traces are identical across runs. RunWithGolden compares
// the trace with a golden file.
package harness
