package cli

import (
	"context"
	"io"
)

// Execute runs the CLI with args, reports a failure in the selected output
// format and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	formatter := &OutputFormatter{Format: "text", Writer: stderr}
	if f := cmd.PersistentFlags().Lookup("format"); f != nil && f.Value.String() == "json" {
		formatter = &OutputFormatter{Format: "json", Writer: stdout}
	}
	return formatter.Fail(err)
}
