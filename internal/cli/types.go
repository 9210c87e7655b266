package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/formforge/internal/registry"
)

// TypeList is the result of types.
type TypeList struct {
	Fields  []*registry.Type `json:"fields"`
	Actions []*registry.Type `json:"actions"`
}

func (l TypeList) String() string {
	var b strings.Builder
	b.WriteString("Field types:")
	for _, t := range l.Fields {
		fmt.Fprintf(&b, "\n  %-12s %-16s %s", t.Name, t.Label, strings.Join(t.Attributes, ", "))
	}
	b.WriteString("\nAction types:")
	for _, t := range l.Actions {
		fmt.Fprintf(&b, "\n  %-20s %-6s %s", t.Name, t.Group, t.Label)
	}
	return b.String()
}

// NewTypesCommand creates the types command. It needs no database.
func NewTypesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List field and action types",
		Long: `List the available field and action types and the attributes each
field type accepts. Types from registry.files in the config are included.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			reg, err := loadRegistry(cfg.Registry.Files)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load type registry", err)
			}
			return rootOpts.formatter(cmd).Success(TypeList{
				Fields:  reg.FieldTypes(),
				Actions: reg.ActionTypes(),
			})
		},
	}
}
