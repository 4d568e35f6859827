package cli

import (
	"github.com/spf13/cobra"

	"github.com/alnah/go-docpipe/internal/template"
)

// PolishCmd creates the polish command.
// The env parameter provides injectable dependencies for testing.
func PolishCmd(env *Env) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "polish <file>",
		Short: "Improve the wording of a Markdown document",
		Long: `Polish a Markdown document chunk by chunk: fix grammar, tighten wording
and keep the structure, links and code untouched.

The output is written as <name>_polished.md.`,
		Example: `  docpipe polish draft.md
  docpipe polish draft.md -l en -o final.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, env, &flags)
			if err != nil {
				return err
			}
			return runTranslateFile(cmd.Context(), env, cfg, args[0], flags.output, template.PolishName)
		},
	}

	flags.bind(cmd, "Output file (default: <input>_polished.md)")
	return cmd
}
