package commands

import (
	"bytes"
	"io"
	"os"
	"regexp"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

func init() {
	rootCmd.AddCommand(docsCmd)
}

var docsCmd = &cobra.Command{
	Use:          "docs",
	Short:        "Generate markdown documentation for all commands to stdout",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// No config needed
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return genDocs(rootCmd, os.Stdout)
	},
}

var docsTrailer = regexp.MustCompile(`(?s)### (SEE ALSO|Options inherited from parent commands).*`)

// genDocs writes the markdown of cmd and its subcommands, without the
// repeated trailer sections
func genDocs(cmd *cobra.Command, w io.Writer) error {
	if cmd.Name() == "completion" || cmd.Hidden {
		return nil
	}
	b := bytes.NewBuffer(nil)
	cmd.DisableAutoGenTag = true
	if err := doc.GenMarkdown(cmd, b); err != nil {
		return err
	}
	if _, err := w.Write(docsTrailer.ReplaceAll(b.Bytes(), nil)); err != nil {
		return err
	}
	for _, c := range cmd.Commands() {
		if err := genDocs(c, w); err != nil {
			return err
		}
	}
	return nil
}
