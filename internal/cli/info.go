package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onlinefem/onlinefem/internal/geometry"
)

// NewInfoCommand creates the "info" cobra command, which inspects an
// unrolled geo file.
func NewInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Show entity counts and physical names of a geo_unrolled file",
		Long: `Open an unrolled geo file and print its entity counts, periodic
constraints, and named physical groups.

Examples:
  cadio info /tmp/cadio/geom_a.geo_unrolled
  cadio info --json model.geo_unrolled`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, args[0])
		},
	}
}

func modelTag(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runInfo(cmd *cobra.Command, path string) error {
	g, err := geometry.NewGeometry(modelTag(path), geometry.WithFile(path))
	if err != nil {
		return WrapCLIError(ExitIOError, "open model", err)
	}
	defer g.Close()

	return printSummary(cmd, summarize(g, ""))
}
