package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/onlinefem/onlinefem/internal/geometry"
)

// meshFlags holds the flag values for the mesh command.
type meshFlags struct {
	dim    int
	out    string
	format string
}

// NewMeshCommand creates the "mesh" cobra command, which meshes an existing
// unrolled geo file.
func NewMeshCommand() *cobra.Command {
	flags := &meshFlags{}

	cmd := &cobra.Command{
		Use:   "mesh <file>",
		Short: "Mesh a geo_unrolled file and write the result",
		Long: `Open an unrolled geo file, generate a structured mesh up to --dim, and
write the mesh in the chosen format next to the input file (or into --out).

Examples:
  cadio mesh model.geo_unrolled
  cadio mesh --dim 1 --format vtk model.geo_unrolled`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMesh(cmd, args[0], flags)
		},
	}

	cmd.Flags().IntVar(&flags.dim, "dim", 2, "Mesh the model up to this dimension")
	cmd.Flags().StringVar(&flags.out, "out", "", "Output directory (default: the input file's directory)")
	cmd.Flags().StringVar(&flags.format, "format", geometry.FormatMSH, "Output format: msh or vtk")

	return cmd
}

func runMesh(cmd *cobra.Command, path string, flags *meshFlags) error {
	switch flags.format {
	case geometry.FormatMSH, geometry.FormatVTK:
	default:
		return NewCLIError(ExitUsageError, fmt.Sprintf("unknown mesh format %q", flags.format))
	}
	if flags.dim < 1 {
		return NewCLIError(ExitUsageError, "--dim must be at least 1")
	}

	out := flags.out
	if out == "" {
		out = filepath.Dir(path)
	}

	g, err := geometry.NewGeometry(modelTag(path), geometry.WithFile(path), geometry.WithOutputDir(out))
	if err != nil {
		return WrapCLIError(ExitIOError, "open model", err)
	}
	defer g.Close()

	verboseLog("meshing %s up to dimension %d", g.Tag(), flags.dim)
	if err := g.GenerateMesh(flags.dim); err != nil {
		return WrapCLIError(ExitGeometryError, "generate mesh", err)
	}

	written, err := g.Save(flags.format)
	if err != nil {
		return WrapCLIError(ExitIOError, "save mesh", err)
	}

	return printSummary(cmd, summarize(g, written))
}
