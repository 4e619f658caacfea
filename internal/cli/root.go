// Package cli implements the cadio command line tool. Each subcommand
// (generate, info, mesh) lives in its own file; this file defines the root
// command, the global flags, and the error-to-exit-code mapping.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is the cadio release version.
const Version = "0.1.0"

// Global flags bound to the root command's persistent flag set.
var (
	jsonOutput bool
	verbose    bool
)

// NewRootCommand creates the cadio root command with all subcommands
// registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cadio",
		Short: "Planar CAD geometry builder and mesher",
		Long: `cadio builds planar CAD models with periodic boundary constraints,
generates structured triangular meshes, and converts between the unrolled
geo, MSH, and legacy VTK formats.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (%s)", Version, runtime.Version()),
	}
	rootCmd.SetVersionTemplate("cadio {{.Version}}\n")

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(NewGenerateCommand())
	rootCmd.AddCommand(NewInfoCommand())
	rootCmd.AddCommand(NewMeshCommand())

	return rootCmd
}

// Execute runs the root command and exits the process with the error's code.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *CLIError
		if errors.As(err, &cliErr) {
			printError(cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}
		printError(err.Error(), nil)
		os.Exit(int(ExitGeneralError))
	}
}

// printError writes the error to stderr in text or JSON form. Stdout stays
// reserved for successful command output.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{"message": message},
		}
		if underlying != nil {
			errObj["error"].(map[string]interface{})["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}
	if underlying != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	}
}

// verboseLog prints to stderr only when --verbose is set.
func verboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}
