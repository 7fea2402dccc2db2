package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/propgen/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	config    string
	verbose   bool
	logFormat string
}

func main() {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		errors.DisableColors()
	}
	flags := &globalFlags{}
	if err := newRootCmd(flags).Execute(); err != nil {
		printError(os.Stderr, err, flags.logFormat)
		os.Exit(1)
	}
}

// printError reports a failed command. JSON log output gets one JSON object
// per error so tooling can parse it.
func printError(w io.Writer, err error, logFormat string) {
	var perr *errors.Error
	switch {
	case errors.As(err, &perr) && logFormat == "json":
		fmt.Fprintln(w, perr.FormatJSON())
	case errors.As(err, &perr):
		fmt.Fprintln(w, perr.Format())
	case logFormat == "json":
		fmt.Fprintln(w, (&errors.Error{Message: err.Error()}).FormatJSON())
	default:
		fmt.Fprintf(w, "\033[31mError:\033[0m %s\n", err)
	}
}

func newRootCmd(flags *globalFlags) *cobra.Command {

	rootCmd := &cobra.Command{
		Use:   "propgen",
		Short: "Generate keyed-property accessors for Go types",
		Long: `propgen generates getter/setter pairs and registered storage keys for
struct fields marked with a //propgen:property directive.

Each owning type gets one <Type>_props_gen.go file in its package. Output is
deterministic: running propgen twice on unchanged input produces identical
files.

  //propgen:property
  label string

  //propgen:property[bool] default=true
  isValid bool`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to propgen.yaml or its directory (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format: text or json (default from propgen.yaml)")

	rootCmd.AddCommand(
		genCmd(flags),
		watchCmd(flags),
		snapshotCmd(flags),
		versionCmd(),
	)

	return rootCmd
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
