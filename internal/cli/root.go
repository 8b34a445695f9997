// Package cli implements the sparkhook command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sparkhook",
	Short: "Receive and verify webhook deliveries locally",
	Long: `sparkhook runs a small webhook listener on an unguessable path,
verifies the signature of every delivery and logs the events it accepts.

Get started:
  sparkhook listen --config sparkhook.yaml`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
