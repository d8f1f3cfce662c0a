// The heapsim command runs a synthetic allocation workload on a region heap
// and lets its uncommit controller shrink the committed footprint while the
// workload idles.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "heapsim",
	Short: "heapsim exercises a region heap and its uncommit controller.",
	Long: `heapsim builds a region heap, starts the background uncommit ` +
		`controller, and drives a configurable allocation workload against ` +
		`them. The committed footprint can be watched through the built-in ` +
		`monitoring server, and reclaiming passes can be recorded to CSV ` +
		`or SQLite.`,
	Run: run,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func main() {
	// Values in a local .env file serve as defaults for the flags below.
	_ = godotenv.Load()

	Execute()
}
