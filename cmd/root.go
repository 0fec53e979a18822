package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stackctl",
	Short: "Launch and manage the local AI service stack",
	Long: `stackctl starts the local AI stack as one compose project: the Supabase
data platform first, then the application tier (n8n, Open WebUI, Flowise,
SearXNG, Neo4j, Langfuse and the LLM runtime), then the one-shot bootstrap
jobs once both tiers answer their readiness checks.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid flags, failed startups)
	SilenceUsage: true,
}

// Exit codes for the up command, one per failure class so wrapper scripts
// can branch without parsing output.
const (
	exitConfig    = 2
	exitReadiness = 3
	exitProcess   = 4
	exitRestore   = 5
)

// exitCodeError carries a process exit code through cobra's error path.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }

func (e *exitCodeError) Unwrap() error { return e.err }

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "stackctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just pick the exit code
		var coded *exitCodeError
		if errors.As(err, &coded) {
			os.Exit(coded.code)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newUpCmd())
	rootCmd.AddCommand(newDownCmd())
	rootCmd.AddCommand(newPullCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
