package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stackctl/internal/supervisor"
)

func newPullCmd() *cobra.Command {
	flags := &stackFlags{}

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch the stack's images without starting anything",
		Long: `Pulls the images for both the Supabase data platform and the application
tier. Useful before an offline session or to pre-warm a fresh checkout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd, flags)
		},
	}

	addStackFlags(cmd, flags, "cpu")
	return cmd
}

func runPull(cmd *cobra.Command, flags *stackFlags) error {
	initLogging(flags.debug)

	cfg, variant, err := resolveStack(flags)
	if err != nil {
		return &exitCodeError{code: exitConfig, err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := supervisor.New(cfg.ProjectName, cfg.EnvFile, variant.ExtraEnv)

	for _, group := range []supervisor.Group{platformGroup(cfg, ""), applicationGroup(variant, "")} {
		fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(fmt.Sprintf("Pulling %s images...", group.Name)))
		if out, err := sup.Pull(ctx, group); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render(fmt.Sprintf("Pulling %s failed: %v", group.Name, err)))
			if out != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), out)
			}
			return &exitCodeError{code: exitProcess, err: err}
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Images up to date."))
	return nil
}
