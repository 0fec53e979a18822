package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stackctl/internal/supervisor"
)

func newDownCmd() *cobra.Command {
	flags := &stackFlags{}

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop the full stack",
		Long: `Stops the stack in reverse start order: the application tier first, then
the Supabase data platform. Pass the same --profile the stack was started
with so the compute variant's containers are included.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDown(cmd, flags)
		},
	}

	addStackFlags(cmd, flags, "cpu")
	return cmd
}

func runDown(cmd *cobra.Command, flags *stackFlags) error {
	initLogging(flags.debug)

	cfg, variant, err := resolveStack(flags)
	if err != nil {
		return &exitCodeError{code: exitConfig, err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := supervisor.New(cfg.ProjectName, cfg.EnvFile, variant.ExtraEnv)

	for _, group := range []supervisor.Group{applicationGroup(variant, ""), platformGroup(cfg, "")} {
		if out, err := sup.Down(ctx, group); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render(fmt.Sprintf("Stopping %s failed: %v", group.Name, err)))
			if out != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), out)
			}
			return &exitCodeError{code: exitProcess, err: err}
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Stack stopped."))
	return nil
}
