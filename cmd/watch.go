package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mabhi256/dngc/internal/diag"
	"github.com/mabhi256/dngc/internal/presenter"
	"github.com/mabhi256/dngc/internal/session"
	"github.com/mabhi256/dngc/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <PID>",
	Short: "Print garbage collections of a .NET process as they happen",
	Long: `Watch streams GC events from a running .NET process and prints, for every collection:
- the collection number, condemned generation and trigger reason
- the condemn decision and conditions reported by heap 0
- the pause mode, mechanisms and memory pressure of the collection

With -v each heap also prints its per-generation table (budget, sizes,
promoted bytes, fragmentation). Press Enter or Ctrl+C to stop.

Examples:
  dngc watch <TAB>              # Tab completion with PID and process name
  dngc watch 1234               # Monitor process 1234
  dngc watch 1234 -v --human    # Per-heap tables with 1.5M style sizes
  dngc watch 1234 --tui         # Full-screen view with generation charts`,
	Args:              pidArg,
	ValidArgsFunction: completePID,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newSessionEnv(cmd, args)
		if err != nil {
			return err
		}
		defer env.close()

		if env.cfg.TUI {
			return watchTUI(env)
		}

		out := cmd.OutOrStdout()
		printHeader(out)
		if isatty.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(out, "Press Enter to stop")
		}

		console := presenter.NewConsole(out, env.presenterOptions())
		ctrl := env.controller(console, session.Keypress(os.Stdin))
		return env.runConsole(ctrl, diag.GCProviders())
	},
}

// watchTUI runs the session behind the full-screen view. Quitting the view
// stops the session; a session that ends on its own leaves the view open.
func watchTUI(env *sessionEnv) error {
	prog := tui.New(env.cfg.String(), env.presenterOptions())
	ctrl := env.controller(prog.Subscriber(), prog.Trigger())

	go func() {
		if err := ctrl.Start(env.ctx, env.cfg.PID, diag.GCProviders()); err != nil {
			prog.SessionEnded(err)
			return
		}
		prog.SessionEnded(ctrl.Wait())
	}()

	if err := prog.Run(); err != nil {
		ctrl.Stop()
		return err
	}

	ctrl.Stop()
	return ctrl.Wait()
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addSessionFlags(watchCmd)
	watchCmd.Flags().Bool("tui", false, "Full-screen view with per-generation charts")
}
