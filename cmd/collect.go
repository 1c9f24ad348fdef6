package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mabhi256/dngc/internal/config"
	"github.com/mabhi256/dngc/internal/diag"
	"github.com/mabhi256/dngc/internal/presenter"
	"github.com/mabhi256/dngc/internal/session"
)

var collectCmd = &cobra.Command{
	Use:   "collect <PID>",
	Short: "Trigger a full garbage collection in a .NET process",
	Long: `Collect asks the runtime for a heap collection and prints the resulting GC
events, then stops after the trigger window.

The client sequence number is forwarded to the runtime, which currently does
not use it to correlate the collection.

Examples:
  dngc collect 1234
  dngc collect 1234 --csn 7 -v`,
	Args:              pidArg,
	ValidArgsFunction: completePID,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newSessionEnv(cmd, args)
		if err != nil {
			return err
		}
		defer env.close()

		out := cmd.OutOrStdout()
		printHeader(out)
		fmt.Fprintln(out, "Sending command...")

		console := presenter.NewConsole(out, env.presenterOptions())
		ctrl := env.controller(console, session.After(env.cfg.TriggerWindow))
		if err := env.runConsole(ctrl, diag.HeapCollectProviders(env.cfg.ClientSequenceNumber)); err != nil {
			return err
		}

		fmt.Fprintln(out, "Full GC has been triggered")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)

	addSessionFlags(collectCmd)
	collectCmd.Flags().Int64("csn", 0, "Client sequence number passed with the request")
	collectCmd.Flags().Duration("trigger-window", config.DefaultTriggerWindow, "How long to listen before stopping")
}
