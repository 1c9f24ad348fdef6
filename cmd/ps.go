package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mabhi256/dngc/internal/diag"
	"github.com/mabhi256/dngc/utils"
)

const commandWidth = 80

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List .NET processes that dngc can attach to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			return err
		}

		dir := cfg.EndpointDir
		if dir == "" {
			dir = diag.EndpointDir()
		}

		processes, err := diag.ListProcesses(dir)
		if err != nil {
			return fmt.Errorf("failed to list processes: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(processes) == 0 {
			fmt.Fprintln(out, utils.MutedStyle.Render("No .NET processes found in "+dir))
			return nil
		}

		fmt.Fprintln(out, utils.InfoStyle.Render(fmt.Sprintf("%8s  %-20s  %s", "PID", "NAME", "COMMAND")))
		for _, p := range processes {
			fmt.Fprintf(out, "%8d  %-20s  %s\n", p.PID,
				utils.TruncateString(utils.SanitizeString(p.Name), 20),
				utils.TruncateString(utils.SanitizeString(p.Cmdline), commandWidth))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(psCmd)
}
