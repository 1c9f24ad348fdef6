package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mabhi256/dngc/internal/config"
	"github.com/mabhi256/dngc/utils"
)

const description = "Displays live statistics about garbage collections in a .NET application"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dngc",
	Short: "Live .NET garbage collection statistics",
	Long: description + `.

dngc attaches to a running .NET process through its diagnostics endpoint and
prints every collection as it happens: why it was triggered, which generation
was condemned, and how each heap's generations changed.`,
	SilenceErrors: true,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Name() == "install" || cmd.Name() == "version" || cmd.Name() == "help" ||
			cmd.Name() == cobra.ShellCompRequestCmd || cmd.Name() == cobra.ShellCompNoDescRequestCmd {
			return
		}

		if !isShellSupported() {
			return // Skip auto-setup for unsupported shells
		}

		if !completionsExist(cmd.Root()) {
			fmt.Println("🔧 First run detected, setting up dngc...")
			if installCompletions(cmd.Root()) == nil {
				fmt.Println("✅ Shell completions installed")
				fmt.Println("💡 Restart your shell to enable tab completion")
			} else {
				fmt.Println("⚠️  Auto-setup failed. Run 'dngc install' to try again.")
			}
		}
	},
}

// reportedError is a failure the presenter already showed to the operator.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error { return e.error }

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func GetRootCmd() *cobra.Command {
	return rootCmd
}

func printHeader(w io.Writer) {
	fmt.Fprintf(w, "dngc v%s\n%s\n", version, description)
}

// loadConfig merges the config file, environment and flags, then applies the
// optional PID argument.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		pid, err := parsePID(args[0])
		if err != nil {
			return nil, err
		}
		cfg.PID = pid
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().Bool("debug", false, "Write a JSON debug log, including every raw event")
	rootCmd.PersistentFlags().String("debug-log-file", "", "Debug log path (default dngc_debug_<timestamp>.log)")
	rootCmd.PersistentFlags().String("endpoint-dir", "", "Directory holding diagnostics sockets (default $TMPDIR)")

	rootCmd.RegisterFlagCompletionFunc("config", utils.CompleteFilesByExtension(".yml", ".yaml"))
	rootCmd.MarkPersistentFlagDirname("endpoint-dir")
}
