package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install shell completions",
	Run: func(cmd *cobra.Command, args []string) {
		if !isInPath() {
			printPathInstructions()
			return
		}

		if !isShellSupported() {
			fmt.Printf("❌ Shell completion not supported for: %s\n", detectShell())
			fmt.Println("Supported shells: bash, zsh, fish, powershell")
			return
		}

		if completionsExist(cmd.Root()) {
			fmt.Println("✅ Already configured!")
			return
		}

		fmt.Println("📦 Installing completions...")
		if err := installCompletions(cmd.Root()); err != nil {
			fmt.Printf("❌ Failed: %v\n", err)
		} else {
			fmt.Println("✅ Done! Restart your shell to enable tab completion.")
		}
	},
}

type completionConfig struct {
	dir         string
	file        string
	genFunc     func(io.Writer) error
	activateCmd string
}

func completionConfigs(root *cobra.Command, home string) map[string]completionConfig {
	bashDir := filepath.Join(home, ".local/share/bash-completion/completions")
	zshDir := filepath.Join(home, ".zsh/completions")

	return map[string]completionConfig{
		"bash": {
			dir:         bashDir,
			file:        "dngc",
			genFunc:     root.GenBashCompletion,
			activateCmd: "source " + filepath.Join(bashDir, "dngc"),
		},
		"zsh": {
			dir:         zshDir,
			file:        "_dngc",
			genFunc:     root.GenZshCompletion,
			activateCmd: fmt.Sprintf("fpath=(%s $fpath) && autoload -U compinit && compinit", zshDir),
		},
		"fish": {
			dir:         filepath.Join(home, ".config/fish/completions"),
			file:        "dngc.fish",
			genFunc:     func(w io.Writer) error { return root.GenFishCompletion(w, true) },
			activateCmd: "complete --do-complete=dngc",
		},
		"powershell": {
			dir:         home,
			file:        "dngc_completion.ps1",
			genFunc:     root.GenPowerShellCompletionWithDesc,
			activateCmd: ". " + filepath.Join(home, "dngc_completion.ps1"),
		},
	}
}

func completionsExist(root *cobra.Command) bool {
	home, _ := os.UserHomeDir()

	config, ok := completionConfigs(root, home)[detectShell()]
	if !ok {
		return false
	}
	_, err := os.Stat(filepath.Join(config.dir, config.file))
	return err == nil
}

func isShellSupported() bool {
	switch detectShell() {
	case "bash", "zsh", "fish", "powershell":
		return true
	}
	return false
}

func detectShell() string {
	if runtime.GOOS == "windows" {
		return "powershell"
	}

	shell := os.Getenv("SHELL")
	if shell == "" {
		return "bash"
	}
	return filepath.Base(shell)
}

func installCompletions(root *cobra.Command) error {
	home, _ := os.UserHomeDir()
	shell := detectShell()

	config, ok := completionConfigs(root, home)[shell]
	if !ok {
		return fmt.Errorf("unsupported shell: %s", shell)
	}

	if err := os.MkdirAll(config.dir, 0o755); err != nil {
		return err
	}

	file, err := os.Create(filepath.Join(config.dir, config.file))
	if err != nil {
		return err
	}
	defer file.Close()

	if err := config.genFunc(file); err != nil {
		return err
	}

	fmt.Printf("🔄 Running this command to enable auto-completions:\n")
	fmt.Printf("   %s\n", config.activateCmd)

	return nil
}

func isInPath() bool {
	execPath, err := os.Executable()
	if err != nil {
		return false
	}

	paths := strings.Split(os.Getenv("PATH"), string(os.PathListSeparator))
	return slices.Contains(paths, filepath.Dir(execPath))
}

func printPathInstructions() {
	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)

	fmt.Printf("❌ dngc not in PATH. Binary location: %s\n\n", execPath)

	if runtime.GOOS == "windows" {
		fmt.Printf("Add to PATH: %s\n", execDir)
	} else {
		fmt.Printf("Add to shell profile: export PATH=\"%s:$PATH\"\n", execDir)
		fmt.Printf("Or copy to: /usr/local/bin\n")
	}
}

func init() {
	rootCmd.AddCommand(installCmd)
}
