package utils

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// CompleteFilesByExtension suggests directories and files ending in one of extensions
func CompleteFilesByExtension(extensions ...string) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		dir, prefix := filepath.Split(toComplete)
		readDir := dir
		if readDir == "" {
			readDir = "."
		}

		entries, err := os.ReadDir(readDir)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		var suggestions []string
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") || !strings.HasPrefix(name, prefix) {
				continue
			}

			switch {
			case entry.IsDir():
				suggestions = append(suggestions, dir+name+"/")
			case slices.ContainsFunc(extensions, func(ext string) bool { return strings.HasSuffix(name, ext) }):
				suggestions = append(suggestions, dir+name)
			}
		}

		slices.Sort(suggestions)
		return suggestions, cobra.ShellCompDirectiveNoFileComp
	}
}
