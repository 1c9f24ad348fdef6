package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleEnumPtr(t *testing.T) {
	type metric int
	m := metric(0)
	CycleEnumPtr(&m, 1, 3)
	assert.Equal(t, metric(1), m)
	CycleEnumPtr(&m, -1, 3)
	CycleEnumPtr(&m, -1, 3)
	assert.Equal(t, metric(3), m)
	CycleEnumPtr(&m, 1, 3)
	assert.Equal(t, metric(0), m)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250.0ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h 1m", FormatDuration(61*time.Minute))
}

func TestStringHelpers(t *testing.T) {
	assert.Equal(t, "dotnet", TruncateString("dotnet", 10))
	assert.Equal(t, "dotn...", TruncateString("dotnet run", 7))
	assert.Equal(t, "dotnet app.dll ", SanitizeString("dotnet\x00app.dll\x00"))
}

func TestCompleteFilesByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"config.yml", "other.json", "config.yaml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "conf.d"), 0o700))

	got, directive := CompleteFilesByExtension(".yml", ".yaml")(&cobra.Command{}, nil, dir+"/conf")
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
	assert.Equal(t, []string{dir + "/conf.d/", dir + "/config.yaml", dir + "/config.yml"}, got)
}
