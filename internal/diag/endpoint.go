package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

const endpointPrefix = "dotnet-diagnostic-"

var ErrNoDiagnosticsEndpoint = errors.New("no diagnostics endpoint found")

// EndpointDir is where runtimes create their diagnostics sockets.
func EndpointDir() string {
	return os.TempDir()
}

// FindEndpoint returns the newest diagnostics socket of pid inside dir.
func FindEndpoint(dir string, pid int) (string, error) {
	pattern := filepath.Join(dir, fmt.Sprintf("%s%d-*-socket", endpointPrefix, pid))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", errors.Wrap(err, "glob diagnostics endpoints")
	}

	var newest string
	var newestMod int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest, newestMod = m, mod
		}
	}

	if newest == "" {
		return "", errors.Wrapf(ErrNoDiagnosticsEndpoint, "pid %d in %s", pid, dir)
	}
	return newest, nil
}

// endpointPID extracts the pid from a socket name like dotnet-diagnostic-1234-5678-socket.
func endpointPID(path string) (int, bool) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, endpointPrefix) || !strings.HasSuffix(name, "-socket") {
		return 0, false
	}
	parts := strings.SplitN(strings.TrimPrefix(name, endpointPrefix), "-", 2)
	pid, err := strconv.Atoi(parts[0])
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// DotnetProcess is a live process exposing a diagnostics endpoint.
type DotnetProcess struct {
	PID      int
	Name     string
	Cmdline  string
	Endpoint string
}

func (p *DotnetProcess) String() string {
	if p.Cmdline != "" {
		return fmt.Sprintf("%d %s", p.PID, p.Cmdline)
	}
	return fmt.Sprintf("%d %s", p.PID, p.Name)
}

// ListProcesses finds runtimes with a diagnostics endpoint in dir. Stale sockets
// left behind by exited processes are skipped.
func ListProcesses(dir string) ([]*DotnetProcess, error) {
	matches, err := filepath.Glob(filepath.Join(dir, endpointPrefix+"*-socket"))
	if err != nil {
		return nil, errors.Wrap(err, "glob diagnostics endpoints")
	}

	seen := make(map[int]bool)
	var processes []*DotnetProcess
	for _, m := range matches {
		pid, ok := endpointPID(m)
		if !ok || seen[pid] {
			continue
		}
		seen[pid] = true

		alive, err := process.PidExists(int32(pid))
		if err != nil || !alive {
			continue
		}

		endpoint, err := FindEndpoint(dir, pid)
		if err != nil {
			continue
		}

		dp := &DotnetProcess{PID: pid, Endpoint: endpoint}
		if proc, err := process.NewProcess(int32(pid)); err == nil {
			dp.Name, _ = proc.Name()
			dp.Cmdline, _ = proc.Cmdline()
		}
		processes = append(processes, dp)
	}

	slices.SortFunc(processes, func(a, b *DotnetProcess) int {
		return a.PID - b.PID
	})
	return processes, nil
}
