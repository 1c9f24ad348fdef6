package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mabhi256/dngc/internal/config"
	"github.com/mabhi256/dngc/internal/diag"
	"github.com/mabhi256/dngc/internal/logging"
	"github.com/mabhi256/dngc/internal/presenter"
	"github.com/mabhi256/dngc/internal/session"
)

func parsePID(arg string) (int, error) {
	pid, err := strconv.Atoi(arg)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid process ID '%s'", arg)
	}
	return pid, nil
}

// pidArg accepts exactly one positive process ID.
func pidArg(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("no process ID specified")
	}
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	_, err := parsePID(args[0])
	return err
}

// completePID offers the attachable .NET processes
func completePID(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	// Already provided (single) argument, don't offer completions
	if len(args) != 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	dir, _ := cmd.Flags().GetString("endpoint-dir")
	if dir == "" {
		dir = diag.EndpointDir()
	}

	processes, err := diag.ListProcesses(dir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, proc := range processes {
		completions = append(completions, strconv.Itoa(proc.PID)+"\t"+proc.Name)
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

// sessionEnv is what a session command needs once its flags are resolved.
type sessionEnv struct {
	cfg      *config.Config
	log      *zap.Logger
	closeLog func()
	ctx      context.Context
	cancel   context.CancelFunc
}

func newSessionEnv(cmd *cobra.Command, args []string) (*sessionEnv, error) {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Arguments are fine, later failures are not usage errors
	cmd.SilenceUsage = true

	log, closeLog, err := logging.New(cfg.Debug, cfg.DebugLogFile)
	if err != nil {
		return nil, err
	}
	log.Debug("configuration", zap.Reflect("config", *cfg))

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	return &sessionEnv{cfg: cfg, log: log, closeLog: closeLog, ctx: ctx, cancel: cancel}, nil
}

func (e *sessionEnv) close() {
	e.cancel()
	e.closeLog()
}

func (e *sessionEnv) presenterOptions() presenter.Options {
	return presenter.Options{
		Verbose: e.cfg.Verbose,
		Human:   e.cfg.Human,
		NoColor: e.cfg.NoColor,
	}
}

func (e *sessionEnv) controller(sub session.Subscriber, trigger session.Trigger) *session.Controller {
	opts := []session.Option{
		session.WithTrigger(trigger),
		session.WithLogger(e.log),
	}
	if e.cfg.Debug {
		opts = append(opts, session.WithRawEventLogging())
	}
	return session.NewController(session.DiagAttacher(e.cfg.DiagOptions(e.log)), sub, opts...)
}

// runConsole streams a session to the console presenter until it ends.
// Failures were already printed by the presenter.
func (e *sessionEnv) runConsole(ctrl *session.Controller, providers []diag.Provider) error {
	if err := ctrl.Start(e.ctx, e.cfg.PID, providers); err != nil {
		return reportedError{err}
	}
	if err := ctrl.Wait(); err != nil {
		return reportedError{err}
	}
	return nil
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("verbose", "v", false, "Print per-heap generation tables")
	cmd.Flags().Bool("human", false, "Print sizes as 1.5M instead of bytes")
	cmd.Flags().Bool("no-color", false, "Disable colors")
	bufferSize := config.DefaultBufferSize
	cmd.Flags().Var(&bufferSize, "buffer-size", "Runtime-side session buffer (e.g. 64M, 1G)")
	cmd.Flags().Duration("stop-grace", config.DefaultStopGrace, "How long to wait for the runtime to end the stream after stop")
	cmd.Flags().Bool("rundown", false, "Request rundown events when the session stops")
}
