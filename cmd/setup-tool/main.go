package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/setup-tool/internal/buildinfo"
	"github.com/tsukumogami/setup-tool/internal/errmsg"
	"github.com/tsukumogami/setup-tool/internal/host"
	"github.com/tsukumogami/setup-tool/internal/log"
)

var (
	quietFlag   bool
	verboseFlag bool
	debugFlag   bool

	// runner is the CI host facility for this process
	runner = host.New()
)

var rootCmd = &cobra.Command{
	Use:   "setup-tool",
	Short: "Put a tool's binary on PATH for the rest of a CI job",
	Long: `setup-tool makes a tool available to later steps of a CI job.

It looks up the tool's latest GitHub release and uses the first source
that works: a cached binary of that version, the prebuilt release asset
for this platform, or a build from source. The binary's directory is
added to PATH.

Run without a subcommand it installs the tool, reading settings from
flags, then action inputs (INPUT_*), then setup-tool.toml.`,
	Version:       buildinfo.Version(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return installRun(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Show only errors")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show acquisition steps")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Show state transitions and request details")

	addInstallFlags(rootCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(cacheCmd)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})
}

// isTruthy reports whether an environment value means "on".
func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// determineLogLevel picks the level from flags, then SETUP_TOOL_* env
// vars, then the runner's debug switch. The most verbose setting in a
// group wins.
func determineLogLevel() slog.Level {
	switch {
	case debugFlag:
		return slog.LevelDebug
	case verboseFlag:
		return slog.LevelInfo
	case quietFlag:
		return slog.LevelError
	}

	switch {
	case isTruthy(os.Getenv("SETUP_TOOL_DEBUG")):
		return slog.LevelDebug
	case isTruthy(os.Getenv("SETUP_TOOL_VERBOSE")):
		return slog.LevelInfo
	case isTruthy(os.Getenv("SETUP_TOOL_QUIET")):
		return slog.LevelError
	}

	// Re-running a job with debug logging sets RUNNER_DEBUG=1
	if os.Getenv("RUNNER_DEBUG") == "1" {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

func initLogger() {
	level := determineLogLevel()
	var h slog.Handler
	if runner.InActions() {
		h = log.NewActionsHandler(runner, level)
	} else {
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	log.SetDefault(log.New(h))
}

// quiet reports whether progress lines should be suppressed.
func quiet() bool {
	return determineLogLevel() >= slog.LevelError
}

// reportFailure prints err with suggestions. On a runner it becomes an
// error annotation.
func reportFailure(h *host.Host, stderr io.Writer, err error) {
	var ctx *errmsg.ErrorContext
	var re *runError
	if errors.As(err, &re) {
		ctx = re.ctx
	}
	if h.InActions() {
		h.Fail(strings.TrimRight(errmsg.Format(err, ctx), "\n"))
		return
	}
	errmsg.Fprint(stderr, err, ctx)
}

// exitStatus reports a failed run and returns the process exit code.
// interrupted means the root context was cancelled by a signal before
// the command returned.
func exitStatus(h *host.Host, stderr io.Writer, err error, interrupted bool) int {
	if err == nil {
		return ExitSuccess
	}
	if interrupted {
		fmt.Fprintln(stderr, "Interrupted")
	} else {
		reportFailure(h, stderr, err)
	}
	return exitCodeFor(err)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	// stop cancels ctx, so read the signal state first
	interrupted := ctx.Err() != nil
	stop()
	if code := exitStatus(runner, os.Stderr, err, interrupted); code != ExitSuccess {
		exitWithCode(code)
	}
}
