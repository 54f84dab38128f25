package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/mwidmann/replica/pkg/buildinfo"
	"github.com/mwidmann/replica/pkg/config"
	"github.com/mwidmann/replica/pkg/engine"
	"github.com/mwidmann/replica/pkg/pathclean"
	"github.com/mwidmann/replica/pkg/plog"
	"github.com/mwidmann/replica/pkg/preflight"
	"github.com/mwidmann/replica/pkg/syncmetrics"
)

// Process exit codes. Fatal setup conditions get their own codes so
// wrapping scripts can tell them apart from a run that merely had
// per-file trouble.
const (
	exitOK            = 0
	exitWithIncidents = 1
	exitSamePath      = 100
	exitSourceMissing = 101
	exitReplicaCreate = 102
	exitGeneralError  = 110
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s (version %s):\n", buildinfo.Name, buildinfo.Version)
		fmt.Fprintf(flag.CommandLine.Output(), "One-way directory mirroring with per-file digest verification.\n\n")
		flag.PrintDefaults()
	}
}

// parseFlagConfig defines and parses the command-line flags and returns a
// map containing only the values the user explicitly provided.
func parseFlagConfig() (showVersion bool, configPath string, flagMap map[string]any) {
	srcFlag := flag.String("source", "", "Source directory to mirror from.")
	replicaFlag := flag.String("replica", "", "Replica directory to mirror into (created if absent).")
	retriesFlag := flag.Int("retries", 0, "Maximum copy attempts per file before it is abandoned.")
	permissionsFlag := flag.Bool("permissions", false, "Replicate access-control information along with file attributes.")
	verboseFlag := flag.Bool("verbose", false, "Also log informational per-entry events.")
	logFileFlag := flag.String("log-file", "", "Also write the log to this file.")
	logLevelFlag := flag.String("log-level", "", "Logging level: 'debug', 'info', 'done', 'warn', 'error'.")
	configFlag := flag.String("config", "", "Path to an optional JSON config file.")
	bufferSizeKBFlag := flag.Int("buffer-size-kb", 0, "Size of the copy I/O buffer in kilobytes.")
	versionFlag := flag.Bool("version", false, "Print the application version and exit.")

	flag.Parse()

	usedFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap = make(map[string]any)
	addIfUsed := func(name string, value any) {
		if usedFlags[name] {
			flagMap[name] = value
		}
	}

	addIfUsed("source", *srcFlag)
	addIfUsed("replica", *replicaFlag)
	addIfUsed("retries", *retriesFlag)
	addIfUsed("permissions", *permissionsFlag)
	addIfUsed("verbose", *verboseFlag)
	addIfUsed("log-file", *logFileFlag)
	addIfUsed("log-level", *logLevelFlag)
	addIfUsed("buffer-size-kb", *bufferSizeKBFlag)

	return *versionFlag, *configFlag, flagMap
}

// exitCodeFor maps the run outcome to the process exit code. A fatal error
// wins over the counters; without one the counters decide.
func exitCodeFor(err error, m syncmetrics.Metrics) int {
	if err != nil {
		switch {
		case errors.Is(err, preflight.ErrSamePath):
			return exitSamePath
		case errors.Is(err, preflight.ErrSourceMissing):
			return exitSourceMissing
		case errors.Is(err, pathclean.ErrReplicaCreate):
			return exitReplicaCreate
		default:
			return exitGeneralError
		}
	}
	if m.Errors() > 0 || m.Warnings() > 0 {
		return exitWithIncidents
	}
	return exitOK
}

// run executes the mirroring run and returns the metrics, the log closer
// and any fatal error. Recovered panics surface as ordinary errors. The
// final error line is emitted here, while a -log-file handle is still open;
// the caller closes the log afterwards.
func run(ctx context.Context) (m syncmetrics.Metrics, closeLog func(), err error) {
	m = &syncmetrics.NoopMetrics{}
	closeLog = func() {}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected fault: %v", r)
		}
		if err != nil {
			plog.Error(buildinfo.Name+" exited with error", "error", err)
		}
	}()

	showVersion, configPath, flagMap := parseFlagConfig()
	if showVersion {
		fmt.Printf("%s version %s\n", buildinfo.Name, buildinfo.Version)
		return m, closeLog, nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return m, closeLog, err
	}
	cfg = config.MergeWithFlags(cfg, flagMap)
	if err := cfg.Validate(); err != nil {
		return m, closeLog, err
	}

	// -verbose lowers the threshold so per-entry events appear; an explicit
	// -log-level wins.
	level := plog.LevelFromString(cfg.LogLevel)
	if cfg.Verbose && cfg.LogLevel == config.NewDefault().LogLevel {
		level = plog.LevelInfo
	}
	closeLog, err = plog.Setup(level, cfg.LogFile)
	if err != nil {
		closeLog = func() {}
		return m, closeLog, err
	}

	plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())
	cfg.LogSummary()

	metrics := syncmetrics.NewRunMetrics()
	m = metrics

	startTime := time.Now()
	if err := engine.New(cfg, metrics).ExecuteSync(ctx); err != nil {
		return m, closeLog, err
	}
	duration := time.Since(startTime).Round(time.Millisecond)

	plog.Done(buildinfo.Name+" finished", "duration", duration)
	return m, closeLog, nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C cancels the run context; the engine unwinds and releases
	// the run lock on its way out.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		plog.Warn("Interrupt received, stopping")
		cancel()
	}()

	m, closeLog, err := run(ctx)
	closeLog()
	os.Exit(exitCodeFor(err, m))
}
