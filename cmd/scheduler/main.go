package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"srtfsched/api/health"
	"srtfsched/config"
	"srtfsched/logging"
	"srtfsched/schedlib"

	"github.com/jessevdk/go-flags"
)

// For command-line args. Anything set here overrides the config file.
type cmdflags struct {
	ConfigFile   string        `short:"c" long:"config" description:"Path to a YAML run configuration file"`
	WorkerPath   string        `short:"w" long:"worker" description:"Path to the worker executable (default ./worker)"`
	TickInterval time.Duration `short:"t" long:"tick" description:"Length of one simulated time unit (default 1s)"`
	Backend      string        `short:"b" long:"backend" choice:"signal" choice:"cgroup" description:"How workers are paused and resumed (default signal)"`
	OutputDir    string        `short:"o" long:"output-dir" description:"Directory for per-worker output files; workers share stdout if unset"`
	MaxJobs      int           `long:"max-jobs" description:"Largest accepted workload (default 256)"`
	HealthAddr   string        `long:"health-addr" description:"host:port for the gRPC health service; disabled if unset"`
	LogLevel     string        `long:"log-level" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Diagnostic log level (default info)"`
	LogFormat    string        `long:"log-format" choice:"text" choice:"json" description:"Diagnostic log format (default text)"`

	Args struct {
		Workload string `positional-arg-name:"WORKLOAD" description:"Workload file: a header line, then 'id arrival burst' rows"`
	} `positional-args:"yes" required:"yes"`
}

// How long an aborted run waits for killed workers to be reaped.
const shutdownTimeout = 2 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// loadConfig merges the defaults, the optional config file and the command line.
func loadConfig(opts *cmdflags) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigFile != "" {
		loaded, err := config.Load(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if opts.WorkerPath != "" {
		cfg.WorkerPath = opts.WorkerPath
	}
	if opts.TickInterval != 0 {
		cfg.TickInterval = opts.TickInterval
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	if opts.MaxJobs != 0 {
		cfg.MaxJobs = opts.MaxJobs
	}
	if opts.HealthAddr != "" {
		cfg.HealthAddr = opts.HealthAddr
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.LogFormat = opts.LogFormat
	}

	return &cfg, cfg.Validate()
}

func newLauncher(cfg *config.Config, runID string, logger *slog.Logger) (schedlib.Launcher, error) {
	wc := schedlib.WorkerCommand{
		Path:      cfg.WorkerPath,
		OutputDir: cfg.OutputDir,
		RunID:     runID,
	}
	if cfg.Backend == config.BackendCgroup {
		return schedlib.NewCgroupLauncher(wc, logger)
	}
	return schedlib.NewSignalLauncher(wc, logger)
}

// run is the whole scheduler command. Event lines go to stdout and diagnostics
// to stderr. It returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	errlog := log.New(stderr, "", log.LstdFlags)

	var opts cmdflags
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		if flags.WroteHelp(err) {
			fmt.Fprintln(stdout, err)
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 1
	}

	cfg, err := loadConfig(&opts)
	if err != nil {
		errlog.Printf("Invalid configuration: %v", err)
		return 1
	}

	runID, err := schedlib.NewRunID()
	if err != nil {
		errlog.Printf("Failed to create run ID: %v", err)
		return 1
	}

	logger, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		errlog.Printf("Invalid logging configuration: %v", err)
		return 1
	}
	logger = logger.With("run", runID)

	jobs, err := schedlib.LoadWorkloadFile(opts.Args.Workload, cfg.MaxJobs)
	if err != nil {
		logger.Error("failed to load workload", "err", err)
		return 1
	}
	logger.Info("loaded workload", "path", opts.Args.Workload, "jobs", len(jobs),
		"backend", cfg.Backend, "tick", cfg.TickInterval)

	launcher, err := newLauncher(cfg, runID, logger)
	if err != nil {
		logger.Error("failed to create worker launcher", "err", err)
		return 1
	}
	defer func() {
		if err := launcher.Close(); err != nil {
			logger.Error("failed to clean up worker launcher", "err", err)
		}
	}()

	sched, err := schedlib.NewScheduler(jobs, launcher, schedlib.WriterSink{W: stdout}, logger)
	if err != nil {
		logger.Error("failed to create scheduler", "err", err)
		return 1
	}

	// Standard Linux termination signals. See https://www.gnu.org/software/libc/manual/html_node/Termination-Signals.html
	ctx, endIt := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGHUP,
	)
	defer endIt()

	if cfg.HealthAddr != "" {
		hs, err := health.NewServer(cfg.HealthAddr, logger)
		if err != nil {
			logger.Error("failed to start health server", "err", err)
			return 1
		}
		hctx, hcancel := context.WithCancel(context.Background())
		hdone := make(chan struct{})
		go func() {
			defer close(hdone)
			_ = hs.Run(hctx)
		}()
		hs.SetSimulating(true)
		defer func() {
			hs.SetSimulating(false)
			hcancel()
			<-hdone
		}()
	}

	err = schedlib.RunClock(ctx, cfg.TickInterval, sched.Tick)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("scheduler interrupted", "t", sched.Now(), "completed", sched.Completed())
		} else {
			logger.Error("scheduler aborted", "t", sched.Now(), "err", err)
		}
		sched.Shutdown(shutdownTimeout)
		return 1
	}

	sched.LogSummary()
	return 0
}
