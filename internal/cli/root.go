// Package cli implements the stack-analyzer command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coral-mesh/stack-analyzer/internal/config"
	errs "github.com/coral-mesh/stack-analyzer/internal/errors"
	"github.com/coral-mesh/stack-analyzer/internal/logging"
	"github.com/coral-mesh/stack-analyzer/internal/mode"
	"github.com/coral-mesh/stack-analyzer/internal/session"
	"github.com/coral-mesh/stack-analyzer/pkg/version"
)

// flagValues holds the raw flag values. Only flags set on the command line
// override the loaded configuration.
type flagValues struct {
	configPath string
	frequency  int
	pid        int
	duration   int
	mode       mode.Kind
	userOnly   bool
	kernelOnly bool
	flame      bool
	output     string
	bpfDir     string
	object     string
	renderer   string
	logLevel   string
	logPretty  bool
}

type runFunc func(ctx context.Context, cfg *config.Config) error

// NewRootCmd creates the stack-analyzer command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(runSession)
}

func newRootCmd(run runFunc) *cobra.Command {
	var flags flagValues

	cmd := &cobra.Command{
		Use:   "stack-analyzer",
		Short: "Sample kernel and user stacks with eBPF",
		Long: `Sample kernel and user stacks with eBPF and aggregate them per process.

Four modes pick what triggers a sample:
  0, cpu     CPU time, sampled by a perf clock at --frequency Hz
  1, offcpu  time spent blocked, sampled at the scheduler
  2, mem     allocator calls in --object
  3, io      block and file I/O

While running, the heaviest stacks are printed every few seconds. On exit
the stacks are symbolized and written to stack_count.json, or with --flame
to stack_count.folded (and stack_count.svg when the renderer is available).

Examples:
  # Profile every process for 30 seconds
  stack-analyzer -T 30

  # Off-CPU stacks of one process, user frames only
  stack-analyzer -m offcpu -p 1234 -U

  # Folded stacks for flamegraph.pl
  stack-analyzer -F 99 -T 10 -f -o /tmp/profile`,
		Version:       version.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), &flags)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&flags.configPath, "config", "", "YAML configuration file")
	fs.IntVarP(&flags.frequency, "frequency", "F", 0, "CPU-time sampling frequency in Hz (default 49)")
	fs.IntVarP(&flags.pid, "pid", "p", 0, "process to profile (default all)")
	fs.IntVarP(&flags.duration, "time", "T", 0, "run time in seconds (default unbounded)")
	fs.VarP(&flags.mode, "mode", "m", "profiling mode: 0|cpu, 1|offcpu, 2|mem, 3|io")
	fs.BoolVarP(&flags.userOnly, "user-only", "U", false, "capture user stacks only")
	fs.BoolVarP(&flags.kernelOnly, "kernel-only", "K", false, "capture kernel stacks only")
	fs.BoolVarP(&flags.flame, "flame", "f", false, "write folded stacks instead of JSON")
	fs.StringVarP(&flags.output, "output", "o", "", "output directory (default \".\")")
	fs.StringVar(&flags.bpfDir, "bpf-dir", "", "directory holding the compiled BPF objects")
	fs.StringVar(&flags.object, "object", "", "shared object probed in memory mode")
	fs.StringVar(&flags.renderer, "renderer", "", "flame graph renderer fed the folded stacks")
	fs.StringVar(&flags.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	fs.BoolVar(&flags.logPretty, "log-pretty", true, "human-readable log output")

	return cmd
}

// loadConfig layers the command-line flags over defaults, the config file
// and the environment.
func loadConfig(fs *pflag.FlagSet, flags *flagValues) (*config.Config, error) {
	cfg, err := config.NewLayeredLoader().Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	if fs.Changed("frequency") {
		cfg.Frequency = flags.frequency
	}
	if fs.Changed("pid") {
		cfg.PID = flags.pid
	}
	if fs.Changed("time") {
		cfg.Duration = flags.duration
	}
	if fs.Changed("mode") {
		cfg.Mode = flags.mode
	}
	if fs.Changed("user-only") {
		cfg.UserOnly = flags.userOnly
	}
	if fs.Changed("kernel-only") {
		cfg.KernelOnly = flags.kernelOnly
	}
	if fs.Changed("flame") {
		cfg.Flame = flags.flame
	}
	if fs.Changed("output") {
		cfg.Output.Dir = flags.output
	}
	if fs.Changed("bpf-dir") {
		cfg.BPF.Dir = flags.bpfDir
	}
	if fs.Changed("object") {
		cfg.Memory.Object = flags.object
	}
	if fs.Changed("renderer") {
		cfg.Output.Renderer = flags.renderer
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if fs.Changed("log-pretty") {
		cfg.Logging.Pretty = flags.logPretty
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runSession(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Logging)

	ctrl, err := session.New(cfg, logger)
	if err != nil {
		return err
	}
	return ctrl.Run(ctx)
}

// Execute runs the command until it finishes or the process receives SIGINT
// or SIGTERM, and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return errs.ExitCode(err)
	}
	return 0
}
