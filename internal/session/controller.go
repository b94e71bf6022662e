// Package session runs one profiling session end to end: load, attach, a
// periodic snapshot loop, detach, export and unload.
package session

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/config"
	errs "github.com/coral-mesh/stack-analyzer/internal/errors"
	"github.com/coral-mesh/stack-analyzer/internal/export"
	"github.com/coral-mesh/stack-analyzer/internal/logging"
	"github.com/coral-mesh/stack-analyzer/internal/mode"
	"github.com/coral-mesh/stack-analyzer/internal/sys/proc"
)

// Controller drives one Driver through a session. A Controller runs once.
type Controller struct {
	cfg      *config.Config
	driver   mode.Driver
	exporter export.Exporter
	logger   zerolog.Logger
	runID    string

	// diag receives the snapshot tables.
	diag      io.Writer
	isAlive   func(ctx context.Context, pid int) bool
	wait      func(ctx context.Context, d time.Duration) error
	preflight func(logger zerolog.Logger)
}

// NewController creates a controller for an already constructed driver and
// exporter.
func NewController(cfg *config.Config, driver mode.Driver, exporter export.Exporter, logger zerolog.Logger) *Controller {
	runID := uuid.NewString()
	return &Controller{
		cfg:      cfg,
		driver:   driver,
		exporter: exporter,
		logger: logging.Component(logger, "session").With().
			Str("run_id", runID).
			Str("mode", driver.Kind().String()).
			Logger(),
		runID:     runID,
		diag:      os.Stderr,
		isAlive:   proc.IsAlive,
		wait:      sleep,
		preflight: Preflight,
	}
}

// RunID identifies this session in logs.
func (c *Controller) RunID() string {
	return c.runID
}

// Run executes the session. Detach, the export and Unload run on every path;
// a failed load or attach only skips the snapshot loop. The returned error is
// the first fatal failure, in lifecycle order.
func (c *Controller) Run(ctx context.Context) error {
	var unloadOnce sync.Once
	unload := func() {
		unloadOnce.Do(func() {
			c.logger.Debug().Msg("Unloading BPF programs")
			c.driver.Unload()
		})
	}
	defer unload()

	var first error
	fail := func(stage string, err error) {
		kind := errs.KindOf(err)
		event := c.logger.Error()
		if !kind.Fatal() {
			event = c.logger.Warn()
		}
		event.Err(err).Str("stage", stage).Str("kind", kind.String()).Msg("Stage failed")
		if first == nil && kind.Fatal() {
			first = err
		}
	}

	if c.preflight != nil {
		c.preflight(c.logger)
	}

	c.logger.Info().
		Int("pid", c.cfg.PID).
		Int("frequency_hz", c.cfg.Frequency).
		Int("budget_seconds", c.cfg.Duration).
		Bool("user_stacks", !c.cfg.KernelOnly).
		Bool("kernel_stacks", !c.cfg.UserOnly).
		Msg("Starting profiling session")
	if c.cfg.UserOnly && c.cfg.KernelOnly {
		c.logger.Warn().Msg("User and kernel stacks both disabled, samples carry no frames")
	}

	started := false
	if err := c.driver.Load(); err != nil {
		fail("load", err)
	} else if err := c.driver.Attach(); err != nil {
		fail("attach", err)
	} else {
		started = true
	}

	if started {
		c.loop(ctx)
	}

	c.driver.Detach()

	// The export still runs after an interrupt, so it must not inherit the
	// cancellation.
	if err := c.export(context.WithoutCancel(ctx)); err != nil {
		fail("export", err)
	}

	unload()

	c.logger.Info().Bool("ok", first == nil).Msg("Profiling session finished")
	return first
}

// loop prints a snapshot every interval until the budget is spent, the
// target exits or ctx is cancelled.
func (c *Controller) loop(ctx context.Context) {
	budget := time.Duration(c.cfg.Duration) * time.Second
	for budget > 0 {
		if ctx.Err() != nil {
			c.logger.Info().Msg("Session cancelled")
			return
		}
		if c.cfg.PID >= 0 && !c.isAlive(ctx, c.cfg.PID) {
			c.logger.Info().Int("pid", c.cfg.PID).Msg("Target process is gone")
			return
		}
		if err := c.wait(ctx, c.cfg.Interval); err != nil {
			c.logger.Info().Msg("Session cancelled")
			return
		}
		c.snapshot()
		budget -= c.cfg.Interval
	}
	c.logger.Info().Msg("Time budget exhausted")
}

func (c *Controller) export(ctx context.Context) error {
	tables, err := c.driver.Tables()
	if err != nil {
		return err
	}
	return c.exporter.Export(ctx, tables)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
