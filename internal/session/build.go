package session

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/config"
	"github.com/coral-mesh/stack-analyzer/internal/export"
	"github.com/coral-mesh/stack-analyzer/internal/mode"
	"github.com/coral-mesh/stack-analyzer/internal/symbolize"
	"github.com/coral-mesh/stack-analyzer/internal/sys/proc"
)

// New wires the driver, symbolizer and exporter selected by cfg into a
// Controller.
func New(cfg *config.Config, logger zerolog.Logger) (*Controller, error) {
	driver, err := mode.New(cfg.Mode, cfg.ModeOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	symbols := NewSymbolizer(logger)

	var exporter export.Exporter
	if cfg.Flame {
		exporter = &export.Flame{
			OutputDir: cfg.Output.Dir,
			Renderer:  cfg.Output.Renderer,
			Symbols:   symbols,
			Logger:    logger,
		}
	} else {
		exporter = &export.JSON{
			OutputDir: cfg.Output.Dir,
			Symbols:   symbols,
			Logger:    logger,
			IsAlive:   proc.IsAlive,
		}
	}

	return NewController(cfg, driver, exporter, logger), nil
}

// NewSymbolizer builds the session symbolizer over /proc/kallsyms and the
// live /proc filesystem. Without kallsyms every kernel frame stays a hex
// literal.
func NewSymbolizer(logger zerolog.Logger) *symbolize.Symbolizer {
	var kernel symbolize.KernelResolver
	kallsyms, err := symbolize.LoadKallsyms(logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Kernel symbolization disabled, kernel frames will show raw addresses")
	} else {
		kernel = kallsyms
	}

	return symbolize.NewSymbolizer(symbolize.NewCache(), kernel, symbolize.NewProcResolver(logger), logger)
}
