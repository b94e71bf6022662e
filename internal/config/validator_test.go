package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/stack-analyzer/internal/constants"
	"github.com/coral-mesh/stack-analyzer/internal/mode"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = mode.Kind(7) },
			wantErr: "mode",
		},
		{
			name: "user and kernel only",
			mutate: func(c *Config) {
				c.UserOnly = true
				c.KernelOnly = true
			},
			wantErr: "",
		},
		{
			name:    "negative budget",
			mutate:  func(c *Config) { c.Duration = -1 },
			wantErr: "time",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Interval = 0 },
			wantErr: "interval",
		},
		{
			name:    "empty output dir",
			mutate:  func(c *Config) { c.Output.Dir = "" },
			wantErr: "output.dir",
		},
		{
			name:    "empty bpf dir",
			mutate:  func(c *Config) { c.BPF.Dir = "" },
			wantErr: "bpf.dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Output.Dir = ""
	cfg.BPF.Dir = ""
	cfg.Duration = -5

	err := cfg.Validate()
	var multi *MultiValidationError
	require.True(t, errors.As(err, &multi))
	assert.Len(t, multi.Errors, 3)
}

func TestConfig_Normalize(t *testing.T) {
	cfg := Default()
	cfg.Frequency = 0
	cfg.PID = -42

	cfg.Normalize()

	assert.Equal(t, 1, cfg.Frequency)
	assert.Equal(t, constants.AllProcesses, cfg.PID)

	cfg.Frequency = 97
	cfg.PID = 0
	cfg.Normalize()

	assert.Equal(t, 97, cfg.Frequency)
	assert.Equal(t, constants.AllProcesses, cfg.PID)

	cfg.PID = 1234
	cfg.Normalize()

	assert.Equal(t, 1234, cfg.PID)
}

func TestConfig_NormalizeCapsDuration(t *testing.T) {
	cfg := Default()
	cfg.Duration = 10_000_000_000

	cfg.Normalize()

	assert.Equal(t, constants.DefaultDuration, cfg.Duration)
	budget := time.Duration(cfg.Duration) * time.Second
	assert.Positive(t, budget)

	cfg.Duration = 30
	cfg.Normalize()

	assert.Equal(t, 30, cfg.Duration)
}

func TestConfig_ModeOptions(t *testing.T) {
	cfg := Default()
	cfg.UserOnly = true

	opts := cfg.ModeOptions()
	assert.True(t, opts.UserStacks)
	assert.False(t, opts.KernelStacks)
	assert.Equal(t, cfg.BPF.Dir, opts.BPFDir)
	assert.Equal(t, cfg.Memory.Object, opts.Object)

	cfg.KernelOnly = true
	opts = cfg.ModeOptions()
	assert.False(t, opts.UserStacks)
	assert.False(t, opts.KernelStacks)
}

func TestMultiValidationError_Error(t *testing.T) {
	assert.Equal(t, "no validation errors", (&MultiValidationError{}).Error())

	single := &MultiValidationError{Errors: []ValidationError{{Field: "mode", Message: "bad"}}}
	assert.Equal(t, "mode: bad", single.Error())

	multi := &MultiValidationError{Errors: []ValidationError{
		{Field: "mode", Message: "bad"},
		{Field: "time", Message: "negative"},
	}}
	assert.Equal(t, "validation failed with 2 errors:\n  1. mode: bad\n  2. time: negative\n", multi.Error())
}
