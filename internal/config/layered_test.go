package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coral-mesh/stack-analyzer/internal/constants"
	"github.com/coral-mesh/stack-analyzer/internal/mode"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stack-analyzer.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLayeredLoader_Load_DefaultsOnly(t *testing.T) {
	loader := NewLayeredLoader()
	loader.DisableLayer(LayerFile)
	loader.DisableLayer(LayerEnv)

	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Mode != mode.CPUTime {
		t.Errorf("Mode = %v, want %v", cfg.Mode, mode.CPUTime)
	}
	if cfg.Frequency != constants.DefaultFrequency {
		t.Errorf("Frequency = %d, want %d", cfg.Frequency, constants.DefaultFrequency)
	}
	if cfg.PID != constants.AllProcesses {
		t.Errorf("PID = %d, want %d", cfg.PID, constants.AllProcesses)
	}
	if cfg.Duration != constants.DefaultDuration {
		t.Errorf("Duration = %d, want %d", cfg.Duration, constants.DefaultDuration)
	}
	if cfg.Interval != constants.DefaultInterval {
		t.Errorf("Interval = %v, want %v", cfg.Interval, constants.DefaultInterval)
	}
}

func TestLayeredLoader_Load_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: io
frequency: 199
time: 10
interval: 1s
output:
  dir: /var/tmp/profiles
`)

	loader := NewLayeredLoader()
	loader.DisableLayer(LayerEnv)

	cfg, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Mode != mode.IO {
		t.Errorf("Mode = %v, want %v", cfg.Mode, mode.IO)
	}
	if cfg.Frequency != 199 {
		t.Errorf("Frequency = %d, want 199", cfg.Frequency)
	}
	if cfg.Duration != 10 {
		t.Errorf("Duration = %d, want 10", cfg.Duration)
	}
	if cfg.Interval != time.Second {
		t.Errorf("Interval = %v, want 1s", cfg.Interval)
	}
	if cfg.Output.Dir != "/var/tmp/profiles" {
		t.Errorf("Output.Dir = %q, want %q", cfg.Output.Dir, "/var/tmp/profiles")
	}

	// Keys absent from the file keep their defaults.
	if cfg.PID != constants.AllProcesses {
		t.Errorf("PID = %d, want %d", cfg.PID, constants.AllProcesses)
	}
	if cfg.BPF.Dir != constants.DefaultBPFDir {
		t.Errorf("BPF.Dir = %q, want %q", cfg.BPF.Dir, constants.DefaultBPFDir)
	}
}

func TestLayeredLoader_Load_EnvOverridesFileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
mode: mem
frequency: 199
pid: 100
`)
	t.Setenv("STACK_ANALYZER_FREQUENCY", "11")
	t.Setenv("STACK_ANALYZER_OUTPUT", "/srv/out")

	cfg, err := NewLayeredLoader().Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Frequency != 11 {
		t.Errorf("Frequency = %d, want 11 (env)", cfg.Frequency)
	}
	if cfg.Output.Dir != "/srv/out" {
		t.Errorf("Output.Dir = %q, want %q (env)", cfg.Output.Dir, "/srv/out")
	}
	if cfg.Mode != mode.Memory {
		t.Errorf("Mode = %v, want %v (file)", cfg.Mode, mode.Memory)
	}
	if cfg.PID != 100 {
		t.Errorf("PID = %d, want 100 (file)", cfg.PID)
	}
}

func TestLayeredLoader_Load_NonExistentFile(t *testing.T) {
	loader := NewLayeredLoader()
	loader.DisableLayer(LayerEnv)

	cfg, err := loader.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() with missing file should fall back to defaults, got: %v", err)
	}
	if cfg.Frequency != constants.DefaultFrequency {
		t.Errorf("Frequency = %d, want %d", cfg.Frequency, constants.DefaultFrequency)
	}
}

func TestLayeredLoader_Load_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "mode: [cpu\n")

	loader := NewLayeredLoader()
	loader.DisableLayer(LayerEnv)

	if _, err := loader.Load(path); err == nil {
		t.Error("Load() with invalid YAML should fail")
	}
}

func TestLayeredLoader_Load_UnknownMode(t *testing.T) {
	path := writeConfig(t, "mode: gpu\n")

	loader := NewLayeredLoader()
	loader.DisableLayer(LayerEnv)

	if _, err := loader.Load(path); err == nil {
		t.Error("Load() with unknown mode should fail")
	}
}

func TestLayeredLoader_EnableDisableLayers(t *testing.T) {
	loader := NewLayeredLoader()
	loader.DisableLayer(LayerDefaults)
	loader.DisableLayer(LayerFile)
	loader.DisableLayer(LayerEnv)

	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Frequency != 0 || cfg.Output.Dir != "" {
		t.Errorf("expected zero config with all layers disabled, got %+v", cfg)
	}

	loader.EnableLayer(LayerDefaults)
	cfg, err = loader.Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Frequency != constants.DefaultFrequency {
		t.Errorf("Frequency = %d, want %d", cfg.Frequency, constants.DefaultFrequency)
	}
}
