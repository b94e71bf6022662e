package session

import (
	"github.com/cilium/ebpf/rlimit"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/privilege"
	"github.com/coral-mesh/stack-analyzer/internal/sys/proc"
	"github.com/coral-mesh/stack-analyzer/internal/sys/sysfs"
)

// Preflight logs what the host offers for BPF profiling and lifts the
// memlock limit. Nothing here fails the session; an unmet requirement shows
// up again as a load or attach error.
func Preflight(logger zerolog.Logger) {
	btf := sysfs.CheckBTFAvailable()
	event := logger.Info()
	if !btf {
		event = logger.Warn()
	}
	event.
		Str("kernel", proc.GetKernelVersion()).
		Bool("btf", btf).
		Msg("Host kernel")

	caps, err := privilege.DetectCapabilities()
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("Could not determine capabilities")
	case !caps.CanProfile():
		logger.Warn().
			Bool("root", privilege.IsRoot()).
			Bool("cap_sys_admin", caps.SysAdmin).
			Bool("cap_bpf", caps.Bpf).
			Bool("cap_perfmon", caps.Perfmon).
			Msg("Missing privileges for BPF profiling, run as root or grant CAP_BPF and CAP_PERFMON")
	default:
		logger.Debug().
			Bool("root", privilege.IsRoot()).
			Bool("cap_bpf", caps.Bpf).
			Bool("cap_perfmon", caps.Perfmon).
			Msg("Privileges sufficient")
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove memlock rlimit")
	}
}
