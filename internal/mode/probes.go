package mode

import (
	"github.com/rs/zerolog"

	"github.com/coral-mesh/stack-analyzer/internal/errors"
)

// sectionDriver attaches every program of its object by section name. It
// serves the off-CPU and I/O modes, which differ only in their object.
type sectionDriver struct {
	bundle
}

func newOffCPUDriver(opts Options, logger zerolog.Logger) Driver {
	return &sectionDriver{bundle: newBundle(OffCPU, opts, logger)}
}

func newIODriver(opts Options, logger zerolog.Logger) Driver {
	return &sectionDriver{bundle: newBundle(IO, opts, logger)}
}

func (d *sectionDriver) Load() error {
	return d.load(map[string]interface{}{
		"apid": d.targetPID(),
		"u":    d.opts.UserStacks,
		"k":    d.opts.KernelStacks,
	})
}

func (d *sectionDriver) Attach() error {
	d.beginAttach()

	if err := d.autoAttach(nil); err != nil {
		return err
	}
	if len(d.links) == 0 {
		return errors.Newf(errors.KindAttach, "attach", "no attachable programs in %s", d.objectPath())
	}

	d.logger.Info().Int("links", len(d.links)).Msg("Probes attached")
	return nil
}
