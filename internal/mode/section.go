package mode

import (
	"fmt"
	"strings"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
)

type attachKind int

const (
	attachKprobe attachKind = iota
	attachKretprobe
	attachTracepoint
	attachRawTracepoint
	attachTracing
)

// attachPoint is where a program declares, through its ELF section name,
// that it wants to be attached.
type attachPoint struct {
	kind  attachKind
	group string
	name  string
}

// parseSection understands the libbpf section conventions for probes that
// can be attached without further input.
func parseSection(section string) (attachPoint, bool) {
	prefix, rest, ok := strings.Cut(section, "/")
	if !ok || rest == "" {
		return attachPoint{}, false
	}

	switch prefix {
	case "kprobe":
		return attachPoint{kind: attachKprobe, name: rest}, true
	case "kretprobe":
		return attachPoint{kind: attachKretprobe, name: rest}, true
	case "tracepoint", "tp":
		group, name, ok := strings.Cut(rest, "/")
		if !ok || group == "" || name == "" {
			return attachPoint{}, false
		}
		return attachPoint{kind: attachTracepoint, group: group, name: name}, true
	case "raw_tracepoint", "raw_tp":
		return attachPoint{kind: attachRawTracepoint, name: rest}, true
	case "fentry", "fexit", "fmod_ret", "tp_btf":
		return attachPoint{kind: attachTracing, name: rest}, true
	default:
		return attachPoint{}, false
	}
}

func (p attachPoint) attach(prog *ebpf.Program) (link.Link, error) {
	switch p.kind {
	case attachKprobe:
		return link.Kprobe(p.name, prog, nil)
	case attachKretprobe:
		return link.Kretprobe(p.name, prog, nil)
	case attachTracepoint:
		return link.Tracepoint(p.group, p.name, prog, nil)
	case attachRawTracepoint:
		return link.AttachRawTracepoint(link.RawTracepointOptions{Name: p.name, Program: prog})
	case attachTracing:
		// The target was resolved from the section name at load time.
		return link.AttachTracing(link.TracingOptions{Program: prog})
	default:
		return nil, fmt.Errorf("unknown attach kind %d", p.kind)
	}
}
