package mode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSection(t *testing.T) {
	tests := []struct {
		section string
		want    attachPoint
		ok      bool
	}{
		{section: "kprobe/finish_task_switch", want: attachPoint{kind: attachKprobe, name: "finish_task_switch"}, ok: true},
		{section: "kretprobe/vfs_read", want: attachPoint{kind: attachKretprobe, name: "vfs_read"}, ok: true},
		{section: "tracepoint/sched/sched_switch", want: attachPoint{kind: attachTracepoint, group: "sched", name: "sched_switch"}, ok: true},
		{section: "tp/syscalls/sys_enter_read", want: attachPoint{kind: attachTracepoint, group: "syscalls", name: "sys_enter_read"}, ok: true},
		{section: "raw_tracepoint/sched_switch", want: attachPoint{kind: attachRawTracepoint, name: "sched_switch"}, ok: true},
		{section: "raw_tp/block_rq_issue", want: attachPoint{kind: attachRawTracepoint, name: "block_rq_issue"}, ok: true},
		{section: "fentry/vfs_write", want: attachPoint{kind: attachTracing, name: "vfs_write"}, ok: true},
		{section: "fexit/vfs_write", want: attachPoint{kind: attachTracing, name: "vfs_write"}, ok: true},
		{section: "tp_btf/sched_switch", want: attachPoint{kind: attachTracing, name: "sched_switch"}, ok: true},
		{section: "tracepoint/sched", ok: false},
		{section: "uprobe/malloc", ok: false},
		{section: "perf_event", ok: false},
		{section: "kprobe/", ok: false},
		{section: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.section, func(t *testing.T) {
			got, ok := parseSection(tt.section)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
