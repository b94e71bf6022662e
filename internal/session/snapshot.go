package session

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/coral-mesh/stack-analyzer/internal/aggregate"
	"github.com/coral-mesh/stack-analyzer/internal/bpfmap"
)

// snapshotRows caps the rows of a live snapshot table.
const snapshotRows = 20

var errStop = errors.New("stop")

// snapshot drains the count table and prints the heaviest stacks. It never
// fails the session.
func (c *Controller) snapshot() {
	tables, err := c.driver.Tables()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Snapshot skipped")
		return
	}

	entries, err := aggregate.DrainSorted(tables.Counts)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Snapshot skipped")
		return
	}

	writeSnapshot(c.diag, tables, entries, snapshotRows)
	c.logger.Debug().
		Int("stacks", len(entries)).
		Int("processes", len(aggregate.TotalsByPID(entries))).
		Uint64("samples", aggregate.Total(entries)).
		Msg("Snapshot taken")
}

// writeSnapshot renders up to limit entries, highest count first.
func writeSnapshot(w io.Writer, tables *bpfmap.Tables, entries []aggregate.Entry, limit int) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"PID", "Comm", "Kernel Stack", "User Stack", "Count"})
	table.SetBorder(false)

	rows := 0
	_ = aggregate.Descending(entries, func(e aggregate.Entry) error {
		if rows == limit {
			return errStop
		}
		rows++
		table.Append([]string{
			strconv.Itoa(int(e.Key.PID)),
			comm(tables, e.Key.PID),
			stackID(e.Key.KernelStackID),
			stackID(e.Key.UserStackID),
			strconv.FormatUint(e.Count, 10),
		})
		return nil
	})

	table.SetFooter([]string{
		"", "", "",
		fmt.Sprintf("%d stacks", len(entries)),
		strconv.FormatUint(aggregate.Total(entries), 10),
	})
	table.Render()
}

func comm(tables *bpfmap.Tables, pid int32) string {
	if tables.Comms == nil {
		return "-"
	}
	c, err := tables.Comms.Lookup(pid)
	if err != nil {
		return "-"
	}
	return c.String()
}

func stackID(id int32) string {
	if id < 0 {
		return "-"
	}
	return strconv.Itoa(int(id))
}
