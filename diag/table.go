// Package diag renders PIV session state as human-readable tables using
// go-pretty/v6.
package diag

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/cardkit/piv"
)

var (
	colorHeader = text.Colors{text.FgCyan, text.Bold}
	colorLabel  = text.Colors{text.FgYellow}
	colorValue  = text.Colors{text.FgWhite}
	colorOK     = text.Colors{text.FgGreen}
	colorWarn   = text.Colors{text.FgYellow}
	colorBad    = text.Colors{text.FgRed}
)

// newTable leaves output unmirrored: this is a library, and callers decide
// where the rendered string goes (stdout, a log line, a UI pane).
func newTable() table.Writer {
	t := table.NewWriter()
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Options.SeparateRows = false
	t.SetStyle(style)
	return t
}

// FormatSlotTable renders a map of slot metadata (as returned by
// Session.EnumerateSlots) as an aligned table: slot, algorithm, pin/touch
// policy, origin, and a public-key summary.
func FormatSlotTable(slots map[piv.Slot]*piv.SlotMetadata) string {
	t := newTable()
	t.SetTitle("PIV SLOTS")
	t.AppendHeader(table.Row{"Slot", "Algorithm", "PIN Policy", "Touch Policy", "Origin", "Public Key"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 20},
		{Number: 2, Colors: colorValue, WidthMin: 10},
		{Number: 3, Colors: colorValue, WidthMin: 12},
		{Number: 4, Colors: colorValue, WidthMin: 12},
		{Number: 5, Colors: colorValue, WidthMin: 10},
		{Number: 6, Colors: colorValue, WidthMin: 10},
	})

	var slotNums []piv.Slot
	for s := range slots {
		slotNums = append(slotNums, s)
	}
	sort.Slice(slotNums, func(i, j int) bool { return slotNums[i] < slotNums[j] })

	for _, slot := range slotNums {
		md := slots[slot]
		origin := "imported"
		if md.GeneratedOnDevice {
			origin = colorOK.Sprint("generated")
		}
		pubSummary := "(none)"
		if md.PublicKey != nil {
			pubSummary = fmt.Sprintf("%d bytes", len(md.PublicKey.Modulus)+len(md.PublicKey.X)+len(md.PublicKey.Y))
		}
		t.AppendRow(table.Row{slot.String(), md.Algorithm.String(), md.PinPolicy.String(), md.TouchPolicy.String(), origin, pubSummary})
	}
	return t.Render()
}

// FormatRetryTable renders PIN/PUK retry status.
func FormatRetryTable(pin, puk piv.RetryStatus) string {
	t := newTable()
	t.SetTitle("PIN / PUK RETRY STATUS")
	t.AppendHeader(table.Row{"Credential", "Default", "Total", "Remaining", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 12},
		{Number: 2, Colors: colorValue, WidthMin: 8},
		{Number: 3, Colors: colorValue, WidthMin: 8},
		{Number: 4, Colors: colorValue, WidthMin: 10},
		{Number: 5, WidthMin: 10},
	})

	appendRetryRow(t, "PIN", pin)
	appendRetryRow(t, "PUK", puk)
	return t.Render()
}

func appendRetryRow(t table.Writer, name string, rs piv.RetryStatus) {
	status := colorOK.Sprint("OK")
	if rs.Blocked() {
		status = colorBad.Sprint("BLOCKED")
	} else if rs.RetriesRemaining <= 2 {
		status = colorWarn.Sprintf("LOW (%d)", rs.RetriesRemaining)
	}
	t.AppendRow(table.Row{name, rs.IsDefault, rs.TotalRetries, rs.RetriesRemaining, status})
}
