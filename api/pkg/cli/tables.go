// Package cli holds shared helpers for the floorline CLI subcommands.
package cli

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// NewSimpleTable returns a borderless table suited to terminal output.
func NewSimpleTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)

	table.SetHeader(header)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding(" ")
	table.SetNoWhiteSpace(false)

	return table
}

func AppendRow(table *tablewriter.Table, row []string) {
	table.Append(row)
}

func RenderTable(table *tablewriter.Table) {
	table.Render()
}
