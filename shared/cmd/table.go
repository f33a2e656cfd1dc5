package cmd

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// RenderTable writes a table with the given header and rows to the writer.
func RenderTable(writer io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(writer)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetRowLine(false)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}
