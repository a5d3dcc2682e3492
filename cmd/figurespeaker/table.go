package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// uriColumnWidth wraps long playlist URIs instead of widening the table.
const uriColumnWidth = 60

type column struct {
	title   string
	numeric bool
	wrap    bool
}

func textColumn(title string) column    { return column{title: title} }
func numericColumn(title string) column { return column{title: title, numeric: true} }
func uriColumn(title string) column     { return column{title: title, wrap: true} }

// renderTable draws rows under cols. Missing trailing cells render empty.
func renderTable(cols []column, rows [][]string) string {
	if len(cols) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, col := range cols {
		header[i] = col.title
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
		if col.numeric {
			configs[i].Align = text.AlignRight
		}
		if col.wrap {
			configs[i].WidthMax = uriColumnWidth
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, cells := range rows {
		row := make(table.Row, len(cols))
		for i := range row {
			row[i] = ""
			if i < len(cells) {
				row[i] = cells[i]
			}
		}
		tw.AppendRow(row)
	}
	return tw.Render() + "\n"
}
