package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by results that have a tabular form.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes data as plain aligned columns with upper-cased headers.
func PrintTable(w io.Writer, data TableRenderer) error {
	t := plain(w, "")
	t.SetHeader(data.Headers())
	t.SetAutoFormatHeaders(true)
	t.AppendBulk(data.Rows())
	t.Render()
	return nil
}

// KeyValue writes one "key: value" line per pair with the values aligned,
// the layout probe and rpc-decode use for a single result.
func KeyValue(w io.Writer, pairs [][2]string) error {
	t := plain(w, ":")
	rows := make([][]string, len(pairs))
	for i, p := range pairs {
		rows[i] = []string{p[0], p[1]}
	}
	t.AppendBulk(rows)
	t.Render()
	return nil
}

// plain is a tablewriter with every border and rule turned off. sep goes
// between columns.
func plain(w io.Writer, sep string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetBorder(false)
	t.SetHeaderLine(false)
	t.SetRowSeparator("")
	t.SetCenterSeparator("")
	t.SetColumnSeparator(sep)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	return t
}
