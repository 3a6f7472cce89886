// Package formatting renders command output either as JSON (for
// scripting) or as aligned console tables using text/tabwriter.
package formatting

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	mcpmstrings "github.com/mcpm-sh/mcpm/pkg/strings"
)

// tableCellMaxLen bounds each console table cell so a long command line
// or URL doesn't blow out terminal width.
const tableCellMaxLen = mcpmstrings.DefaultDescriptionMaxLen

// WriteJSON marshals v as 2-space-indented JSON (matching the catalog's
// on-disk format) to w.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table renders rows as an aligned, tab-separated table with a header.
type Table struct {
	Header []string
	Rows   [][]string
}

// Write flushes the table to w using text/tabwriter.
func (t Table) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, join(t.Header))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, join(row))
	}
	return tw.Flush()
}

func join(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += "\t"
		}
		out += mcpmstrings.TruncateDescription(c, tableCellMaxLen)
	}
	return out
}
