package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gear6io/lakeio/server/iomanager"
	"github.com/pterm/pterm"
)

// display writes user-facing output with pterm
type display struct {
	out io.Writer
}

func newDisplay(w io.Writer) *display {
	return &display{out: w}
}

func (d *display) Success(format string, args ...any) {
	fmt.Fprintln(d.out, pterm.Success.Sprintf(format, args...))
}

func (d *display) Info(format string, args ...any) {
	fmt.Fprintln(d.out, pterm.Info.Sprintf(format, args...))
}

func (d *display) Warning(format string, args ...any) {
	fmt.Fprintln(d.out, pterm.Warning.Sprintf(format, args...))
}

func (d *display) Println(s string) {
	fmt.Fprintln(d.out, s)
}

// Table renders header and rows as a boxed table
func (d *display) Table(header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)
	s, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(d.out, s)
	return nil
}

// Metadata renders the entries an IO manager published
func (d *display) Metadata(log *iomanager.MetadataLog) error {
	var rows [][]string
	var preview string
	for _, k := range log.Keys() {
		v, _ := log.Get(k)
		if v.Kind == iomanager.MetadataMarkdown {
			preview = v.Text
			continue
		}
		rows = append(rows, []string{k, v.String()})
	}
	if err := d.Table([]string{"Key", "Value"}, rows); err != nil {
		return err
	}
	if preview != "" {
		d.Println(preview)
	}
	return nil
}

// formatValue renders a cell; nulls are empty
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

// rowsFromMaps renders query result rows in column order
func rowsFromMaps(columns []string, rows []map[string]any) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		cells := make([]string, len(columns))
		for j, c := range columns {
			cells[j] = formatValue(r[c])
		}
		out[i] = cells
	}
	return out
}

func sortedStrings(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
