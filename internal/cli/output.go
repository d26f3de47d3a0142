package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/why-xn/infradesk/internal/capacity"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// outputFormat is bound to the persistent --output flag.
var outputFormat = formatTable

func validateOutputFormat() error {
	switch outputFormat {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", outputFormat)
}

// table is a list view. Column selection and paging follow the user's
// preferences.
type table struct {
	name    string
	headers []string
	rows    [][]string
}

func newTable(name string, headers ...string) *table {
	return &table{name: name, headers: headers}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

// columns returns the indexes of the headers to print.
func (t *table) columns() []int {
	want := visibleColumns(t.name)
	var idx []int
	for i, h := range t.headers {
		if want == nil || slices.Contains(want, h) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		for i := range t.headers {
			idx = append(idx, i)
		}
	}
	return idx
}

func (t *table) write(out io.Writer) error {
	if len(t.rows) == 0 {
		_, err := fmt.Fprintf(out, "No %s found.\n", strings.ReplaceAll(t.name, "_", " "))
		return err
	}
	cols := t.columns()
	limit := viper.GetInt(PrefItemsPerPage)
	if limit <= 0 || limit > len(t.rows) {
		limit = len(t.rows)
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(pick(t.headers, cols), "\t"))
	for _, row := range t.rows[:limit] {
		fmt.Fprintln(w, strings.Join(pick(row, cols), "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	header, rest, _ := strings.Cut(buf.String(), "\n")
	if _, err := fmt.Fprintln(out, styleHeader(out, header)); err != nil {
		return err
	}
	if _, err := io.WriteString(out, rest); err != nil {
		return err
	}
	if hidden := len(t.rows) - limit; hidden > 0 {
		_, err := fmt.Fprintf(out, "... %d more (showing %d of %d, see preferences.items_per_page)\n",
			hidden, limit, len(t.rows))
		return err
	}
	return nil
}

func pick(cells []string, cols []int) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if c < len(cells) {
			out[i] = cells[c]
		}
	}
	return out
}

// styleHeader colors the header line when writing to a terminal with a light
// or dark theme selected.
func styleHeader(out io.Writer, header string) string {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return header
	}
	switch viper.GetString(PrefTheme) {
	case "dark":
		return "\x1b[1;96m" + header + "\x1b[0m"
	case "light":
		return "\x1b[1;34m" + header + "\x1b[0m"
	}
	return header
}

// render prints v as JSON or YAML when requested, otherwise the table built
// by build.
func render(out io.Writer, v any, build func() *table) error {
	switch outputFormat {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		return writeYAML(out, v)
	}
	return build().write(out)
}

// writeYAML encodes v through its JSON form so field names match the API.
func writeYAML(out io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func gb(v float64) string {
	if v == 0 {
		return "0"
	}
	return capacity.FormatGB(v)
}

func ghz(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " GHz"
}

func day(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
