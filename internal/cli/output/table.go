package output

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/yndnr/memkv/pkg/resp"
)

// TableFormatter formats data as an aligned table.
type TableFormatter struct {
	NoHeaders bool
}

// Format renders replies, maps, structs and slices of structs. Nested
// maps are flattened into dotted keys. Anything else is written as JSON.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	var (
		table *Table
		err   error
	)
	switch t := data.(type) {
	case nil:
		return nil
	case *Table:
		table = t
	case Table:
		table = &t
	case resp.Reply:
		table = replyTable(t)
	default:
		table, err = toTable(reflect.ValueOf(data))
	}
	if err != nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return table.RenderWithOptions(w, f.NoHeaders)
}

// replyTable numbers array elements the way redis-cli does.
func replyTable(r resp.Reply) *Table {
	switch v := r.(type) {
	case resp.Array:
		table := &Table{Headers: []string{"#", "VALUE"}}
		for i, item := range v {
			table.AddRow(strconv.Itoa(i+1), cell(ReplyValue(item)))
		}
		return table
	case resp.ErrorReply:
		table := &Table{Headers: []string{"ERROR"}}
		table.AddRow(string(v))
		return table
	default:
		table := &Table{Headers: []string{"VALUE"}}
		table.AddRow(cell(ReplyValue(r)))
		return table
	}
}

func toTable(v reflect.Value) (*Table, error) {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return sliceTable(v), nil
	case reflect.Map:
		table := &Table{Headers: []string{"KEY", "VALUE"}}
		flattenMap(table, "", v)
		sort.SliceStable(table.Rows, func(i, j int) bool { return table.Rows[i][0] < table.Rows[j][0] })
		return table, nil
	case reflect.Struct:
		table := &Table{Headers: []string{"FIELD", "VALUE"}}
		for _, f := range columns(v.Type()) {
			table.AddRow(f.name, formatValue(v.Field(f.index)))
		}
		return table, nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", v.Kind())
	}
}

// sliceTable renders one row per element; struct fields become columns.
func sliceTable(v reflect.Value) *Table {
	table := &Table{}
	if v.Len() == 0 {
		return table
	}
	et := v.Type().Elem()
	if et.Kind() == reflect.Ptr {
		et = et.Elem()
	}
	if et.Kind() != reflect.Struct {
		table.Headers = []string{"VALUE"}
		for i := 0; i < v.Len(); i++ {
			table.AddRow(formatValue(v.Index(i)))
		}
		return table
	}

	cols := columns(et)
	for _, c := range cols {
		table.Headers = append(table.Headers, strings.ToUpper(c.name))
	}
	for i := 0; i < v.Len(); i++ {
		elem := reflect.Indirect(v.Index(i))
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = formatValue(elem.Field(c.index))
		}
		table.AddRow(row...)
	}
	return table
}

// flattenMap adds one row per leaf; nested map keys are joined with dots.
func flattenMap(table *Table, prefix string, v reflect.Value) {
	iter := v.MapRange()
	for iter.Next() {
		key := fmt.Sprint(iter.Key().Interface())
		if prefix != "" {
			key = prefix + "." + key
		}
		val := iter.Value()
		for val.Kind() == reflect.Interface && !val.IsNil() {
			val = val.Elem()
		}
		if val.Kind() == reflect.Map && val.Len() > 0 {
			flattenMap(table, key, val)
			continue
		}
		table.AddRow(key, formatValue(val))
	}
}

type column struct {
	name  string
	index int
}

// columns lists exported fields named by their json tag. A table:"-" tag
// hides a field.
func columns(t reflect.Type) []column {
	var out []column
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Tag.Get("table") == "-" {
			continue
		}
		name := sf.Name
		if n, _, _ := strings.Cut(sf.Tag.Get("json"), ","); n != "" && n != "-" {
			name = n
		}
		out = append(out, column{name: name, index: i})
	}
	return out
}

func cell(v any) string {
	if v == nil {
		return "(nil)"
	}
	return formatValue(reflect.ValueOf(v))
}

func formatValue(v reflect.Value) string {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr) {
		if v.IsNil() {
			return "-"
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return "-"
	}

	switch x := v.Interface().(type) {
	case time.Time:
		if x.IsZero() {
			return "-"
		}
		return x.Format(time.RFC3339)
	case time.Duration:
		return x.String()
	}

	switch v.Kind() {
	case reflect.String:
		if v.Len() == 0 {
			return "-"
		}
		return v.String()
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', 2, 64)
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	default:
		return fmt.Sprint(v.Interface())
	}
}

// Table is rendered with one tab-aligned line per row.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render writes the table with headers.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions writes the table, optionally without the header row.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}
