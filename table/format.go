// Column formatting for tables of records.
//
// A table is described by a map from field names to Formatters and a list of FieldSpecs selecting
// and ordering the fields.  The data are formatted into a column-major matrix of strings that is
// then printed in one of four formats:
//
//   fixed  columns padded to the widest entry, optional header (default on)
//   csv    RFC 4180, optional header
//   json   an array of objects keyed by field name, all values strings
//   awk    space-separated, spaces in values replaced by `_`, optional header
//
// The format spec is a comma-separated list of field names, aliases and options, eg
// "JobID,Total,csv,header".  Options are "fixed", "csv", "json", "awk", "header" and "noheader".

package table

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf8"
)

type PrintMods = int

const (
	PrintModFixed = (1 << iota)
	PrintModJson
	PrintModCsv
	PrintModAwk
)

func ComputePrintMods(opts *FormatOptions) PrintMods {
	switch {
	case opts.Csv:
		return PrintModCsv
	case opts.Json:
		return PrintModJson
	case opts.Awk:
		return PrintModAwk
	default:
		return PrintModFixed
	}
}

// Fmt receives the row and the output format, so that a formatter can, for example, print "-" for
// a missing value in fixed output and nothing in csv.
type Formatter struct {
	Fmt  func(row any, mods PrintMods) string
	Help string
}

type FieldSpec struct {
	Name   string
	Header string
}

type FormatOptions struct {
	Json   bool
	Csv    bool
	Awk    bool
	Fixed  bool
	Header bool
}

const maxFields = 200

// ParseFormatSpec splits spec (or defaults, if spec is "") into the known fields, expanding aliases
// one level, and the set of everything else, which are presumably options.
func ParseFormatSpec(
	defaults, spec string,
	formatters map[string]Formatter,
	aliases map[string][]string,
) (fields []FieldSpec, others map[string]bool, err error) {
	fields = make([]FieldSpec, 0)
	others = make(map[string]bool)
	if spec == "" {
		spec = defaults
	}
	onlyOptions := true
	for _, name := range strings.Split(spec, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if expansion, found := aliases[name]; found {
			for _, x := range expansion {
				if _, found := formatters[x]; found {
					fields = append(fields, FieldSpec{Name: x, Header: x})
				}
			}
			onlyOptions = false
		} else if _, found := formatters[name]; found {
			fields = append(fields, FieldSpec{Name: name, Header: name})
			onlyOptions = false
		} else {
			others[name] = true
		}
		if len(fields) > maxFields {
			return nil, nil, fmt.Errorf("Too many fields")
		}
	}
	// A spec with only options selects the default fields.
	if onlyOptions && spec != defaults {
		var defaultFields []FieldSpec
		defaultFields, _, err = ParseFormatSpec("", defaults, formatters, aliases)
		if err != nil {
			return nil, nil, err
		}
		fields = defaultFields
	}
	for name := range others {
		if !isOption(name) {
			return nil, nil, fmt.Errorf("Unknown field or option: %s", name)
		}
	}
	return fields, others, nil
}

// MT: Constant after initialization; immutable
var options = []string{"fixed", "csv", "json", "awk", "header", "noheader"}

func isOption(s string) bool {
	return slices.Contains(options, s)
}

// The first of csv, json, awk, fixed that is requested wins; fixed is the default.  Header is on by
// default for fixed and off for csv and awk, and never on for json.
func StandardFormatOptions(others map[string]bool) *FormatOptions {
	csv := others["csv"]
	json := others["json"] && !csv
	awk := others["awk"] && !csv && !json
	fixed := !csv && !json && !awk
	header := (fixed && !others["noheader"]) || ((csv || awk) && others["header"])
	return &FormatOptions{
		Csv:    csv,
		Json:   json,
		Awk:    awk,
		Fixed:  fixed,
		Header: header,
	}
}

func FormatData(
	out io.Writer,
	fields []FieldSpec,
	formatters map[string]Formatter,
	opts *FormatOptions,
	data []any,
) {
	mods := ComputePrintMods(opts)

	// cols is a column-major representation of the output matrix, one column per field.
	cols := make([][]string, len(fields))
	for c, f := range fields {
		format := formatters[f.Name].Fmt
		cols[c] = make([]string, len(data))
		for r, x := range data {
			cols[c][r] = format(x, mods)
		}
	}

	switch {
	case opts.Csv:
		formatCsv(out, fields, opts, cols, len(data))
	case opts.Json:
		formatJson(out, fields, cols, len(data))
	case opts.Awk:
		formatAwk(out, fields, opts, cols, len(data))
	default:
		formatFixed(out, fields, opts, cols, len(data))
	}
}

func formatFixed(unbufOut io.Writer, fields []FieldSpec, opts *FormatOptions, cols [][]string, rows int) {
	out := bufio.NewWriter(unbufOut)
	defer out.Flush()

	widths := make([]int, len(fields))
	if opts.Header {
		for col := range fields {
			widths[col] = utf8.RuneCountInString(fields[col].Header)
		}
	}
	for col := range fields {
		for row := 0; row < rows; row++ {
			widths[col] = max(widths[col], utf8.RuneCountInString(cols[col][row]))
		}
	}

	var s strings.Builder
	if opts.Header {
		s.Reset()
		for col := range fields {
			writeStringPadded(&s, widths[col], fields[col].Header)
		}
		fmt.Fprintln(out, strings.TrimRight(s.String(), " "))
	}
	for row := 0; row < rows; row++ {
		s.Reset()
		for col := range fields {
			writeStringPadded(&s, widths[col], cols[col][row])
		}
		fmt.Fprintln(out, strings.TrimRight(s.String(), " "))
	}
}

func writeStringPadded(s *strings.Builder, width int, str string) {
	s.WriteString(str)
	s.WriteString(strings.Repeat(" ", width-utf8.RuneCountInString(str)+2))
}

func formatCsv(out io.Writer, fields []FieldSpec, opts *FormatOptions, cols [][]string, rows int) {
	w := csv.NewWriter(out)
	defer w.Flush()

	outFields := make([]string, len(fields))
	if opts.Header {
		for i := range fields {
			outFields[i] = fields[i].Header
		}
		w.Write(outFields)
	}
	for row := 0; row < rows; row++ {
		for col := range fields {
			outFields[col] = cols[col][row]
		}
		w.Write(outFields)
	}
}

// There's no natural fit for the JSON encoder here, so just do it manually.
func formatJson(unbufOut io.Writer, fields []FieldSpec, cols [][]string, rows int) {
	out := bufio.NewWriter(unbufOut)
	defer out.Flush()

	quotedFields := make([]string, len(fields))
	for i := range fields {
		quotedFields[i] = "\"" + QuoteJson(fields[i].Header) + "\""
	}

	fmt.Fprint(out, "[")
	var s strings.Builder
	for row := 0; row < rows; row++ {
		s.Reset()
		if row > 0 {
			s.WriteRune(',')
		}
		s.WriteRune('{')
		for col := range quotedFields {
			if col > 0 {
				s.WriteRune(',')
			}
			s.WriteString(quotedFields[col])
			s.WriteString(":\"")
			s.WriteString(QuoteJson(cols[col][row]))
			s.WriteRune('"')
		}
		s.WriteRune('}')
		fmt.Fprint(out, s.String())
	}
	fmt.Fprintln(out, "]")
}

// Control characters become spaces; quotes and backslashes are escaped.
func QuoteJson(s string) string {
	if !strings.ContainsFunc(s, func(r rune) bool { return r < ' ' || r == '"' || r == '\\' }) {
		return s
	}
	var t strings.Builder
	for _, r := range s {
		switch {
		case r < ' ':
			r = ' '
		case r == '"' || r == '\\':
			t.WriteRune('\\')
		}
		t.WriteRune(r)
	}
	return t.String()
}

func formatAwk(unbufOut io.Writer, fields []FieldSpec, opts *FormatOptions, cols [][]string, rows int) {
	out := bufio.NewWriter(unbufOut)
	defer out.Flush()

	var line strings.Builder
	writeLine := func(vals func(col int) string) {
		line.Reset()
		for col := range fields {
			if col > 0 {
				line.WriteRune(' ')
			}
			line.WriteString(strings.ReplaceAll(vals(col), " ", "_"))
		}
		fmt.Fprintln(out, line.String())
	}
	if opts.Header {
		writeLine(func(col int) string { return fields[col].Header })
	}
	for row := 0; row < rows; row++ {
		writeLine(func(col int) string { return cols[col][row] })
	}
}

// FormatHelp prints the field names and their help texts, for -fmt help.
func FormatHelp(out io.Writer, formatters map[string]Formatter, aliases map[string][]string) {
	names := make([]string, 0, len(formatters))
	for name := range formatters {
		names = append(names, name)
	}
	slices.Sort(names)
	fmt.Fprintln(out, "Fields:")
	for _, name := range names {
		fmt.Fprintf(out, "  %-14s %s\n", name, formatters[name].Help)
	}
	if len(aliases) > 0 {
		names = names[:0]
		for name := range aliases {
			names = append(names, name)
		}
		slices.Sort(names)
		fmt.Fprintln(out, "Aliases:")
		for _, name := range names {
			fmt.Fprintf(out, "  %-14s %s\n", name, strings.Join(aliases[name], ","))
		}
	}
	fmt.Fprintf(out, "Options:\n  %s\n", strings.Join(options, ", "))
}
