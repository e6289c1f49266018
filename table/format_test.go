package table

import (
	"strings"
	"testing"
)

type testRow struct {
	name  string
	value int
	note  string
}

var testFormatters = map[string]Formatter{
	"Name": {
		Fmt:  func(r any, _ PrintMods) string { return r.(*testRow).name },
		Help: "The name",
	},
	"Value": {
		Fmt: func(r any, _ PrintMods) string {
			return strings.Repeat("*", r.(*testRow).value)
		},
		Help: "The value",
	},
	"Note": {
		Fmt: func(r any, mods PrintMods) string {
			n := r.(*testRow).note
			if n == "" && mods&(PrintModFixed|PrintModAwk) != 0 {
				return "-"
			}
			return n
		},
		Help: "A note",
	},
}

var testAliases = map[string][]string{
	"default": {"Name", "Value"},
	"all":     {"Name", "Value", "Note"},
}

var testData = []any{
	&testRow{"a", 1, ""},
	&testRow{"bbb", 3, "x \"y\""},
}

func format(t *testing.T, spec string) string {
	fields, others, err := ParseFormatSpec("default", spec, testFormatters, testAliases)
	if err != nil {
		t.Fatalf("Spec %s: %v", spec, err)
	}
	var out strings.Builder
	FormatData(&out, fields, testFormatters, StandardFormatOptions(others), testData)
	return out.String()
}

func TestFixed(t *testing.T) {
	got := format(t, "")
	want := "Name  Value\na     *\nbbb   ***\n"
	if got != want {
		t.Fatalf("Fixed #1: %q", got)
	}
	got = format(t, "all,noheader")
	want = "a    *    -\nbbb  ***  x \"y\"\n"
	if got != want {
		t.Fatalf("Fixed #2: %q", got)
	}
}

func TestCsv(t *testing.T) {
	got := format(t, "Note,Name,csv,header")
	want := "Note,Name\n,a\n\"x \"\"y\"\"\",bbb\n"
	if got != want {
		t.Fatalf("Csv #1: %q", got)
	}
	// Options alone select the default fields
	got = format(t, "csv")
	want = "a,*\nbbb,***\n"
	if got != want {
		t.Fatalf("Csv #2: %q", got)
	}
}

func TestJson(t *testing.T) {
	got := format(t, "Name,Note,json,header")
	want := "[{\"Name\":\"a\",\"Note\":\"\"},{\"Name\":\"bbb\",\"Note\":\"x \\\"y\\\"\"}]\n"
	if got != want {
		t.Fatalf("Json #1: %q", got)
	}
}

func TestAwk(t *testing.T) {
	got := format(t, "Note,Value,awk")
	want := "- *\nx_\"y\" ***\n"
	if got != want {
		t.Fatalf("Awk #1: %q", got)
	}
	got = format(t, "Name,awk,header")
	want = "Name\na\nbbb\n"
	if got != want {
		t.Fatalf("Awk #2: %q", got)
	}
}

func TestUnknownField(t *testing.T) {
	_, _, err := ParseFormatSpec("default", "Name,Bogus", testFormatters, testAliases)
	if err == nil {
		t.Fatalf("Should fail #1")
	}
}

func TestQuoteJson(t *testing.T) {
	if QuoteJson("plain") != "plain" {
		t.Fatalf("Quote #1")
	}
	if QuoteJson("a\tb\\c") != "a b\\\\c" {
		t.Fatalf("Quote #2: %s", QuoteJson("a\tb\\c"))
	}
}

func TestFormatHelp(t *testing.T) {
	var out strings.Builder
	FormatHelp(&out, testFormatters, testAliases)
	s := out.String()
	if !strings.Contains(s, "Value") || !strings.Contains(s, "default") || !strings.Contains(s, "noheader") {
		t.Fatalf("Help: %s", s)
	}
}
