// There are three operations on host list patterns and sets of host names.
//
// - We can *expand* a pattern or multi-pattern into a set of concrete host names
// - We can *compress* a set of concrete host names into a multi-pattern
// - We can *split* a multi-pattern into a set of patterns
//
// The following grammar pertains to all of these; it is the compact host list notation used by
// Slurm (`NodeList` in sacct output, `nodes` directives in the rate configuration):
//
//   multi-pattern   ::= pattern ("," pattern)*
//   pattern         ::= pattern-element ("." pattern-element)*
//   pattern-element ::= fragment+
//   fragment        ::= literal | range
//   literal         ::= <longest nonempty string of characters not containing "[" or "," or "]" or ".">
//   range           ::= "[" range-elt ("," range-elt)* "]"
//   range-elt       ::= number | number "-" number
//   number          ::= <nonempty string of 0..9, to be interpreted as decimal>
//
// The following restrictions apply:
//
// - In a range A-B, A must be no greater than B or the pattern is invalid
// - If the first number of a range element has a leading zero then the expansion of that element is
//   zero-padded to the width of that number, so "c[08-10]" expands to c08, c09, c10.  This is what
//   Slurm does.
// - An expansion may not exceed MaxExpansion names, a larger range is almost certainly an error
// - The expansion of the result of compression of a set of hostnames H must yield exactly the set H
// - Compression does not have a unique result and is not required to be optimal
// - However, compressing the list [y,x] and the list [x,y] must yield the same result, since the
//   compressed form is printed in reports that must be reproducible.

package hostglob

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// The largest number of host names any pattern or multi-pattern may expand to.
const MaxExpansion = 1_000_000

var errTooLarge = fmt.Errorf("Expansion exceeds %d names", MaxExpansion)

// This takes a <multi-pattern> according to the grammar above and returns a list of individual
// <pattern>s in that list.  It requires a bit of logic because each pattern may contain a fragment
// that contains a comma.

func SplitMultiPattern(s string) ([]string, error) {
	patterns := make([]string, 0)
	if s == "" {
		return patterns, nil
	}
	insideBrackets := false
	start := -1
	for ix, c := range s {
		if c == '[' {
			if insideBrackets {
				return nil, fmt.Errorf("Illegal pattern: nested brackets")
			}
			insideBrackets = true
		} else if c == ']' {
			if !insideBrackets {
				return nil, fmt.Errorf("Illegal pattern: unmatched end bracket")
			}
			insideBrackets = false
		} else if c == ',' && !insideBrackets {
			if start == -1 {
				return nil, fmt.Errorf("Illegal pattern: Empty host name")
			}
			patterns = append(patterns, s[start:ix])
			start = -1
			continue
		}
		if start == -1 {
			start = ix
		}
	}
	if insideBrackets {
		return nil, fmt.Errorf("Illegal pattern: Missing end bracket")
	}
	if start == len(s) || start == -1 {
		return nil, fmt.Errorf("Illegal pattern: Empty host name")
	}
	patterns = append(patterns, s[start:])
	return patterns, nil
}

// Expand a <multi-pattern> into the list of host names it denotes, in pattern order.  Duplicates
// are not removed.

func ExpandMultiPattern(s string) ([]string, error) {
	patterns, err := SplitMultiPattern(s)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0)
	for _, p := range patterns {
		xs, err := ExpandPattern(p)
		if err != nil {
			return nil, fmt.Errorf("In pattern %s: %w", p, err)
		}
		if len(names)+len(xs) > MaxExpansion {
			return nil, errTooLarge
		}
		names = append(names, xs...)
	}
	return names, nil
}

// This takes a single <pattern> from the grammar above and expands it.

func ExpandPattern(s string) ([]string, error) {
	before, after, hasTail := strings.Cut(s, ".")
	headExpansions, err := expandPatternElement(before)
	if err != nil {
		return nil, err
	}
	if !hasTail {
		return headExpansions, nil
	}

	tailExpansions, err := ExpandPattern(after)
	if err != nil {
		return nil, err
	}
	if len(headExpansions)*len(tailExpansions) > MaxExpansion {
		return nil, errTooLarge
	}
	expansions := make([]string, 0, len(headExpansions)*len(tailExpansions))
	for _, h := range headExpansions {
		for _, t := range tailExpansions {
			expansions = append(expansions, h+"."+t)
		}
	}
	return expansions, nil
}

var errNoMoreFragments = errors.New("No more fragments")

func expandPatternElement(s string) ([]string, error) {
	r := strings.NewReader(s)
	fragments := make([]any, 0)
	for {
		fragment, err := parseFragment(r)
		if err != nil {
			if err == errNoMoreFragments {
				break
			}
			return nil, err
		}
		fragments = append(fragments, fragment)
	}
	if len(fragments) == 0 {
		return nil, errors.New("Empty element")
	}
	tails := []string{""}
	for i := len(fragments) - 1; i >= 0; i-- {
		switch f := fragments[i].(type) {
		case string:
			xs := make([]string, 0, len(tails))
			for _, t := range tails {
				xs = append(xs, f+t)
			}
			tails = xs
		case []string:
			if len(tails)*len(f) > MaxExpansion {
				return nil, errTooLarge
			}
			xs := make([]string, 0, len(tails)*len(f))
			for _, n := range f {
				for _, t := range tails {
					xs = append(xs, n+t)
				}
			}
			tails = xs
		default:
			panic("Unexpected fragment")
		}
	}
	return tails, nil
}

// A range fragment is returned as the list of formatted numbers it denotes, padding already
// applied.

func parseFragment(r *strings.Reader) (any, error) {
	switch c := getc(r); c {
	case 0:
		return nil, errNoMoreFragments
	case '[':
		needOne := true
		nodes := []string{}
		for {
			if eatc(r, ']') {
				if needOne {
					return nil, errors.New("Expected number")
				}
				break
			}
			needOne = false
			n, width, err := readNumber(r)
			if err != nil {
				return nil, err
			}
			if eatc(r, '-') {
				m, _, err := readNumber(r)
				if err != nil {
					return nil, err
				}
				if n > m {
					return nil, errors.New("Bad range")
				}
				if m-n >= uint64(MaxExpansion-len(nodes)) {
					return nil, errTooLarge
				}
				for n <= m {
					nodes = append(nodes, formatNumber(n, width))
					n++
				}
			} else {
				if len(nodes) >= MaxExpansion {
					return nil, errTooLarge
				}
				nodes = append(nodes, formatNumber(n, width))
			}
			if eatc(r, ',') {
				needOne = true
			} else if eatc(r, ']') {
				ungetc(r, ']')
			} else {
				return nil, errors.New("Unexpected character")
			}
		}
		return nodes, nil
	case ',':
		return nil, errors.New("Unexpected ','")
	case '.':
		return nil, errors.New("Unexpected '.'")
	case ']':
		return nil, errors.New("Unexpected ']'")
	default:
		literal := string(c)
		for {
			c := getc(r)
			if c == 0 || c == '[' || c == ',' || c == '.' || c == ']' {
				ungetc(r, c)
				break
			}
			literal = literal + string(c)
		}
		return literal, nil
	}
}

// Returns the number and the width it should be padded to, which is zero unless the digit string
// has a leading zero.

func readNumber(r io.RuneScanner) (uint64, int, error) {
	cs := ""
	for {
		c := getc(r)
		if c < '0' || c > '9' {
			ungetc(r, c)
			break
		}
		cs = cs + string(c)
	}
	if cs == "" {
		return 0, 0, errors.New("Expected number")
	}
	n, err := strconv.ParseUint(cs, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	width := 0
	if len(cs) > 1 && cs[0] == '0' {
		width = len(cs)
	}
	return n, width, nil
}

func formatNumber(n uint64, width int) string {
	if width > 0 {
		return fmt.Sprintf("%0*d", width, n)
	}
	return strconv.FormatUint(n, 10)
}

func eatc(r io.RuneScanner, x rune) bool {
	c := getc(r)
	if c == x {
		return true
	}
	ungetc(r, c)
	return false
}

func getc(r io.RuneScanner) rune {
	c, _, err := r.ReadRune()
	if err == io.EOF {
		return 0
	}
	return c
}

func ungetc(r io.RuneScanner, c rune) {
	if c != 0 {
		r.UnreadRune()
	}
}

// Given a list of valid <hostname>s, return an abbreviated list that uses <pattern> syntax where
// possible.  The result is sorted.
//
// For simplicity, for host names of the form `a.b.c...` we will not try to compress anything in the
// `b.c...` portion, and within the `a` portions we will try to compress only the rightmost digit
// strings.  Digit strings with a leading zero are only grouped with digit strings of the same
// width, so that the padding survives expansion.

var withDigitsRe = regexp.MustCompile(`^(.*?)(\d+)(\D*)$`)

func CompressHostnames(hosts []string) []string {
	// Suffixes is a map from `b.c...` portion to `a` portion of name.
	suffixes := make(map[string][]string)
	for _, h := range hosts {
		before, after, _ := strings.Cut(h, ".")
		suffixes[after] = append(suffixes[after], before)
	}

	result := make([]string, 0)
	for suffix, firstelts := range suffixes {
		// Key is prefix "," postfix "," width
		same := make(map[string][]uint64)
		seen := make(map[string]bool)
		for _, elt := range firstelts {
			if seen[elt] {
				continue
			}
			seen[elt] = true
			ms := withDigitsRe.FindStringSubmatch(elt)
			if ms == nil {
				result = pushHostName(result, elt, suffix)
				continue
			}
			n, err := strconv.ParseUint(ms[2], 10, 64)
			if err != nil {
				result = pushHostName(result, elt, suffix)
				continue
			}
			width := 0
			if len(ms[2]) > 1 && ms[2][0] == '0' {
				width = len(ms[2])
			}
			key := ms[1] + "," + ms[3] + "," + strconv.Itoa(width)
			same[key] = append(same[key], n)
		}

		// Unpadded numbers of the same width as a padded group can join it.
		for key, ns := range same {
			a, rest, _ := strings.Cut(key, ",")
			b, w, _ := strings.Cut(rest, ",")
			if w != "0" {
				continue
			}
			width := 0
			keep := ns[:0]
			for _, n := range ns {
				width = len(strconv.FormatUint(n, 10))
				padded := a + "," + b + "," + strconv.Itoa(width)
				if _, found := same[padded]; found && width > 1 {
					same[padded] = append(same[padded], n)
				} else {
					keep = append(keep, n)
				}
			}
			same[key] = keep
		}

		for key, ns := range same {
			if len(ns) == 0 {
				continue
			}
			a, rest, _ := strings.Cut(key, ",")
			b, w, _ := strings.Cut(rest, ",")
			width, _ := strconv.Atoi(w)
			result = pushHostName(result, a+compressRange(ns, width)+b, suffix)
		}
	}

	sort.Strings(result)
	return result
}

func pushHostName(result []string, elt, suffix string) []string {
	if suffix != "" {
		return append(result, elt+"."+suffix)
	}
	return append(result, elt)
}

func compressRange(xs []uint64, width int) string {
	if len(xs) == 1 {
		return formatNumber(xs[0], width)
	}
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	s := ""
	for i := 0; i < len(xs); {
		first := xs[i]
		prev := first
		i++
		for i < len(xs) && xs[i] == prev+1 {
			prev = xs[i]
			i++
		}
		if s != "" {
			s += ","
		}
		if first != prev {
			s += formatNumber(first, width) + "-" + formatNumber(prev, width)
		} else {
			s += formatNumber(first, width)
		}
	}
	return "[" + s + "]"
}
