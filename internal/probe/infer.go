package probe

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Inferred column kinds, named after the coerce stage vocabulary.
const (
	kindText   = "text"
	kindInt    = "int"
	kindNumber = "number"
	kindBool   = "bool"
	kindDate   = "date"
	kindStamp  = "timestamp"
)

// columnValues transposes rows into n columns of trimmed, non-empty values.
func columnValues(rows [][]string, n int) [][]string {
	cols := make([][]string, n)
	for _, r := range rows {
		for i, v := range r[:min(n, len(r))] {
			if v = strings.TrimSpace(v); v != "" {
				cols[i] = append(cols[i], v)
			}
		}
	}
	return cols
}

// classify picks the narrowest kind every value satisfies. Integers are
// checked before booleans so 0/1 columns stay numeric.
func classify(vals []string) string {
	if len(vals) == 0 {
		return kindText
	}
	for _, c := range []struct {
		kind string
		ok   func(string) bool
	}{
		{kindInt, isInt},
		{kindBool, isBool},
		{kindNumber, isNumber},
		{kindDate, dateSet.parses},
	} {
		if every(vals, c.ok) {
			return c.kind
		}
	}
	// timestamps, possibly mixed with plain dates
	sawTime := false
	for _, v := range vals {
		switch {
		case stampSet.parses(v):
			sawTime = true
		case !dateSet.parses(v):
			return kindText
		}
	}
	if sawTime {
		return kindStamp
	}
	return kindDate
}

// inferTypeForColumn classifies raw, untrimmed sample values.
func inferTypeForColumn(values []string) string {
	vals := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			vals = append(vals, v)
		}
	}
	return classify(vals)
}

func every(vals []string, ok func(string) bool) bool {
	for _, v := range vals {
		if !ok(v) {
			return false
		}
	}
	return true
}

func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "t", "f", "yes", "no", "y", "n", "ano", "ne":
		return true
	}
	return false
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isNumber mirrors the coerce stage: one decimal comma is accepted when
// there is no dot.
func isNumber(s string) bool {
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeFieldName turns header text into a lowercase ASCII name usable
// both as a SQL column and a script variable. Separators collapse to one
// underscore, other characters are dropped, a leading digit gets "c_" and
// an empty result becomes "col". Names over 63 bytes keep their first 10
// and last 53 bytes.
func normalizeFieldName(s string) string {
	folded, _, _ := transform.String(stripMarks, strings.ToLower(strings.TrimSpace(s)))

	out := make([]byte, 0, len(folded))
	for _, r := range folded {
		switch {
		case 'a' <= r && r <= 'z', '0' <= r && r <= '9':
			out = append(out, byte(r))
		case strings.ContainsRune("_ -.", r):
			if len(out) > 0 && out[len(out)-1] != '_' {
				out = append(out, '_')
			}
		}
	}
	name := strings.TrimRight(string(out), "_")
	if name == "" {
		return "col"
	}
	if name[0] <= '9' {
		name = "c_" + name
	}
	if len(name) > 63 {
		name = name[:10] + name[len(name)-53:]
	}
	return name
}

// layoutSet is an ordered list of time layouts with tie-break preferences.
type layoutSet struct {
	layouts []string
	pref    map[string]int
}

func (ls layoutSet) parses(s string) bool {
	for _, l := range ls.layouts {
		if _, err := time.Parse(l, s); err == nil {
			return true
		}
	}
	return false
}

// best returns the layout parsing the most samples, ties going to the higher
// preference and then to the earlier layout. "" when nothing parses.
func (ls layoutSet) best(samples []string) string {
	best, bestScore, bestPref := "", 0, -1
	for _, l := range ls.layouts {
		score := 0
		for _, s := range samples {
			if _, err := time.Parse(l, s); err == nil {
				score++
			}
		}
		if score == 0 {
			continue
		}
		if p := ls.pref[l]; score > bestScore || (score == bestScore && p > bestPref) {
			best, bestScore, bestPref = l, score, p
		}
	}
	return best
}

// Day-first dates rank above ISO, month-first last.
var dateSet = layoutSet{
	layouts: []string{
		time.DateOnly, "02.01.2006", "01.02.2006", "02/01/2006", "01/02/2006",
		"2 Jan 2006", "02-Jan-2006", "2006/01/02", "20060102",
	},
	pref: map[string]int{
		"02.01.2006": 3, "02/01/2006": 3, "2 Jan 2006": 3, "02-Jan-2006": 3,
		time.DateOnly: 2, "2006/01/02": 2, "20060102": 2,
		"01.02.2006": 1, "01/02/2006": 1,
	},
}

var stampSet = layoutSet{
	layouts: []string{
		time.RFC3339Nano, time.RFC3339, time.DateTime, "2006-01-02 15:04:05.999999999",
		"2006/01/02 15:04:05", "02.01.2006 15:04:05", "02/01/2006 15:04:05",
		"01/02/2006 15:04:05", "2006-01-02T15:04:05Z0700", "2006-01-02 15:04:05 -0700",
	},
	pref: map[string]int{time.RFC3339Nano: 3, time.RFC3339: 2},
}

// setFor returns the layouts that apply to kind.
func setFor(kind string) (layoutSet, bool) {
	switch kind {
	case kindDate:
		return dateSet, true
	case kindStamp:
		return stampSet, true
	}
	return layoutSet{}, false
}

// datasetLayout picks the single layout handed to the coerce stage: the
// layout most date and timestamp columns agree on, ties broken by
// preference and then lexically.
func datasetLayout(kinds, layouts []string) string {
	type tally struct{ n, pref int }
	seen := map[string]tally{}
	for i, l := range layouts {
		if l == "" {
			continue
		}
		set, _ := setFor(kinds[i])
		t := seen[l]
		t.n++
		t.pref = max(t.pref, set.pref[l])
		seen[l] = t
	}
	best, bt := "", tally{n: -1}
	for l, t := range seen {
		if t.n > bt.n || (t.n == bt.n && (t.pref > bt.pref || (t.pref == bt.pref && l < best))) {
			best, bt = l, t
		}
	}
	return best
}
