package scriptlib

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Lpad left-pads s with repetitions of pad until it is n runes long. The last
// repetition is cut short when pad does not divide the gap. Strings already at
// least n runes long, and an empty pad, return s unchanged.
func Lpad(s, pad string, n int) string {
	fill := padding(s, pad, n)
	return fill + s
}

// Rpad is Lpad on the right.
func Rpad(s, pad string, n int) string {
	return s + padding(s, pad, n)
}

func padding(s, pad string, n int) string {
	gap := n - runeLen(s)
	if gap <= 0 || pad == "" {
		return ""
	}
	pr := []rune(pad)
	out := make([]rune, 0, gap)
	for len(out) < gap {
		out = append(out, pr[len(out)%len(pr)])
	}
	return string(out)
}

// FillString returns ch repeated n times. Only the first rune of ch is used;
// n <= 0 or an empty ch yield "".
func FillString(ch string, n int) string {
	if n <= 0 || ch == "" {
		return ""
	}
	r := []rune(ch)[0]
	return strings.Repeat(string(r), n)
}

// ErrNegativeStart is returned by Substr for a negative start index.
var ErrNegativeStart = errors.New("substr: negative start index")

// Substr returns the runes of s in [start, start+length). Without a length it
// runs to the end of s. A negative length clamps to zero, an end past the
// string clamps to its length and a start past the end gives "".
func Substr(s string, start int, length ...int) (string, error) {
	if start < 0 {
		return "", fmt.Errorf("%w %d", ErrNegativeStart, start)
	}
	rs := []rune(s)
	if start >= len(rs) {
		return "", nil
	}
	end := len(rs)
	if len(length) > 0 {
		l := max(length[0], 0)
		end = min(start+l, len(rs))
	}
	return string(rs[start:end]), nil
}

func Ltrim(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }
func Rtrim(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }
func Trim(s string) string  { return strings.TrimSpace(s) }

var titleCaser = cases.Title(language.Und)

// InitCap upper-cases the first letter of every word and lower-cases the rest.
func InitCap(s string) string {
	return titleCaser.String(s)
}

// RemoveAccents strips combining marks after canonical decomposition, so
// "Příliš žluťoučký" becomes "Prilis zlutoucky".
func RemoveAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// RemoveCRLF drops carriage returns and line feeds.
func RemoveCRLF(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// RemoveDigits drops every decimal digit.
func RemoveDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, s)
}

// DigitsOnly keeps only decimal digits.
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

// IndexOf returns the rune index of sub in s at or after from, or -1.
func IndexOf(s, sub string, from int) int {
	rs := []rune(s)
	from = max(from, 0)
	if from > len(rs) {
		return -1
	}
	i := strings.Index(string(rs[from:]), sub)
	if i < 0 {
		return -1
	}
	return from + runeLen(string(rs[from:])[:i])
}

// Replace applies regular expression replacements pairwise:
// Replace(s, re1, repl1, re2, repl2, ...). A trailing pattern with no
// replacement removes its matches.
func Replace(s string, pairs ...string) (string, error) {
	for i := 0; i < len(pairs); i += 2 {
		re, err := regexp.Compile(pairs[i])
		if err != nil {
			return "", fmt.Errorf("replace: %w", err)
		}
		repl := ""
		if i+1 < len(pairs) {
			repl = pairs[i+1]
		}
		s = re.ReplaceAllString(s, repl)
	}
	return s, nil
}

// OccurrenceCount counts non-overlapping occurrences of sub in s.
func OccurrenceCount(s, sub string) int {
	if sub == "" {
		return 0
	}
	return strings.Count(s, sub)
}

func EscapeXML(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func EscapeHTML(s string) string   { return html.EscapeString(s) }
func UnescapeHTML(s string) string { return html.UnescapeString(s) }

// EscapeSQL doubles single quotes.
func EscapeSQL(s string) string { return strings.ReplaceAll(s, "'", "''") }

func runeLen(s string) int { return len([]rune(s)) }
