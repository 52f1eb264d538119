package scriptlib

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// LuhnCheck validates a digit string with the mod-10 checksum used by card
// numbers. Empty input and any non-digit character fail.
func LuhnCheck(s string) bool {
	if s == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// IsEmpty reports a zero-length string.
func IsEmpty(s string) bool { return len(s) == 0 }

// IsNum reports whether s parses as a decimal number.
func IsNum(s string) bool {
	_, err := Str2Num(s)
	return err == nil
}

var mailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// IsMailValid performs a syntactic address check.
func IsMailValid(s string) bool {
	return mailRe.MatchString(strings.TrimSpace(s))
}

// Str2Num parses a decimal number. Surrounding space is ignored and a comma
// is accepted as decimal separator when the string contains no dot.
func Str2Num(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("str2num %q: %w", s, err)
	}
	return f, nil
}

// Num2Str formats f. An empty pattern gives the shortest representation;
// otherwise the pattern's digits after '.' set the decimals and a ',' before
// the '.' turns on thousands grouping ("#,##0.00").
func Num2Str(f float64, pattern string) string {
	if pattern == "" {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	decimals := 0
	intPart := pattern
	if i := strings.IndexByte(pattern, '.'); i >= 0 {
		intPart = pattern[:i]
		for _, c := range pattern[i+1:] {
			if c == '0' || c == '#' {
				decimals++
			}
		}
	}
	out := strconv.FormatFloat(f, 'f', decimals, 64)
	if !strings.Contains(intPart, ",") {
		return out
	}
	return group(out)
}

func group(num string) string {
	sign := ""
	if strings.HasPrefix(num, "-") {
		sign, num = "-", num[1:]
	}
	intPart, frac := num, ""
	if i := strings.IndexByte(num, '.'); i >= 0 {
		intPart, frac = num[:i], num[i:]
	}
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + b.String() + frac
}

// Decode returns the result paired with the first search value equal to
// value: Decode(value, s1, r1, s2, r2, ..., [default]). With an odd number of
// trailing arguments the last one is the default; without a default the
// input value itself is returned when nothing matches.
func Decode(value any, args ...any) any {
	n := len(args)
	hasDefault := n%2 == 1
	if hasDefault {
		n--
	}
	for i := 0; i < n; i += 2 {
		if Equal(value, args[i]) {
			return args[i+1]
		}
	}
	if hasDefault {
		return args[len(args)-1]
	}
	return value
}

// Equal compares two plain values. All numeric kinds compare as float64.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

// JSONValue evaluates a gjson path against doc. ok is false when the path
// does not resolve or doc is not valid JSON. Objects and arrays come back as
// their raw JSON text.
func JSONValue(doc, path string) (v any, ok bool) {
	if !gjson.Valid(doc) {
		return nil, false
	}
	r := gjson.Get(doc, path)
	if !r.Exists() {
		return nil, false
	}
	switch r.Type {
	case gjson.Null:
		return nil, true
	case gjson.False, gjson.True:
		return r.Bool(), true
	case gjson.Number:
		return r.Float(), true
	case gjson.String:
		return r.String(), true
	default:
		return r.Raw, true
	}
}

// Round rounds half away from zero to the given number of decimals.
func Round(f float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(f*p) / p
}
