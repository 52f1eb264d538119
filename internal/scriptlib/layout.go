package scriptlib

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Scripts describe date formats with the SimpleDateFormat letters users of
// the step already know (yyyy-MM-dd HH:mm:ss). GoLayout translates those into
// a Go reference layout. Results are cached per pattern.

var layoutCache sync.Map // pattern -> string

// DefaultDatePattern is used by Str2Date and Date2Str when no pattern is given.
const DefaultDatePattern = "yyyy/MM/dd HH:mm:ss.SSS"

// GoLayout converts a date pattern such as "dd.MM.yyyy HH:mm" to the
// equivalent Go layout. Text in single quotes is copied literally and '' is a
// literal quote. Unsupported pattern letters are an error.
func GoLayout(pattern string) (string, error) {
	if v, ok := layoutCache.Load(pattern); ok {
		return v.(string), nil
	}
	layout, err := convertPattern(pattern)
	if err != nil {
		return "", err
	}
	layoutCache.Store(pattern, layout)
	return layout, nil
}

func convertPattern(p string) (string, error) {
	var b strings.Builder
	rs := []rune(p)
	for i := 0; i < len(rs); {
		c := rs[i]

		if c == '\'' {
			if i+1 < len(rs) && rs[i+1] == '\'' {
				b.WriteRune('\'')
				i += 2
				continue
			}
			j := i + 1
			for j < len(rs) && rs[j] != '\'' {
				b.WriteRune(rs[j])
				j++
			}
			if j >= len(rs) {
				return "", fmt.Errorf("date pattern %q: unterminated quote", p)
			}
			i = j + 1
			continue
		}

		if !isPatternLetter(c) {
			b.WriteRune(c)
			i++
			continue
		}

		j := i
		for j < len(rs) && rs[j] == c {
			j++
		}
		n := j - i
		tok, err := layoutToken(c, n)
		if err != nil {
			return "", fmt.Errorf("date pattern %q: %w", p, err)
		}
		b.WriteString(tok)
		i = j
	}
	return b.String(), nil
}

func isPatternLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func layoutToken(c rune, n int) (string, error) {
	switch c {
	case 'y':
		if n == 2 {
			return "06", nil
		}
		return "2006", nil
	case 'M':
		switch {
		case n >= 4:
			return "January", nil
		case n == 3:
			return "Jan", nil
		case n == 2:
			return "01", nil
		default:
			return "1", nil
		}
	case 'd':
		if n >= 2 {
			return "02", nil
		}
		return "2", nil
	case 'D':
		return "002", nil
	case 'E':
		if n >= 4 {
			return "Monday", nil
		}
		return "Mon", nil
	case 'H':
		// Go has no unpadded 24h hour.
		return "15", nil
	case 'h':
		if n >= 2 {
			return "03", nil
		}
		return "3", nil
	case 'm':
		if n >= 2 {
			return "04", nil
		}
		return "4", nil
	case 's':
		if n >= 2 {
			return "05", nil
		}
		return "5", nil
	case 'S':
		return strings.Repeat("0", n), nil
	case 'a':
		return "PM", nil
	case 'z':
		return "MST", nil
	case 'Z':
		return "-0700", nil
	case 'X':
		switch n {
		case 1:
			return "Z07", nil
		case 2:
			return "Z0700", nil
		default:
			return "Z07:00", nil
		}
	}
	return "", fmt.Errorf("unsupported pattern letter %q", string(c))
}

// Str2Date parses s with a date pattern in loc (time.Local when nil).
// Fractional seconds written as SSS must directly follow a '.' or ','.
func Str2Date(s, pattern string, loc *time.Location) (time.Time, error) {
	if pattern == "" {
		pattern = DefaultDatePattern
	}
	layout, err := GoLayout(pattern)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(layout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("str2date %q with %q: %w", s, pattern, err)
	}
	return t, nil
}

// Date2Str formats d with a date pattern.
func Date2Str(d time.Time, pattern string) (string, error) {
	if pattern == "" {
		pattern = DefaultDatePattern
	}
	layout, err := GoLayout(pattern)
	if err != nil {
		return "", err
	}
	return d.Format(layout), nil
}

// IsDate reports whether s parses with pattern.
func IsDate(s, pattern string) bool {
	_, err := Str2Date(s, pattern, time.UTC)
	return err == nil
}
