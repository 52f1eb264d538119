// Package scriptlib holds the stateless value helpers exposed to scripts:
// date arithmetic, padding and trimming, checksums, decode tables and
// format conversions. Functions here know nothing about the interpreter;
// the scripting package adapts them to script values.
package scriptlib

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const msPerDay = 24 * 60 * 60 * 1000

// ErrUnknownUnit is returned for date units outside y, m, d, wd, w, ss, mi, hh.
var ErrUnknownUnit = errors.New("unknown date unit")

// DateDiff returns d2 - d1 expressed in unit.
//
// Units: y (calendar years), m (calendar months), d (days), wd (weekdays),
// w (weeks), hh (hours), mi (minutes), ss (seconds). Millisecond based units
// add the zone offset delta between both dates when compensateTZ is set, so a
// DST switch inside the range does not lose or gain an hour.
//
// wd counts the Monday..Friday days strictly between d1 and d2, both ends
// excluded; the result is negative when d2 precedes d1.
func DateDiff(d1, d2 time.Time, unit string, compensateTZ bool) (int64, error) {
	switch strings.ToLower(unit) {
	case "y":
		return int64(d2.Year() - d1.Year()), nil
	case "m":
		return int64((d2.Year()-d1.Year())*12 + int(d2.Month()) - int(d1.Month())), nil
	case "wd":
		return weekdaysBetween(d1, d2), nil
	}

	ms := d2.UnixMilli() - d1.UnixMilli()
	if compensateTZ {
		_, o1 := d1.Zone()
		_, o2 := d2.Zone()
		ms += int64(o2-o1) * 1000
	}

	switch strings.ToLower(unit) {
	case "d":
		return ms / msPerDay, nil
	case "w":
		return ms / (7 * msPerDay), nil
	case "hh":
		return ms / (60 * 60 * 1000), nil
	case "mi":
		return ms / (60 * 1000), nil
	case "ss":
		return ms / 1000, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnknownUnit, unit)
	}
}

func weekdaysBetween(d1, d2 time.Time) int64 {
	start := dayOf(d1)
	end := dayOf(d2)
	if start.Equal(end) {
		return 0
	}

	step := -1
	if end.Before(start) {
		step = 1
	}

	var n int64
	for cur := end.AddDate(0, 0, step); (step < 0 && cur.After(start)) || (step > 0 && cur.Before(start)); cur = cur.AddDate(0, 0, step) {
		if IsWorkingDay(cur) {
			n++
		}
	}
	if step > 0 {
		return -n
	}
	return n
}

// DateAdd adds n units to d. Month and year arithmetic clamps to the last day
// of the target month (Jan 31 + 1m = Feb 28/29).
//
// wd advances one day at a time and counts the day being left when it is a
// weekday, stopping once n weekdays were counted. Non-positive n leaves d
// unchanged for wd.
func DateAdd(d time.Time, unit string, n int) (time.Time, error) {
	switch strings.ToLower(unit) {
	case "y":
		return addMonths(d, 12*n), nil
	case "m":
		return addMonths(d, n), nil
	case "d":
		return d.AddDate(0, 0, n), nil
	case "w":
		return d.AddDate(0, 0, 7*n), nil
	case "wd":
		cur := d
		for counted := 0; counted < n; {
			leaving := cur
			cur = cur.AddDate(0, 0, 1)
			if IsWorkingDay(leaving) {
				counted++
			}
		}
		return cur, nil
	case "hh":
		return d.Add(time.Duration(n) * time.Hour), nil
	case "mi":
		return d.Add(time.Duration(n) * time.Minute), nil
	case "ss":
		return d.Add(time.Duration(n) * time.Second), nil
	default:
		return time.Time{}, fmt.Errorf("%w %q", ErrUnknownUnit, unit)
	}
}

func addMonths(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	first := time.Date(y, m, 1, d.Hour(), d.Minute(), d.Second(), d.Nanosecond(), d.Location())
	target := first.AddDate(0, n, 0)
	if last := daysIn(target.Year(), target.Month(), d.Location()); day > last {
		day = last
	}
	return target.AddDate(0, 0, day-1)
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}

func dayOf(d time.Time) time.Time {
	y, m, dd := d.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, d.Location())
}

// IsWorkingDay reports whether d falls on Monday..Friday.
func IsWorkingDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextWorkingDay returns the first weekday strictly after d.
func NextWorkingDay(d time.Time) time.Time {
	next := d.AddDate(0, 0, 1)
	for !IsWorkingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// FiscalDate maps d into a fiscal calendar whose year starts on offset
// ("dd.MM"): the result is January 1st of the following year plus the number
// of whole days between the offset date of d's year and d.
func FiscalDate(d time.Time, offset string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(offset), ".")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("fiscal offset %q: want dd.MM", offset)
	}
	var dd, mm int
	if _, err := fmt.Sscanf(parts[0]+" "+parts[1], "%d %d", &dd, &mm); err != nil {
		return time.Time{}, fmt.Errorf("fiscal offset %q: %w", offset, err)
	}
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return time.Time{}, fmt.Errorf("fiscal offset %q: out of range", offset)
	}

	loc := d.Location()
	start := time.Date(d.Year(), time.Month(mm), dd, 0, 0, 0, 0, loc)
	fiscal := time.Date(d.Year()+1, time.January, 1, 0, 0, 0, 0, loc)
	days := int((d.UnixMilli() - start.UnixMilli()) / msPerDay)
	return fiscal.AddDate(0, 0, days), nil
}

// Quarter returns 1..4. Zero-based months 0-2 are Q1, 3-5 Q2, 6-8 Q3 and
// everything else Q4.
func Quarter(d time.Time) int {
	m := int(d.Month()) - 1
	switch {
	case m <= 2:
		return 1
	case m <= 5:
		return 2
	case m <= 8:
		return 3
	default:
		return 4
	}
}

// Week returns the ISO-8601 week number of d.
func Week(d time.Time) int {
	_, w := d.ISOWeek()
	return w
}

// DayNumber extracts a day index from d:
//
//	y  day of year (1..366)
//	m  day of month (1..31)
//	w  day of week, Sunday = 1
//	wm week of month, weeks starting on Sunday
func DayNumber(d time.Time, kind string) (int, error) {
	switch strings.ToLower(kind) {
	case "y":
		return d.YearDay(), nil
	case "m":
		return d.Day(), nil
	case "w":
		return int(d.Weekday()) + 1, nil
	case "wm":
		first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
		return (d.Day()+int(first.Weekday())-1)/7 + 1, nil
	default:
		return 0, fmt.Errorf("unknown day number kind %q (use y, m, w, wm)", kind)
	}
}

// TruncDate clears date fields below level:
//
//	5 year start, 4 month start, 3 day start, 2 hour, 1 minute, 0 second.
func TruncDate(d time.Time, level int) (time.Time, error) {
	if level < 0 || level > 5 {
		return time.Time{}, fmt.Errorf("truncDate level %d out of range 0..5", level)
	}
	y, mo, day := d.Date()
	h, mi, s := d.Clock()
	ns := d.Nanosecond()

	switch level {
	case 5:
		mo = time.January
		fallthrough
	case 4:
		day = 1
		fallthrough
	case 3:
		h = 0
		fallthrough
	case 2:
		mi = 0
		fallthrough
	case 1:
		s = 0
		fallthrough
	case 0:
		ns = 0
	}
	return time.Date(y, mo, day, h, mi, s, ns, d.Location()), nil
}
