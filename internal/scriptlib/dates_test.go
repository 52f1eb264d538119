package scriptlib

import (
	"errors"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateDiff(t *testing.T) {
	cases := []struct {
		d1, d2 time.Time
		unit   string
		want   int64
	}{
		{day(2024, 1, 1), day(2024, 1, 8), "wd", 4},
		{day(2024, 1, 8), day(2024, 1, 1), "wd", -4},
		{day(2024, 1, 1), day(2024, 1, 3), "wd", 1},
		{day(2024, 1, 1), day(2024, 1, 2), "wd", 0},
		{day(2024, 1, 5), day(2024, 1, 8), "wd", 0},
		{day(2024, 1, 6), day(2024, 1, 6), "wd", 0},
		{day(2024, 1, 1), day(2024, 1, 8), "d", 7},
		{day(2024, 1, 1), day(2024, 1, 15), "w", 2},
		{day(2023, 11, 30), day(2024, 2, 1), "m", 3},
		{day(2020, 6, 1), day(2024, 1, 1), "y", 4},
		{day(2024, 1, 1), day(2024, 1, 2), "hh", 24},
		{day(2024, 1, 1), day(2024, 1, 1).Add(90 * time.Second), "mi", 1},
		{day(2024, 1, 1), day(2024, 1, 1).Add(90 * time.Second), "SS", 90},
	}
	for _, c := range cases {
		got, err := DateDiff(c.d1, c.d2, c.unit, false)
		if err != nil {
			t.Fatalf("DateDiff(%s,%s,%s): %v", c.d1, c.d2, c.unit, err)
		}
		if got != c.want {
			t.Fatalf("DateDiff(%s,%s,%s) = %d, want %d", c.d1.Format(time.DateOnly), c.d2.Format(time.DateOnly), c.unit, got, c.want)
		}
	}

	if _, err := DateDiff(day(2024, 1, 1), day(2024, 1, 2), "fortnight", false); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("err = %v, want ErrUnknownUnit", err)
	}
}

func TestDateDiff_CompensateTZ(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Prague")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// DST starts 2024-03-31 in Prague; the wall clock gains an hour.
	d1 := time.Date(2024, 3, 30, 12, 0, 0, 0, loc)
	d2 := time.Date(2024, 3, 31, 12, 0, 0, 0, loc)

	raw, _ := DateDiff(d1, d2, "hh", false)
	comp, _ := DateDiff(d1, d2, "hh", true)
	if raw != 23 || comp != 24 {
		t.Fatalf("raw=%d comp=%d, want 23 and 24", raw, comp)
	}
}

func TestDateAdd(t *testing.T) {
	cases := []struct {
		d    time.Time
		unit string
		n    int
		want time.Time
	}{
		{day(2024, 1, 31), "m", 1, day(2024, 2, 29)},
		{day(2023, 1, 31), "m", 1, day(2023, 2, 28)},
		{day(2024, 2, 29), "y", 1, day(2025, 2, 28)},
		{day(2024, 3, 31), "m", -1, day(2024, 2, 29)},
		{day(2024, 1, 1), "d", 10, day(2024, 1, 11)},
		{day(2024, 1, 1), "w", 2, day(2024, 1, 15)},
		// Fri + 1 weekday: leaving Friday counts, lands on Saturday.
		{day(2024, 1, 5), "wd", 1, day(2024, 1, 6)},
		// Mon + 5 weekdays lands on the next Saturday.
		{day(2024, 1, 1), "wd", 5, day(2024, 1, 6)},
		// Sat + 1: Saturday and Sunday are skipped, Monday counts.
		{day(2024, 1, 6), "wd", 1, day(2024, 1, 9)},
		{day(2024, 1, 1), "hh", 25, day(2024, 1, 2).Add(time.Hour)},
	}
	for _, c := range cases {
		got, err := DateAdd(c.d, c.unit, c.n)
		if err != nil {
			t.Fatalf("DateAdd(%s,%s,%d): %v", c.d, c.unit, c.n, err)
		}
		if !got.Equal(c.want) {
			t.Fatalf("DateAdd(%s,%s,%d) = %s, want %s", c.d.Format(time.DateOnly), c.unit, c.n, got, c.want)
		}
	}
}

func TestQuarter(t *testing.T) {
	want := []int{1, 1, 1, 2, 2, 2, 3, 3, 3, 4, 4, 4}
	for m := 1; m <= 12; m++ {
		if got := Quarter(day(2024, time.Month(m), 15)); got != want[m-1] {
			t.Fatalf("Quarter(month %d) = %d, want %d", m, got, want[m-1])
		}
	}
}

func TestFiscalDate(t *testing.T) {
	// Fiscal year starting 1 April: 15 April is day 14 of the fiscal year.
	got, err := FiscalDate(day(2024, 4, 15), "01.04")
	if err != nil {
		t.Fatal(err)
	}
	if want := day(2025, 1, 15); !got.Equal(want) {
		t.Fatalf("FiscalDate = %s, want %s", got, want)
	}

	if _, err := FiscalDate(day(2024, 1, 1), "2024-04-01"); err == nil {
		t.Fatal("expected error for malformed offset")
	}
	if _, err := FiscalDate(day(2024, 1, 1), "01.13"); err == nil {
		t.Fatal("expected error for month 13")
	}
}

func TestDayNumber(t *testing.T) {
	d := day(2024, 3, 10) // Sunday
	checks := map[string]int{"y": 70, "m": 10, "w": 1, "wm": 3}
	for kind, want := range checks {
		got, err := DayNumber(d, kind)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("DayNumber(%s) = %d, want %d", kind, got, want)
		}
	}
	if _, err := DayNumber(d, "q"); err == nil {
		t.Fatal("expected error")
	}
}

func TestWorkingDays(t *testing.T) {
	if IsWorkingDay(day(2024, 1, 6)) {
		t.Fatal("Saturday is not a working day")
	}
	if got := NextWorkingDay(day(2024, 1, 5)); !got.Equal(day(2024, 1, 8)) {
		t.Fatalf("NextWorkingDay(Fri) = %s", got)
	}
	if got := Week(day(2024, 1, 1)); got != 1 {
		t.Fatalf("Week = %d, want 1", got)
	}
}

func TestTruncDate(t *testing.T) {
	d := time.Date(2024, 7, 19, 13, 45, 30, 123_000_000, time.UTC)
	want := []time.Time{
		time.Date(2024, 7, 19, 13, 45, 30, 0, time.UTC),
		time.Date(2024, 7, 19, 13, 45, 0, 0, time.UTC),
		time.Date(2024, 7, 19, 13, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 19, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for level, w := range want {
		got, err := TruncDate(d, level)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(w) {
			t.Fatalf("TruncDate(level %d) = %s, want %s", level, got, w)
		}
	}
	if _, err := TruncDate(d, 6); err == nil {
		t.Fatal("expected error for level 6")
	}
}
