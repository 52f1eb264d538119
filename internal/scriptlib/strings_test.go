package scriptlib

import (
	"errors"
	"testing"
	"time"
)

func TestPadding(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{Lpad("7", "0", 3), "007"},
		{Lpad("abc", "xy", 6), "xyxabc"},
		{Lpad("abcdef", "0", 3), "abcdef"},
		{Lpad("a", "", 5), "a"},
		{Lpad("a", "0", -2), "a"},
		{Rpad("ab", "-", 4), "ab--"},
		{Rpad("žl", "ů", 3), "žlů"},
		{FillString("x*", 3), "xxx"},
		{FillString("x", -1), ""},
		{FillString("", 4), ""},
	}
	for i, c := range cases {
		if c.got != c.want {
			t.Fatalf("case %d = %q, want %q", i, c.got, c.want)
		}
	}
}

func TestSubstr(t *testing.T) {
	cases := []struct {
		s      string
		start  int
		length []int
		want   string
	}{
		{"hello", 1, []int{3}, "ell"},
		{"hello", 1, nil, "ello"},
		{"hello", 3, []int{99}, "lo"},
		{"hello", 2, []int{-4}, ""},
		{"hello", 9, []int{1}, ""},
		{"čaj", 1, []int{1}, "a"},
	}
	for _, c := range cases {
		got, err := Substr(c.s, c.start, c.length...)
		if err != nil {
			t.Fatalf("Substr(%q,%d,%v): %v", c.s, c.start, c.length, err)
		}
		if got != c.want {
			t.Fatalf("Substr(%q,%d,%v) = %q, want %q", c.s, c.start, c.length, got, c.want)
		}
	}

	if _, err := Substr("x", -1); !errors.Is(err, ErrNegativeStart) {
		t.Fatalf("err = %v, want ErrNegativeStart", err)
	}
}

func TestTextTransforms(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{InitCap("hELLO wORLD"), "Hello World"},
		{RemoveAccents("Příliš žluťoučký kůň"), "Prilis zlutoucky kun"},
		{RemoveCRLF("a\r\nb\nc"), "abc"},
		{RemoveDigits("a1b22c"), "abc"},
		{DigitsOnly("+420 123-456"), "420123456"},
		{Ltrim("  x "), "x "},
		{Rtrim("  x "), "  x"},
		{Trim("\t x \n"), "x"},
		{EscapeXML(`<a href="x">&'`), "&lt;a href=&quot;x&quot;&gt;&amp;&apos;"},
		{EscapeSQL("O'Brien"), "O''Brien"},
		{UnescapeHTML("&lt;b&gt;"), "<b>"},
	}
	for i, c := range cases {
		if c.got != c.want {
			t.Fatalf("case %d = %q, want %q", i, c.got, c.want)
		}
	}
}

func TestIndexOfAndCount(t *testing.T) {
	if got := IndexOf("abcabc", "c", 0); got != 2 {
		t.Fatalf("IndexOf = %d, want 2", got)
	}
	if got := IndexOf("abcabc", "c", 3); got != 5 {
		t.Fatalf("IndexOf from 3 = %d, want 5", got)
	}
	if got := IndexOf("žžc", "c", 0); got != 2 {
		t.Fatalf("IndexOf runes = %d, want 2", got)
	}
	if got := IndexOf("abc", "z", 0); got != -1 {
		t.Fatalf("IndexOf missing = %d", got)
	}
	if got := OccurrenceCount("a,b,,c", ","); got != 3 {
		t.Fatalf("OccurrenceCount = %d, want 3", got)
	}
}

func TestReplace(t *testing.T) {
	got, err := Replace("2024-01-02", "-", "/", "^20", "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "24/01/02" {
		t.Fatalf("Replace = %q", got)
	}
	if _, err := Replace("x", "("); err == nil {
		t.Fatal("expected regexp error")
	}
}

func TestDatePatterns(t *testing.T) {
	layout, err := GoLayout("dd.MM.yyyy HH:mm:ss.SSS")
	if err != nil {
		t.Fatal(err)
	}
	if layout != "02.01.2006 15:04:05.000" {
		t.Fatalf("layout = %q", layout)
	}
	if layout, _ = GoLayout("yyyy-MM-dd'T'HH:mm"); layout != "2006-01-02T15:04" {
		t.Fatalf("quoted layout = %q", layout)
	}
	if _, err := GoLayout("yyyy-QQ"); err == nil {
		t.Fatal("expected error for unsupported letter")
	}

	d, err := Str2Date("19.07.2024", "dd.MM.yyyy", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Equal(time.Date(2024, 7, 19, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Str2Date = %s", d)
	}
	s, _ := Date2Str(d, "yyyy/MM/dd")
	if s != "2024/07/19" {
		t.Fatalf("Date2Str = %q", s)
	}
	if !IsDate("2024-07-19", "yyyy-MM-dd") || IsDate("19/07/2024", "yyyy-MM-dd") {
		t.Fatal("IsDate mismatch")
	}
}
