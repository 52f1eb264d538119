package row

import "testing"

func TestParseType(t *testing.T) {
	t.Parallel()

	cases := map[string]Type{
		"number":  Number,
		"Integer": Integer,
		"int":     Integer,
		"text":    String,
		"":        String,
		"DATE":    Date,
		"bool":    Boolean,
	}
	for in, want := range cases {
		got, err := ParseType(in)
		if err != nil {
			t.Fatalf("ParseType(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseType(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseType("blob"); err == nil {
		t.Fatalf("ParseType(blob) = nil error, want error")
	}
}

func TestShape_IndexOfCloneAppend(t *testing.T) {
	t.Parallel()

	s := NewShape(Meta{Name: "id", Type: Integer}, Meta{Name: "name", Type: String})
	if got := s.IndexOf("name"); got != 1 {
		t.Fatalf("IndexOf(name) = %d, want 1", got)
	}
	if got := s.IndexOf("NAME"); got != -1 {
		t.Fatalf("IndexOf is case-sensitive; got %d", got)
	}
	if got := s.IndexOf(""); got != -1 {
		t.Fatalf("IndexOf(\"\") = %d, want -1", got)
	}

	c := s.Clone()
	c.Append(Meta{Name: "extra", Type: Number})
	c.Set(0, Meta{Name: "id", Type: String})

	if s.Len() != 2 || c.Len() != 3 {
		t.Fatalf("Len: orig=%d clone=%d; want 2 and 3", s.Len(), c.Len())
	}
	if s.Field(0).Type != Integer {
		t.Fatalf("clone mutation leaked into original: %v", s.Field(0))
	}
	if got := c.String(); got != "[id:String, name:String, extra:Number]" {
		t.Fatalf("String() = %q", got)
	}
}

func TestShape_NilLen(t *testing.T) {
	var s *Shape
	if s.Len() != 0 || s.IndexOf("x") != -1 {
		t.Fatalf("nil shape should be empty")
	}
}
