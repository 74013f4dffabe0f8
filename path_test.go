package minimact

import "testing"

func mustPath(t *testing.T, s string) Path {
	t.Helper()
	p, err := ParsePath(s)
	if err != nil {
		t.Fatalf("ParsePath(%q): %v", s, err)
	}
	return p
}

func TestPathStringRoundTrip(t *testing.T) {
	cases := []struct {
		path Path
		want string
	}{
		{RootPath(), ""},
		{Path{0}, "0"},
		{Path{0, 2, 1}, "0.2.1"},
		{Path{12, 0}, "12.0"},
	}
	for _, tc := range cases {
		if got := tc.path.String(); got != tc.want {
			t.Errorf("String(%v) = %q, want %q", tc.path, got, tc.want)
		}
		parsed, err := ParsePath(tc.want)
		if err != nil {
			t.Fatalf("ParsePath(%q): %v", tc.want, err)
		}
		if !parsed.Equal(tc.path) {
			t.Errorf("ParsePath(%q) = %v, want %v", tc.want, parsed, tc.path)
		}
	}
}

func TestParsePathRejectsGarbage(t *testing.T) {
	for _, s := range []string{"a", "0.x", "-1", "0..1", "0.-2"} {
		if _, err := ParsePath(s); err == nil {
			t.Errorf("ParsePath(%q) should fail", s)
		}
	}
}

func TestPathChildDoesNotAliasParent(t *testing.T) {
	p := Path{0, 1}
	a := p.Child(2)
	b := p.Child(3)
	if a.String() != "0.1.2" || b.String() != "0.1.3" {
		t.Fatalf("children alias their parent backing array: %v %v", a, b)
	}
}

func TestPathParentAndLast(t *testing.T) {
	p := Path{0, 2, 5}
	parent, ok := p.Parent()
	if !ok || parent.String() != "0.2" {
		t.Fatalf("Parent = %v, %v", parent, ok)
	}
	if p.Last() != 5 {
		t.Fatalf("Last = %d", p.Last())
	}
	if _, ok := RootPath().Parent(); ok {
		t.Fatal("root path should have no parent")
	}
	if RootPath().Last() != -1 {
		t.Fatal("root path Last should be -1")
	}
}

func TestPathHasPrefix(t *testing.T) {
	p := Path{0, 1, 2}
	if !p.HasPrefix(Path{0, 1}) || !p.HasPrefix(RootPath()) || !p.HasPrefix(p) {
		t.Error("expected prefixes not recognized")
	}
	if p.HasPrefix(Path{1}) || p.HasPrefix(Path{0, 1, 2, 3}) {
		t.Error("non-prefixes recognized as prefixes")
	}
}
