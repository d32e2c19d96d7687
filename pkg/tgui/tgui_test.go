package tgui

import "testing"

func TestEscaping(t *testing.T) {
	t.Parallel()
	got := Line(B("Tom & Jerry"), Code("<x>"), Esc(""), I("a"))
	want := H("<b>Tom &amp; Jerry</b> <code>&lt;x&gt;</code> <i>a</i>")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hel…"},
		{"📈📈📈", 2, "📈…"},
		{"abc", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
