package pg

import "testing"

func TestCompact(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT\n\t1", "SELECT 1"},
		{"a   b\r\n c", "a b c"},
		{"", ""},
	}
	for _, c := range cases {
		if got := compact(c.in); got != c.want {
			t.Fatalf("compact(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
