package utils

import "testing"

func TestSolToLamports(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1", 1_000_000_000},
		{"0.05", 50_000_000},
		{"0.000000001", 1},
		{"0", 0},
		{"2.5", 2_500_000_000},
	}
	for _, c := range cases {
		got, err := SolToLamports(c.in)
		if err != nil {
			t.Fatalf("SolToLamports(%q) failed: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("SolToLamports(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSolToLamportsRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "0.0000000001"} {
		if _, err := SolToLamports(in); err == nil {
			t.Fatalf("SolToLamports(%q) should fail", in)
		}
	}
}

func TestLamportsToSol(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{1_000_000_000, "1"},
		{50_000_000, "0.05"},
		{1, "0.000000001"},
		{0, "0"},
	}
	for _, c := range cases {
		if got := LamportsToSol(c.in); got != c.want {
			t.Fatalf("LamportsToSol(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
