package ids

import (
	"strings"
	"testing"
)

func TestNewIsSortableAndValid(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		if !Valid(next) {
			t.Fatalf("generated id %q is not valid", next)
		}
		if next <= prev {
			t.Fatalf("ids not monotonic: %q then %q", prev, next)
		}
		prev = next
	}
}

func TestValidRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"user-42",
		strings.Repeat("0", 25),
		strings.Repeat("Z", 26),
		"01HZX3Q6Y7P9V1B2C3D4E5F6G!",
	}
	for _, c := range cases {
		if Valid(c) {
			t.Fatalf("expected %q to be rejected", c)
		}
	}
}
