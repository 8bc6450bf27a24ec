package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	v, c, d := Info()
	if v == "" || c == "" || d == "" {
		t.Fatalf("info fields must have defaults: version=%q commit=%q date=%q", v, c, d)
	}
	if got := GetVersion(); got != v {
		t.Fatalf("GetVersion %q differs from Info version %q", got, v)
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, field := range []string{"version=", "commit=", "date="} {
		if !strings.Contains(s, field) {
			t.Fatalf("String() missing %q: %s", field, s)
		}
	}
}
