package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })

	Version, Commit, Date = "v1.2.0", "abc1234", "2026-03-01"
	if got, want := String(), "kgmerge v1.2.0 (abc1234) built 2026-03-01"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	Date = ""
	if got := String(); strings.Contains(got, "built") {
		t.Errorf("String() = %q, should omit build date", got)
	}
}
