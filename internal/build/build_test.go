package build

import (
	"testing"
	"time"
)

func TestStartRecordsRunStart(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	Start(now)
	if !Build.RunStart.Equal(now) {
		t.Fatalf("RunStart = %v, want %v", Build.RunStart, now)
	}
}

func TestStringIncludesVersionAndCommit(t *testing.T) {
	Build.Version = "1.2.3"
	Build.GitCommit = "abc123"
	got := Build.String()
	if got != "1.2.3 (abc123)" {
		t.Fatalf("String() = %q", got)
	}
}
