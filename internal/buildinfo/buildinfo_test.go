package buildinfo

import "testing"

func TestShortPrefersVersionThenCommit(t *testing.T) {
	oldV, oldC := Version, Commit
	defer func() { Version, Commit = oldV, oldC }()

	Version, Commit = "dev", "unknown"
	if got := Short(); got != "dev" {
		t.Fatalf("expected dev, got %q", got)
	}
	Commit = "abc123"
	if got := Short(); got != "abc123" {
		t.Fatalf("expected commit, got %q", got)
	}
	Version = "v1.2.0"
	if got := Short(); got != "v1.2.0" {
		t.Fatalf("expected version, got %q", got)
	}
	if got := Long(); got != "v1.2.0 (commit abc123, built unknown)" {
		t.Fatalf("unexpected Long() %q", got)
	}
}
