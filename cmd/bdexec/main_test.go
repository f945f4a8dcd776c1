package main

import "testing"

func TestRunMissingGraphFlag(t *testing.T) {
	if got := run(nil); got != exitPlan {
		t.Fatalf("exit code = %d, want %d", got, exitPlan)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	if got := run([]string{"-bogus"}); got != exitPlan {
		t.Fatalf("exit code = %d, want %d", got, exitPlan)
	}
}

func TestRunBadGraphPath(t *testing.T) {
	if got := run([]string{"-graph", "/nonexistent/path.json"}); got != exitPlan {
		t.Fatalf("exit code = %d, want %d", got, exitPlan)
	}
}

func TestRunCompilesAndExecutesToDeadline(t *testing.T) {
	path := writeTemp(t, samplePipeline)
	got := run([]string{"-graph", path, "-max-time", "0.1"})
	if got != exitNormal {
		t.Fatalf("exit code = %d, want %d", got, exitNormal)
	}
}
