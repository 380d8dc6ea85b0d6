package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const twoHostScenario = `
name: cli-pair
run:
  duration: 10
hosts:
  - prefix: n
    count: 2
    range: 100
    position: [0, 0]
    spacing: [10, 0]
messages:
  - {at: 0, id: M1, from: n0, to: n1, size: 1000}
`

func writeScenario(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunPrintsJSONSummary(t *testing.T) {
	path := writeScenario(t, twoHostScenario)
	out, _, err := execute(t, "run", "--no-archive", "--format", "json", path)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	for _, want := range []string{`"scenario": "cli-pair"`, `"created": 1`, `"delivered": 1`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %s:\n%s", want, out)
		}
	}
}

func TestRunPolicyOverride(t *testing.T) {
	path := writeScenario(t, twoHostScenario)
	if _, _, err := execute(t, "run", "--no-archive", "--policy", "teleport", path); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
	out, _, err := execute(t, "run", "--no-archive", "--policy", "prophet", path)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !strings.Contains(out, "Message stats for scenario cli-pair") {
		t.Fatalf("unexpected text output:\n%s", out)
	}
}

func TestRunArchivesAndLists(t *testing.T) {
	path := writeScenario(t, twoHostScenario)
	archive := filepath.Join(t.TempDir(), "runs.db")

	if _, _, err := execute(t, "run", "--archive", archive, "--policy", "maxprop", path); err != nil {
		t.Fatalf("run error: %v", err)
	}
	out, _, err := execute(t, "runs", "list", "--archive", archive)
	if err != nil {
		t.Fatalf("runs list error: %v", err)
	}
	if !strings.Contains(out, "cli-pair") || !strings.Contains(out, "maxprop") {
		t.Fatalf("run not listed:\n%s", out)
	}
	if _, _, err := execute(t, "runs", "show", "--archive", archive, "no-such-run"); err == nil {
		t.Fatalf("expected error for unknown run id")
	}
}

func TestValidate(t *testing.T) {
	good := writeScenario(t, twoHostScenario)
	bad := writeScenario(t, "run: {duration: 0}\n")

	out, _, err := execute(t, "validate", good)
	if err != nil {
		t.Fatalf("validate error: %v", err)
	}
	if !strings.Contains(out, "ok (cli-pair, 2 hosts, epidemic)") {
		t.Fatalf("unexpected output: %s", out)
	}

	_, errOut, err := execute(t, "validate", good, bad)
	if err == nil {
		t.Fatalf("expected error for invalid scenario")
	}
	if !strings.Contains(errOut, "invalid scenario") {
		t.Fatalf("stderr missing reason: %s", errOut)
	}
}
