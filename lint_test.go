package main_test

import (
	"bytes"
	"errors"
	"os/exec"
	"testing"
)

// Repository hygiene checks. They shell out to the go toolchain and are
// skipped in short mode.
func TestRepositoryChecks(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode: skipping repository checks")
	}

	checks := []struct {
		name string
		args []string
	}{
		{"vet", []string{"vet", "./..."}},
		{"mod tidy", []string{"mod", "tidy", "-diff"}},
		{"golangci-lint", []string{"run", "github.com/golangci/golangci-lint/cmd/golangci-lint@latest", "run", "--timeout=5m"}},
		{"govulncheck", []string{"run", "golang.org/x/vuln/cmd/govulncheck@latest", "./..."}},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			rungo(t, c.args...)
		})
	}
}

func TestGoFmt(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode: skipping gofmt")
	}
	var out bytes.Buffer
	cmd := exec.Command("gofmt", "-l", "cmd", "internal", "test")
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		t.Fatalf("gofmt: %v\n%s", err, out.String())
	}
	if out.Len() > 0 {
		t.Errorf("unformatted files:\n%s", out.String())
	}
}

func rungo(t *testing.T, args ...string) {
	t.Helper()

	cmd := exec.Command("go", args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) && len(ee.Stderr) > 0 {
		t.Fatalf("%v: %v\n%s", cmd, err, ee.Stderr)
	}
	t.Fatalf("%v: %v\n%s", cmd, err, output)
}
