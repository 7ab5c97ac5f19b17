package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/theirongolddev/costroll/internal/config"
	"github.com/theirongolddev/costroll/internal/rollup"
)

func TestReadLineRequests(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		body string
		want int
	}{
		{"array", `[{"cost_code_id":"03-1000","amount":"100.00"},{"cost_code_id":"01-100","amount":5}]`, 2},
		{"object", `{"lines":[{"cost_code_id":"03-1000","quantity":"2","unit_cost":"10.50"}]}`, 1},
		{"leading whitespace", "\n  [{\"cost_code_id\":\"03-1000\",\"amount\":\"1\"}]", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}
			lines, err := readLineRequests(path)
			if err != nil {
				t.Fatalf("readLineRequests() error = %v", err)
			}
			if len(lines) != tt.want {
				t.Fatalf("len(lines) = %d, want %d", len(lines), tt.want)
			}
			if lines[0].CostCodeID != "03-1000" {
				t.Errorf("CostCodeID = %q, want 03-1000", lines[0].CostCodeID)
			}
		})
	}
}

func TestReadLineRequests_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"lines":`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := readLineRequests(path); err == nil {
		t.Fatal("readLineRequests() error = nil, want parse error")
	}
}

func TestFilterDetachArg(t *testing.T) {
	got := filterDetachArg([]string{"serve", "--detach", "--addr", "127.0.0.1:9000", "--detach=true"})
	want := []string{"serve", "--addr", "127.0.0.1:9000"}
	if len(got) != len(want) {
		t.Fatalf("filterDetachArg() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("filterDetachArg() = %v, want %v", got, want)
		}
	}
}

func TestEngineOptions(t *testing.T) {
	rc := config.DefaultConfig().Rollup
	rc.Attribution = "proportional"
	rc.MaxAttempts = 5
	rc.SourceTimeout = config.Duration{Duration: 2 * time.Second}

	opts, err := engineOptions(rc)
	if err != nil {
		t.Fatalf("engineOptions() error = %v", err)
	}
	if opts.Attribution.Name() != rollup.AttributionProportional {
		t.Errorf("Attribution = %s, want proportional", opts.Attribution.Name())
	}
	if opts.MaxAttempts != 5 || opts.SourceTimeout != 2*time.Second {
		t.Errorf("opts = %+v, want 5 attempts and 2s timeout", opts)
	}

	rc.Attribution = "bogus"
	if _, err := engineOptions(rc); err == nil {
		t.Fatal("engineOptions() error = nil for unknown attribution")
	}
}

func TestPIDRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costrolld.pid")
	if err := writePID(path, 4242); err != nil {
		t.Fatal(err)
	}
	pid, err := readPID(path)
	if err != nil || pid != 4242 {
		t.Fatalf("readPID() = %d, %v, want 4242", pid, err)
	}
	if !processAlive(os.Getpid()) {
		t.Error("processAlive(self) = false")
	}
}
