package remediation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		input   string
		want    SafetyTier
		wantErr bool
	}{
		{input: "SAFE", want: TierSafe},
		{input: "safe", want: TierSafe},
		{input: "CAUTION", want: TierCaution},
		{input: "DANGEROUS", want: TierDangerous},
		{input: "harmless", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTier(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNewRegistryRejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name  string
		specs []Spec
	}{
		{
			name:  "Missing ID",
			specs: []Spec{{Trigger: "cpu", Tier: "SAFE", Op: OpDropCaches}},
		},
		{
			name:  "Unknown Tier",
			specs: []Spec{{ID: "a", Trigger: "cpu", Tier: "RISKY", Op: OpDropCaches}},
		},
		{
			name:  "Unknown Op",
			specs: []Spec{{ID: "a", Trigger: "cpu", Tier: "SAFE", Op: "reformat_disk"}},
		},
		{
			name:  "Kill Without Target",
			specs: []Spec{{ID: "a", Trigger: "cpu", Tier: "SAFE", Op: OpKillProcess}},
		},
		{
			name:  "Purge Without Target",
			specs: []Spec{{ID: "a", Trigger: "disk", Tier: "SAFE", Op: OpPurgeDirectory}},
		},
		{
			name: "Duplicate Trigger",
			specs: []Spec{
				{ID: "a", Trigger: "cpu", Tier: "SAFE", Op: OpDropCaches},
				{ID: "b", Trigger: "cpu", Tier: "SAFE", Op: OpDropCaches},
			},
		},
		{
			name: "Duplicate ID",
			specs: []Spec{
				{ID: "a", Trigger: "cpu", Tier: "SAFE", Op: OpDropCaches},
				{ID: "a", Trigger: "memory", Tier: "SAFE", Op: OpDropCaches},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.specs, nil); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestRegistryFind(t *testing.T) {
	r, err := NewRegistry([]Spec{
		{ID: "purge-tmp", Trigger: "disk", Tier: "SAFE", Enabled: true, Op: OpPurgeDirectory, Target: "/tmp/scratch"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, ok := r.Find("disk")
	if !ok || a.ID != "purge-tmp" {
		t.Fatalf("expected purge-tmp for disk, got %+v (ok=%v)", a, ok)
	}
	if _, ok := r.Find("cpu"); ok {
		t.Fatal("no action registered for cpu")
	}
}

func TestRegistryExecuteRefusesNonSafe(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{
			name: "Caution Never Runs Automatically",
			spec: Spec{ID: "drop", Trigger: "memory", Tier: "CAUTION", Enabled: true, Op: OpDropCaches},
		},
		{
			name: "Dangerous Never Runs",
			spec: Spec{ID: "drop", Trigger: "memory", Tier: "DANGEROUS", Enabled: true, Op: OpDropCaches},
		},
		{
			name: "Disabled Safe Action",
			spec: Spec{ID: "drop", Trigger: "memory", Tier: "SAFE", Enabled: false, Op: OpDropCaches},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry([]Spec{tt.spec}, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			a, _ := r.Find(tt.spec.Trigger)

			out := r.Execute(context.Background(), a, "web-1")
			if out.Succeeded {
				t.Fatalf("execution should be refused, got %+v", out)
			}
			if out.ActionID != tt.spec.ID || out.HostID != "web-1" {
				t.Errorf("refusal must still identify the action and host, got %+v", out)
			}
		})
	}
}

func TestRegistryExecutesSafeAction(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.tmp", "b.tmp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	r, err := NewRegistry([]Spec{
		{ID: "purge-scratch", Trigger: "disk", Tier: "SAFE", Enabled: true, Op: OpPurgeDirectory, Target: dir},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, _ := r.Find("disk")

	out := r.Execute(context.Background(), a, "web-1")
	if !out.Succeeded {
		t.Fatalf("expected success, got %+v", out)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory should be empty, found %d entries", len(entries))
	}

	// Running again with nothing left to do is still success.
	out = r.Execute(context.Background(), a, "web-1")
	if !out.Succeeded {
		t.Fatalf("second run should be idempotent, got %+v", out)
	}
}

func TestExecuteManual(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRegistry([]Spec{
		{ID: "purge-scratch", Trigger: "disk", Tier: "CAUTION", Enabled: true, Op: OpPurgeDirectory, Target: dir},
		{ID: "nuke", Trigger: "memory", Tier: "DANGEROUS", Enabled: true, Op: OpDropCaches},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// CAUTION runs when an operator asks for it by id.
	out, err := r.ExecuteManual(context.Background(), "purge-scratch", "web-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Succeeded {
		t.Fatalf("manual CAUTION execution should run, got %+v", out)
	}

	// DANGEROUS is refused even on explicit request.
	out, err = r.ExecuteManual(context.Background(), "nuke", "web-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Succeeded {
		t.Fatal("DANGEROUS must be refused even manually")
	}

	if _, err := r.ExecuteManual(context.Background(), "no-such-action", "web-1"); err == nil {
		t.Fatal("unknown action id should error")
	}
}

func TestKillProcessOpMatchesNothing(t *testing.T) {
	op := &killProcessOp{name: "hostsentry-test-no-such-process"}
	detail, err := op.Run(context.Background(), "web-1")
	if err != nil {
		t.Fatalf("matching nothing is success, got %v", err)
	}
	if !strings.Contains(detail, "no processes") {
		t.Errorf("detail should say nothing matched, got %q", detail)
	}
}

func TestPurgeDirectoryOpMissingDir(t *testing.T) {
	op := &purgeDirectoryOp{dir: filepath.Join(t.TempDir(), "never-created")}
	if _, err := op.Run(context.Background(), "web-1"); err != nil {
		t.Fatalf("missing directory is success, got %v", err)
	}
}
