package remediation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Built-in operation names usable in action specs.
const (
	OpKillProcess    = "kill_process"
	OpPurgeDirectory = "purge_directory"
	OpDropCaches     = "drop_caches"
)

func buildOperation(s Spec) (Operation, error) {
	switch s.Op {
	case OpKillProcess:
		if s.Target == "" {
			return nil, fmt.Errorf("op %s: target process name required", s.Op)
		}
		return &killProcessOp{name: s.Target}, nil
	case OpPurgeDirectory:
		if s.Target == "" {
			return nil, fmt.Errorf("op %s: target directory required", s.Op)
		}
		return &purgeDirectoryOp{dir: s.Target}, nil
	case OpDropCaches:
		return &dropCachesOp{}, nil
	default:
		return nil, fmt.Errorf("unknown op %q", s.Op)
	}
}

// killProcessOp terminates every local process whose name matches. Matching
// nothing is success: the offender may have exited on its own since the
// snapshot was taken.
type killProcessOp struct {
	name string
}

func (k *killProcessOp) Run(ctx context.Context, hostID string) (string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("list processes: %w", err)
	}

	killed := 0
	var failures []string
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Process may vanish or deny access mid-scan
			continue
		}
		if !strings.EqualFold(name, k.name) {
			continue
		}
		if err := p.TerminateWithContext(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("pid %d: %v", p.Pid, err))
			continue
		}
		killed++
	}

	if len(failures) > 0 {
		return "", fmt.Errorf("terminated %d, failed %d: %s", killed, len(failures), strings.Join(failures, "; "))
	}
	if killed == 0 {
		return fmt.Sprintf("no processes named %q", k.name), nil
	}
	return fmt.Sprintf("terminated %d process(es) named %q", killed, k.name), nil
}

// purgeDirectoryOp deletes the contents of a scratch directory. The
// directory itself is kept. A missing or already-empty directory is
// success.
type purgeDirectoryOp struct {
	dir string
}

func (o *purgeDirectoryOp) Run(ctx context.Context, hostID string) (string, error) {
	entries, err := os.ReadDir(o.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("directory %s does not exist", o.dir), nil
		}
		return "", fmt.Errorf("read directory %s: %w", o.dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := os.RemoveAll(filepath.Join(o.dir, entry.Name())); err != nil {
			return "", fmt.Errorf("purge %s: %w", o.dir, err)
		}
		removed++
	}
	return fmt.Sprintf("removed %d entries from %s", removed, o.dir), nil
}

// dropCachesOp asks the kernel to drop the page cache and reclaimable slab
// objects. Registered as CAUTION: it stalls I/O-heavy workloads, so it is
// recommended in alerts rather than run automatically.
type dropCachesOp struct{}

func (o *dropCachesOp) Run(ctx context.Context, hostID string) (string, error) {
	if err := os.WriteFile("/proc/sys/vm/drop_caches", []byte("3\n"), 0o200); err != nil {
		return "", fmt.Errorf("drop caches: %w", err)
	}
	return "dropped page cache and slab objects", nil
}
