package pathclean

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mwidmann/replica/pkg/syncmetrics"
	"github.com/mwidmann/replica/pkg/util"
)

func pathExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Lstat(path)
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	t.Fatalf("unexpected error checking path %s: %v", path, err)
	return false
}

func newTestCleaner(m syncmetrics.Metrics) *Cleaner {
	c := NewCleaner(m)
	c.retryDelay = time.Millisecond // keep the single-retry path fast in tests
	return c
}

func TestCleanRemovesEverythingButRoot(t *testing.T) {
	root := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "a", "b"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "top.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", "b", "deep.txt"), []byte("y"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, ".hidden"), []byte("z"), 0644); err != nil {
		t.Fatal(err)
	}

	m := syncmetrics.NewRunMetrics()
	if err := newTestCleaner(m).Clean(context.Background(), root); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !pathExists(t, root) {
		t.Fatal("replica root must survive cleaning")
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty root after clean, found %d entries", len(entries))
	}
	if m.Warnings() != 0 {
		t.Errorf("expected no warnings, got %d", m.Warnings())
	}
	if m.EntriesDeleted.Load() != 5 {
		t.Errorf("expected 5 deleted entries, got %d", m.EntriesDeleted.Load())
	}
}

func TestCleanHandlesReadOnlyEntries(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission-bit based read-only flag is verified on unix only")
	}

	root := t.TempDir()
	roDir := filepath.Join(root, "rodir")
	if err := os.Mkdir(roDir, 0755); err != nil {
		t.Fatal(err)
	}
	roFile := filepath.Join(roDir, "locked.txt")
	if err := os.WriteFile(roFile, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(roFile, 0444); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(roDir, 0555); err != nil {
		t.Fatal(err)
	}

	m := syncmetrics.NewRunMetrics()
	if err := newTestCleaner(m).Clean(context.Background(), root); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pathExists(t, roDir) {
		t.Error("expected read-only directory to be deleted")
	}
	if m.Warnings() != 0 {
		t.Errorf("expected no warnings, got %d", m.Warnings())
	}
}

func TestCleanCancelled(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "f.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := newTestCleaner(&syncmetrics.NoopMetrics{}).Clean(ctx, root); err == nil {
		t.Fatal("expected an error for a cancelled context, got nil")
	}
}

func TestEnsureRoot(t *testing.T) {
	t.Run("Creates missing root", func(t *testing.T) {
		base := t.TempDir()
		root := filepath.Join(base, "replica")

		if err := newTestCleaner(&syncmetrics.NoopMetrics{}).EnsureRoot(context.Background(), root); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !pathExists(t, root) {
			t.Error("expected replica root to be created")
		}
		info, err := os.Stat(root)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm()&util.PermUserWrite == 0 {
			t.Errorf("expected a user-writable replica root, got mode %v", info.Mode())
		}
	})

	t.Run("Cleans existing root", func(t *testing.T) {
		root := t.TempDir()
		if err := os.WriteFile(filepath.Join(root, "old.txt"), []byte("stale"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := newTestCleaner(syncmetrics.NewRunMetrics()).EnsureRoot(context.Background(), root); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pathExists(t, filepath.Join(root, "old.txt")) {
			t.Error("expected stale entry to be removed")
		}
	})

	t.Run("Root path occupied by a file is fatal", func(t *testing.T) {
		base := t.TempDir()
		root := filepath.Join(base, "replica")
		if err := os.WriteFile(root, []byte("in the way"), 0644); err != nil {
			t.Fatal(err)
		}

		err := newTestCleaner(&syncmetrics.NoopMetrics{}).EnsureRoot(context.Background(), root)
		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		if !errors.Is(err, ErrReplicaCreate) {
			t.Errorf("expected ErrReplicaCreate, got %v", err)
		}
	})

	t.Run("Uncreatable root is fatal", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("permission-based creation failure is verified on unix only")
		}
		if os.Getuid() == 0 {
			t.Skip("running as root, directory creation cannot be blocked by permissions")
		}

		base := t.TempDir()
		parent := filepath.Join(base, "sealed")
		if err := os.Mkdir(parent, 0555); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = os.Chmod(parent, 0755) })

		err := newTestCleaner(&syncmetrics.NoopMetrics{}).EnsureRoot(context.Background(), filepath.Join(parent, "replica"))
		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		if !errors.Is(err, ErrReplicaCreate) {
			t.Errorf("expected ErrReplicaCreate, got %v", err)
		}
	})
}
