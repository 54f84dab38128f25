package pathmirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/mwidmann/replica/pkg/copyverify"
	"github.com/mwidmann/replica/pkg/syncmetrics"
)

// flakyCopier fails the first call for each path it is told to fail,
// delegating everything else to a real verifier.
type flakyCopier struct {
	mu       sync.Mutex
	failOnce map[string]bool
	inner    FileCopier
	calls    int
}

func (f *flakyCopier) CopyFile(ctx context.Context, srcPath, dstPath string, srcInfo os.FileInfo) error {
	f.mu.Lock()
	f.calls++
	fail := f.failOnce[filepath.Base(srcPath)]
	delete(f.failOnce, filepath.Base(srcPath))
	f.mu.Unlock()
	if fail {
		return errors.New("injected copy failure")
	}
	return f.inner.CopyFile(ctx, srcPath, dstPath, srcInfo)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestMirrorer(m syncmetrics.Metrics) *Mirrorer {
	return NewMirrorer(copyverify.NewVerifier(1, 64, false, m), false, m)
}

func TestMirrorRecreatesTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	files := map[string]string{
		"top.txt":          "alpha",
		"sub/one.txt":      "beta",
		"sub/deep/two.txt": "gamma",
		".hidden":          "delta",
	}
	writeTree(t, src, files)
	if err := os.Mkdir(filepath.Join(src, "empty"), 0755); err != nil {
		t.Fatal(err)
	}

	m := syncmetrics.NewRunMetrics()
	if err := newTestMirrorer(m).Mirror(context.Background(), src, dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for rel, want := range files {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(rel)))
		if err != nil {
			t.Errorf("missing mirrored file %s: %v", rel, err)
			continue
		}
		if string(got) != want {
			t.Errorf("file %s: expected %q, got %q", rel, want, string(got))
		}
	}

	info, err := os.Stat(filepath.Join(dst, "empty"))
	if err != nil || !info.IsDir() {
		t.Errorf("expected empty directory to be mirrored, err: %v", err)
	}

	if m.FilesCopied.Load() != 4 {
		t.Errorf("expected 4 files copied, got %d", m.FilesCopied.Load())
	}
	if m.DirsCreated.Load() != 3 {
		t.Errorf("expected 3 directories created, got %d", m.DirsCreated.Load())
	}
	if m.Errors() != 0 || m.Warnings() != 0 {
		t.Errorf("expected clean counters, got errors=%d warnings=%d", m.Errors(), m.Warnings())
	}
}

func TestMirrorAppliesDirectoryTimesAfterContent(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"sub/file.txt": "x"})

	subDir := filepath.Join(src, "sub")
	modTime := time.Date(2019, 7, 20, 6, 0, 0, 0, time.UTC)
	if err := os.Chtimes(subDir, modTime, modTime); err != nil {
		t.Fatal(err)
	}

	if err := newTestMirrorer(syncmetrics.NewRunMetrics()).Mirror(context.Background(), src, dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(filepath.Join(dst, "sub"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(modTime) {
		t.Errorf("expected directory mod time %v to survive content writes, got %v", modTime, info.ModTime())
	}
}

func TestMirrorSkipsNonRegularEntries(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs extra privileges on windows")
	}

	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"real.txt": "x"})
	if err := os.Symlink(filepath.Join(src, "real.txt"), filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}

	m := syncmetrics.NewRunMetrics()
	if err := newTestMirrorer(m).Mirror(context.Background(), src, dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(dst, "link")); !os.IsNotExist(err) {
		t.Errorf("expected symlink to be skipped, lstat err: %v", err)
	}
	if m.FilesCopied.Load() != 1 {
		t.Errorf("expected 1 file copied, got %d", m.FilesCopied.Load())
	}
	if m.Errors() != 0 {
		t.Errorf("non-regular entries are skipped silently, got %d errors", m.Errors())
	}
}

func TestMirrorContinuesPastFailedFile(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"bad.txt":  "will fail",
		"good.txt": "survives",
	})

	m := syncmetrics.NewRunMetrics()
	copier := &flakyCopier{
		failOnce: map[string]bool{"bad.txt": true},
		inner:    copyverify.NewVerifier(1, 64, false, m),
	}
	mirrorer := NewMirrorer(copier, false, m)

	if err := mirrorer.Mirror(context.Background(), src, dst); err != nil {
		t.Fatalf("a failed file must not abort the walk, got: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "good.txt")); err != nil {
		t.Errorf("expected remaining files to be mirrored: %v", err)
	}
	if copier.calls != 2 {
		t.Errorf("expected both files to be attempted, got %d calls", copier.calls)
	}
}

func TestMirrorMissingSourceRootIsFatal(t *testing.T) {
	dst := t.TempDir()
	err := newTestMirrorer(&syncmetrics.NoopMetrics{}).Mirror(context.Background(), filepath.Join(dst, "nope"), dst)
	if err == nil {
		t.Fatal("expected an error for a missing source root, got nil")
	}
}

func TestMirrorCancelledContext(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"f.txt": "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := newTestMirrorer(&syncmetrics.NoopMetrics{}).Mirror(ctx, src, dst); err == nil {
		t.Fatal("expected an error for a cancelled context, got nil")
	}
}
