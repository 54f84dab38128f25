// Package copyverify copies single files and proves the copy correct.
//
// Every copy is followed by a digest comparison of both sides. A mismatch
// or a copy error is treated as transient: the attempt is repeated after a
// randomized backoff, bounded by the configured attempt budget. A file that
// never verifies is abandoned with an error; the caller moves on.
package copyverify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mwidmann/replica/pkg/digest"
	"github.com/mwidmann/replica/pkg/fileattr"
	"github.com/mwidmann/replica/pkg/plog"
	"github.com/mwidmann/replica/pkg/pool"
	"github.com/mwidmann/replica/pkg/syncmetrics"
	"github.com/mwidmann/replica/pkg/util"
)

const (
	// DefaultMaxAttempts bounds the per-file copy attempts.
	DefaultMaxAttempts = 5
	// DefaultBufferSizeKB is the copy buffer size when none is configured.
	DefaultBufferSizeKB = 256
	// defaultBackoffUnit scales the randomized retry backoff. The pause
	// between attempts is uniform in [1,3] units.
	defaultBackoffUnit = time.Second
)

var errDigestMismatch = errors.New("digest mismatch between source and copy")

// Verifier copies files with digest verification and bounded retries.
type Verifier struct {
	maxAttempts int
	backoffUnit time.Duration
	copyACL     bool
	bufPool     *pool.FixedBufferPool
	metrics     syncmetrics.Metrics

	// digestPair is swapped out in tests to simulate verification faults.
	digestPair func(ctx context.Context, a, b string) (string, string, error)
}

// NewVerifier creates a Verifier. Non-positive maxAttempts or bufferSizeKB
// select the defaults. When copyACL is set, access-control information is
// replicated along with the other file attributes.
func NewVerifier(maxAttempts, bufferSizeKB int, copyACL bool, m syncmetrics.Metrics) *Verifier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if bufferSizeKB <= 0 {
		bufferSizeKB = DefaultBufferSizeKB
	}
	return &Verifier{
		maxAttempts: maxAttempts,
		backoffUnit: defaultBackoffUnit,
		copyACL:     copyACL,
		bufPool:     pool.NewFixedBuffer(int64(bufferSizeKB) * 1024),
		metrics:     m,
		digestPair:  digest.Pair,
	}
}

// CopyFile copies srcPath to dstPath (overwriting any existing target),
// verifies the copy by content digest and replicates the file's attributes
// on success. All attempt failures are logged and counted here; the
// returned error only signals that the file was abandoned.
func (v *Verifier) CopyFile(ctx context.Context, srcPath, dstPath string, srcInfo os.FileInfo) error {
	attempt := 0
	backoff := retry.WithMaxRetries(
		uint64(v.maxAttempts-1),
		retry.WithJitter(v.backoffUnit, retry.NewConstant(2*v.backoffUnit)),
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		if err := v.copyOnce(srcPath, dstPath, srcInfo); err != nil {
			plog.Error("Copy attempt failed", "path", srcPath, "attempt", fmt.Sprintf("%d/%d", attempt, v.maxAttempts), "error", err)
			v.metrics.AddErrors(1)
			return retry.RetryableError(err)
		}

		srcSum, dstSum, err := v.digestPair(ctx, srcPath, dstPath)
		if err != nil {
			plog.Error("Verification attempt failed", "path", srcPath, "attempt", fmt.Sprintf("%d/%d", attempt, v.maxAttempts), "error", err)
			v.metrics.AddErrors(1)
			return retry.RetryableError(err)
		}

		if srcSum != dstSum {
			// The copy is corrupt; remove it so a failed file never
			// masquerades as a valid replica entry.
			if err := os.Remove(dstPath); err != nil {
				plog.Warn("Failed to remove corrupt copy", "path", dstPath, "error", err)
			}
			plog.Warn("Digest mismatch, discarding copy", "path", srcPath, "attempt", fmt.Sprintf("%d/%d", attempt, v.maxAttempts))
			v.metrics.AddWarnings(1)
			return retry.RetryableError(errDigestMismatch)
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		plog.Error("FAILED to copy file, giving up", "path", srcPath, "attempts", v.maxAttempts, "error", err)
		v.metrics.AddErrors(1)
		v.metrics.AddFilesFailed(1)
		return fmt.Errorf("failed to copy %s after %d attempts: %w", srcPath, v.maxAttempts, err)
	}

	// Attributes are applied inline for files; nothing writes to this
	// particular file after verification.
	if err := fileattr.Replicate(srcPath, dstPath, srcInfo, v.copyACL, v.metrics); err != nil {
		plog.Warn("Failed to replicate file attributes", "path", dstPath, "error", err)
		v.metrics.AddWarnings(1)
	}

	v.metrics.AddFilesCopied(1)
	plog.Done("COPY", "path", srcPath, "attempts", attempt)
	return nil
}

// copyOnce performs one raw copy of the file content. The target is created
// user-writable even for read-only sources; the final flag state is applied
// by the attribute replication after verification.
func (v *Verifier) copyOnce(srcPath, dstPath string, srcInfo os.FileInfo) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", srcPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, util.WithUserWritePermission(srcInfo.Mode().Perm()))
	if err != nil {
		return fmt.Errorf("failed to create target file %s: %w", dstPath, err)
	}

	bufPtr := v.bufPool.Get()
	defer v.bufPool.Put(bufPtr)

	written, err := io.CopyBuffer(out, in, *bufPtr)
	if err != nil {
		out.Close()
		return fmt.Errorf("failed to copy content to %s: %w", dstPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close target file %s: %w", dstPath, err)
	}

	v.metrics.AddBytesCopied(written)
	return nil
}
