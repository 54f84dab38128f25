// Package digest computes content digests of files for copy verification.
package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
)

// File returns the hex-encoded SHA-256 digest of the file at path.
// The read is aborted when ctx is cancelled.
func File(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, &contextReader{ctx: ctx, r: f}); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Pair digests two files concurrently and returns both digests.
// If either side fails, the other read is cancelled and the error returned.
func Pair(ctx context.Context, pathA, pathB string) (digestA, digestB string, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		digestA, err = File(gctx, pathA)
		return err
	})
	g.Go(func() error {
		var err error
		digestB, err = File(gctx, pathB)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return digestA, digestB, nil
}

// contextReader stops a read loop once the context is done. Checking between
// chunks is enough; a single read is never longer than one buffer fill.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
