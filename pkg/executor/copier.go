package executor

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prismon/audio-janitor/pkg/pathutil"
)

// Copier copies kept files into the destination library
type Copier struct {
	verify bool
}

// NewCopier creates a copier. With verify set every copy is re-read and
// compared against the source size and SHA-256.
func NewCopier(verify bool) *Copier {
	return &Copier{verify: verify}
}

// DestinationPath places src under dir, keeping its artist and album folders
func DestinationPath(dir, src string) string {
	slashed := filepath.ToSlash(src)
	parts := []string{dir}
	for up := 2; up >= 1; up-- {
		if name := pathutil.ParentName(slashed, up); name != "" && pathutil.Depth(slashed) > up {
			parts = append(parts, name)
		}
	}
	parts = append(parts, filepath.Base(src))
	return filepath.Join(parts...)
}

// Copy copies src to dst and returns the path written. An identical file
// already at dst is reused; a different one makes the copy take a numbered
// name beside it.
func (c *Copier) Copy(src, dst string) (string, error) {
	srcSum, srcSize, err := fileDigest(src)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", src, err)
	}

	target, err := freeName(dst, srcSum, srcSize)
	if err != nil {
		return "", err
	}
	if target == "" {
		return dst, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}
	if err := copyFile(src, target); err != nil {
		return "", err
	}

	if c.verify {
		sum, size, err := fileDigest(target)
		if err != nil {
			return "", fmt.Errorf("failed to verify %s: %w", target, err)
		}
		if size != srcSize || !bytes.Equal(sum, srcSum) {
			os.Remove(target)
			return "", fmt.Errorf("copy of %s to %s failed verification", src, target)
		}
	}
	return target, nil
}

// freeName returns "" when dst already holds the same content, otherwise the
// first name not taken by a different file
func freeName(dst string, sum []byte, size int64) (string, error) {
	ext := filepath.Ext(dst)
	stem := strings.TrimSuffix(dst, ext)
	candidate := dst
	for i := 1; ; i++ {
		existing, existingSize, err := fileDigest(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to inspect %s: %w", candidate, err)
		}
		if existingSize == size && bytes.Equal(existing, sum) {
			return "", nil
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
}

// copyFile writes through a temp file so a failed copy leaves nothing behind
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := io.Copy(tmp, in); err != nil {
		cleanup()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync copy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close copy: %w", err)
	}
	if info, err := os.Stat(src); err == nil {
		_ = os.Chtimes(tmpPath, info.ModTime(), info.ModTime())
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move copy into place: %w", err)
	}
	return nil
}

func fileDigest(path string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, 0, err
	}
	return h.Sum(nil), n, nil
}
