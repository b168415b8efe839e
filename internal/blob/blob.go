// Package blob stores attachment bytes outside the database.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"obligation-service/internal/apperr"
)

// DefaultMaxBytes caps a single upload.
const DefaultMaxBytes int64 = 10 << 20

// Store keeps attachment bytes under opaque references.
type Store interface {
	Put(ctx context.Context, tenantID, obligationID, filename string, r io.Reader) (ref string, size int64, err error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// FS is a Store on the local filesystem. Files live at
// <root>/<tenant>/<obligation>/<uuid><ext>.
type FS struct {
	root     string
	maxBytes int64
}

// NewFS creates root if needed and returns a store writing below it.
func NewFS(root string, maxBytes int64) (*FS, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FS{root: abs, maxBytes: maxBytes}, nil
}

// Put implements Store.
func (s *FS) Put(ctx context.Context, tenantID, obligationID, filename string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if !safeSegment(tenantID) || !safeSegment(obligationID) {
		return "", 0, apperr.Validation("invalid storage location")
	}

	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 16 {
		ext = ""
	}
	ref := filepath.ToSlash(filepath.Join(tenantID, obligationID, uuid.NewString()+ext))
	path := filepath.Join(s.root, filepath.FromSlash(ref))

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", 0, apperr.Wrap(apperr.CodeStorageFailure, "storage failure", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.CodeStorageFailure, "storage failure", err)
	}

	// Read one byte past the cap to detect oversized uploads.
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, apperr.Wrap(apperr.CodeStorageFailure, "storage failure", err)
	}
	if n > s.maxBytes {
		_ = os.Remove(path)
		return "", 0, apperr.Validation(fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	return ref, n, nil
}

// Open implements Store.
func (s *FS) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.NotFound("file")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageFailure, "storage failure", err)
	}
	return f, nil
}

// Delete implements Store. Deleting a missing ref is not an error.
func (s *FS) Delete(ctx context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.Wrap(apperr.CodeStorageFailure, "storage failure", err)
	}
	return nil
}

// resolve maps ref to a path and refuses refs escaping the root.
func (s *FS) resolve(ref string) (string, error) {
	if ref == "" || filepath.IsAbs(ref) {
		return "", apperr.Validation("invalid file reference")
	}
	path := filepath.Join(s.root, filepath.FromSlash(ref))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", apperr.Validation("invalid file reference")
	}
	return path, nil
}

func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
