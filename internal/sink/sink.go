// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sink persists assembled downloads.
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	xglog "github.com/ManuGH/streamgrab/internal/log"
)

// ErrInvalidName is returned for names that do not denote a plain file.
var ErrInvalidName = errors.New("invalid file name")

// Sink receives one finished artifact. The engine treats Save as a hand-off
// and does not retry.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, name string, data []byte) error

func (f Func) Save(ctx context.Context, name string, data []byte) error {
	return f(ctx, name, data)
}

// maxCollisionSuffix bounds the " (n)" search.
const maxCollisionSuffix = 10000

// FileSink writes artifacts into a directory. Existing files are never
// overwritten: a colliding name gets a " (n)" suffix before the extension.
type FileSink struct {
	dir string
	mu  sync.Mutex
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Dir returns the output directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Save implements Sink.
func (s *FileSink) Save(ctx context.Context, name string, data []byte) error {
	_, err := s.SaveFile(ctx, name, data)
	return err
}

// SaveFile writes data and returns the final path.
func (s *FileSink) SaveFile(ctx context.Context, name string, data []byte) (string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == ".." || strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The lock spans the existence check and the rename so two saves of the
	// same name cannot pick the same path.
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.freePath(base)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(ctx, path, data); err != nil {
		return "", err
	}
	logger := xglog.WithComponentFromContext(ctx, "sink")
	logger.Info().
		Str(xglog.FieldEvent, "sink.saved").
		Str(xglog.FieldPath, path).
		Int("bytes", len(data)).
		Msg("artifact saved")
	return path, nil
}

func (s *FileSink) freePath(name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 0; n < maxCollisionSuffix; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		path := filepath.Join(s.dir, candidate)
		_, err := os.Lstat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("no free file name for %q", name)
}
