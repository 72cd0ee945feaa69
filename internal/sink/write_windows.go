// SPDX-License-Identifier: MIT

//go:build windows

package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// writeAtomic uses temp file + rename; Windows offers no fsync-then-rename
// guarantee comparable to renameio.
func writeAtomic(_ context.Context, path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".streamgrab-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return nil
}
