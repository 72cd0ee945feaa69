// SPDX-License-Identifier: MIT

//go:build !windows

package sink

import (
	"context"
	"fmt"

	"github.com/google/renameio/v2"

	xglog "github.com/ManuGH/streamgrab/internal/log"
)

// writeAtomic writes through a pending file: fsync, then rename into place.
func writeAtomic(ctx context.Context, path string, data []byte) error {
	logger := xglog.WithComponentFromContext(ctx, "sink")

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace file: %w", err)
	}
	return nil
}
