// Package blob selects a blob storage adapter from configuration.
package blob

import (
	"context"
	"farmvault/internal/blob/core"
	"farmvault/internal/infra/blob/fs"
	"farmvault/internal/infra/blob/memory"
	"farmvault/internal/infra/blob/s3"
	"fmt"

	"github.com/spf13/afero"
)

// Config chooses the driver and carries the settings of each adapter.
type Config struct {
	Driver core.Driver
	// FSRoot is the blob directory for the fs driver.
	FSRoot string
	S3     s3.Config
}

// Open returns the store for cfg.Driver. An empty driver means fs. fsys is
// only used by the fs driver and defaults to the OS filesystem.
func Open(ctx context.Context, cfg Config, fsys afero.Fs) (core.Store, error) {
	switch cfg.Driver {
	case "", core.DriverFilesystem:
		if fsys == nil {
			fsys = afero.NewOsFs()
		}
		return fs.New(fsys, cfg.FSRoot)
	case core.DriverS3:
		return s3.New(ctx, cfg.S3)
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
