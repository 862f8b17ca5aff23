//go:build !linux && !darwin

package fs

import (
	"io/fs"

	"cdnsync/internal/deploy"
)

// fileStamp is not supported on this platform; files are hashed on every run.
func fileStamp(fs.FileInfo) *deploy.FileStamp {
	return nil
}
