//go:build darwin

package fs

import (
	"io/fs"
	"syscall"
	"time"

	"cdnsync/internal/deploy"
)

// fileStamp extracts change time and inode from a FileInfo.
// It returns nil when the stat data is unavailable.
func fileStamp(info fs.FileInfo) *deploy.FileStamp {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	return &deploy.FileStamp{
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		ChangeTime: time.Unix(stat.Ctimespec.Sec, stat.Ctimespec.Nsec),
		Inode:      stat.Ino,
	}
}
