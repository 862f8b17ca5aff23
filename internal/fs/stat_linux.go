//go:build linux

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
		ChangeTime: time.Unix(int64(stat.Ctim.Sec), int64(stat.Ctim.Nsec)),
		Inode:      uint64(stat.Ino),
	}
}
