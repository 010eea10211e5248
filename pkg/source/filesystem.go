package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("source")
}

// FileSystemSource implements Source for local filesystem access
type FileSystemSource struct{}

// NewFileSystemSource creates a new filesystem source
func NewFileSystemSource() *FileSystemSource {
	return &FileSystemSource{}
}

// Name returns the source type name
func (fs *FileSystemSource) Name() string {
	return "filesystem"
}

// Stat returns information about a file or directory.
// Uses Lstat so symlinks are reported as ErrSymlink instead of followed: a
// linked album would otherwise show up as a duplicate of itself.
func (fs *FileSystemSource) Stat(ctx context.Context, path string) (ItemInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		if logger.IsLevelEnabled(logrus.TraceLevel) {
			log.WithField("path", path).Trace("Skipping symlink")
		}
		return nil, fmt.Errorf("%w: %s", ErrSymlink, path)
	}
	return &fileSystemItemInfo{
		path: path,
		info: info,
	}, nil
}

// ReadDir reads directory contents
func (fs *FileSystemSource) ReadDir(ctx context.Context, path string) ([]DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	result := make([]DirEntry, len(entries))
	for i, entry := range entries {
		result[i] = entry
	}
	return result, nil
}

// Close releases resources (no-op for filesystem)
func (fs *FileSystemSource) Close() error {
	return nil
}

// fileSystemItemInfo implements ItemInfo
type fileSystemItemInfo struct {
	path string
	info fs.FileInfo
}

func (i *fileSystemItemInfo) Path() string {
	return i.path
}

func (i *fileSystemItemInfo) Size() int64 {
	return i.info.Size()
}

func (i *fileSystemItemInfo) IsDir() bool {
	return i.info.IsDir()
}

func (i *fileSystemItemInfo) ModTime() time.Time {
	return i.info.ModTime()
}

func (i *fileSystemItemInfo) Mode() fs.FileMode {
	return i.info.Mode()
}

// GetFullPath returns the full path for a directory entry
func GetFullPath(parentPath string, entry DirEntry) string {
	return filepath.Join(parentPath, entry.Name())
}
