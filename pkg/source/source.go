package source

import (
	"context"
	"errors"
	"io/fs"
	"time"
)

// ErrSymlink is returned by Stat for symbolic links, which are never followed
var ErrSymlink = errors.New("symlink skipped")

// Source represents an abstract tree of files that can be listed.
// This lets the lister run against the local filesystem or a fake in tests.
type Source interface {
	// Stat returns information about the item at the given path
	Stat(ctx context.Context, path string) (ItemInfo, error)

	// ReadDir reads the directory named by path and returns its entries
	ReadDir(ctx context.Context, path string) ([]DirEntry, error)

	// Name returns a human-readable name for this source type
	Name() string

	// Close releases any resources held by the source
	Close() error
}

// ItemInfo represents metadata about a file or directory
type ItemInfo interface {
	Path() string
	Size() int64
	IsDir() bool
	ModTime() time.Time
	Mode() fs.FileMode
}

// DirEntry represents an entry in a directory listing
type DirEntry interface {
	Name() string
	IsDir() bool
	Type() fs.FileMode
}
