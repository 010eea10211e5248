package pathutil

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ExpandPath expands tilde (~) to home directory and converts to absolute path
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if strings.HasPrefix(p, "~/") || p == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		if p == "~" {
			p = homeDir
		} else {
			p = filepath.Join(homeDir, p[2:])
		}
	}

	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	return absPath, nil
}

// dirSegments splits the directory portion of a slash path into its names
func dirSegments(p string) []string {
	dir := path.Dir(path.Clean("/" + strings.TrimPrefix(p, "/")))
	var out []string
	for _, s := range strings.Split(dir, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RootFolder returns the top-level location a file lives in: the volume for
// paths under /Volumes, the user folder for paths under /Users, otherwise the
// first directory.
func RootFolder(p string) string {
	segs := dirSegments(p)
	if len(segs) == 0 {
		return "/"
	}

	n := 1
	switch segs[0] {
	case "Volumes":
		n = 2
	case "Users":
		n = 3
	}
	if n > len(segs) {
		n = len(segs)
	}
	return "/" + strings.Join(segs[:n], "/")
}

// IsUnder reports whether p equals dir or lies inside it
func IsUnder(p, dir string) bool {
	if dir == "" {
		return false
	}
	dir = path.Clean(dir)
	p = path.Clean(p)
	if p == dir {
		return true
	}
	if dir == "/" {
		return strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, dir+"/")
}

// Depth is the number of directories above the file
func Depth(p string) int {
	return len(dirSegments(p))
}

// ParentName returns the directory name `up` levels above the file:
// 1 is the containing folder, 2 its parent. Empty when the path is too shallow.
func ParentName(p string, up int) string {
	segs := dirSegments(p)
	if up < 1 || up > len(segs) {
		return ""
	}
	return segs[len(segs)-up]
}

// externalMounts are the prefixes treated as removable or network storage
var externalMounts = []string{"/Volumes", "/media", "/mnt", "/run/media"}

// IsLocalDisk reports whether a path is outside the usual external mount points
func IsLocalDisk(p string) bool {
	for _, m := range externalMounts {
		if IsUnder(p, m) {
			return false
		}
	}
	return true
}
