//go:build !windows
// +build !windows

package fs

import "os"

// Open opens path for reading; on POSIX systems a regular os.Open serves
// files and block devices alike.
func Open(path string) (File, error) {
	return os.Open(path)
}
