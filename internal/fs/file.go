// Package fs abstracts how a disk image or raw volume is opened for
// positional reads: plain os.Open everywhere except Windows, where raw
// volume paths like \\.\C: need CreateFile with sharing flags os.Open
// does not pass.
package fs

import (
	"io"
	"os"
)

// File is the positional-read handle the block layer and the report
// replay commands consume.
type File interface {
	io.ReadCloser
	io.ReaderAt
	Stat() (os.FileInfo, error)
}
