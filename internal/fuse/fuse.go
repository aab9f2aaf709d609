//go:build linux
// +build linux

// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package fuse

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/scafiti/argos/pkg/reader"
)

// Range is a half-open byte range [Start, End) on the underlying image.
type Range struct {
	Start, End uint64
}

func (r Range) Len() uint64 { return r.End - r.Start }

// FileEntry describes one recovered file as a browsable RecoverFS node.
// Ranges holds 1..N disjoint byte ranges on the image: a linear
// recovery has exactly one, a bifragment or reassembled recovery has
// two. They are stitched at read time into a single logical file with
// pkg/reader.MultiReadSeeker.
type FileEntry struct {
	Name   string
	Ranges []Range
}

func (e FileEntry) size() uint64 {
	var total uint64
	for _, r := range e.Ranges {
		total += r.Len()
	}
	return total
}

type RecoverFS struct {
	r io.ReaderAt

	mtx     sync.RWMutex
	entries map[string]FileEntry

	mountpoint string
}

func (fs *RecoverFS) Root() (fs.Node, error) {
	return &Dir{
		fs: fs,
	}, nil
}

// Dir implements both fs.Node and fs.HandleReadDirAller
type Dir struct {
	fs *RecoverFS
}

func (*Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0555
	return nil
}

func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	e, ok := d.fs.entries[name]
	if !ok {
		return nil, fuse.ENOENT
	}

	readers := make([]io.ReadSeeker, len(e.Ranges))
	sizes := make([]int64, len(e.Ranges))
	for i, rg := range e.Ranges {
		readers[i] = io.NewSectionReader(d.fs.r, int64(rg.Start), int64(rg.Len()))
		sizes[i] = int64(rg.Len())
	}

	return &File{
		r:    reader.NewMultiReadSeeker(readers, sizes),
		size: e.size(),
	}, nil
}

func (d Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	d.fs.mtx.RLock()
	defer d.fs.mtx.RUnlock()

	i := 0
	dirEntries := make([]fuse.Dirent, len(d.fs.entries))
	for _, e := range d.fs.entries {
		dirEntries[i] = fuse.Dirent{
			Inode: uint64(i),
			Name:  e.Name,
			Type:  fuse.DT_File,
		}
		i++
	}
	sort.Slice(dirEntries, func(i, j int) bool {
		return dirEntries[i].Name < dirEntries[j].Name
	})
	for i := range dirEntries {
		dirEntries[i].Inode = uint64(i)
	}
	return dirEntries, nil
}

// File implements both fs.Node and fs.HandleReader. r stitches the
// entry's byte ranges into one logical stream; since MultiReadSeeker
// carries Seek position as internal state, reads against the same open
// handle are serialized with mtx rather than relying on ReadAt
// semantics.
type File struct {
	mtx  sync.Mutex
	r    *reader.MultiReadSeeker
	size uint64
}

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = 0444
	a.Size = f.size
	a.Mtime = time.Now()
	return nil
}

func (f *File) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	size := int(req.Size)
	offset := req.Offset

	if offset >= int64(f.size) {
		// Trying to read past EOF
		resp.Data = []byte{}
		return nil
	}

	// Clamp size if reading near EOF
	if offset+int64(size) > int64(f.size) {
		size = int(int64(f.size) - offset)
	}

	buf := make([]byte, size)

	f.mtx.Lock()
	defer f.mtx.Unlock()

	if _, err := f.r.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	n, err := f.r.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}

	resp.Data = buf[:n]
	return nil
}
