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
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scafiti/argos/internal/fs"
	"github.com/scafiti/argos/internal/fuse"
	"github.com/scafiti/argos/pkg/dfxml"
	"github.com/spf13/cobra"
)

func DefineMountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount <image_path> <report_file>",
		Short: "Browse recovered files in-place with a read-only FUSE mount",
		Long: `The 'mount' command exposes every fileobject in a DFXML report as a
read-only file in a FUSE filesystem, reading straight from the
original image. A bifragment or reassembled file's byte runs are
stitched together transparently at read time, so a file carved from
two disjoint image ranges still appears and reads as one contiguous
file.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE:         RunMount,
	}

	cmd.Flags().StringP("mountpoint", "m", "", "directory to mount onto (default: derived from the report filename)")
	return cmd
}

func RunMount(cmd *cobra.Command, args []string) error {
	f, err := fs.Open(args[0])
	if err != nil {
		return fmt.Errorf("mount: open image %q: %w", args[0], err)
	}
	defer f.Close()

	reportFile, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("mount: open report %q: %w", args[1], err)
	}
	defer reportFile.Close()

	mountpoint, _ := cmd.Flags().GetString("mountpoint")
	if mountpoint == "" {
		mountpoint = getMountpoint(reportFile.Name())
	}

	objects, err := dfxml.ReadFileObjects(bufio.NewReader(reportFile))
	if err != nil {
		return fmt.Errorf("mount: parse report %q: %w", args[1], err)
	}

	entries, err := fileObjectsToEntries(objects)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	return fuse.Mount(mountpoint, f, entries)
}

// getMountpoint generates a mountpoint name from a report file name by stripping the extension.
// If the extension is empty, "_mnt" is added.
func getMountpoint(reportFileName string) string {
	baseName := filepath.Base(reportFileName)
	ext := filepath.Ext(baseName)
	baseName = strings.TrimSuffix(baseName, ext)
	mountpoint := baseName
	if ext == "" {
		mountpoint += "_mnt"
	}
	return mountpoint
}

// fileObjectsToEntries converts every fileobject's byte runs into a
// fuse.FileEntry, carrying all of them rather than just the first: a
// bifragment or reassembled recovery needs every run to read back as one
// contiguous file under the mount.
func fileObjectsToEntries(objs []dfxml.FileObject) ([]fuse.FileEntry, error) {
	entries := make([]fuse.FileEntry, len(objs))
	for i, o := range objs {
		runs := o.ByteRuns.Runs
		if len(runs) < 1 {
			return nil, fmt.Errorf("invalid report file: %q has no byte runs", o.Filename)
		}

		ranges := make([]fuse.Range, len(runs))
		for j, run := range runs {
			ranges[j] = fuse.Range{Start: run.ImgOffset, End: run.ImgOffset + run.Length}
		}

		entries[i] = fuse.FileEntry{
			Name:   filepath.Base(o.Filename),
			Ranges: ranges,
		}
	}
	return entries, nil
}
