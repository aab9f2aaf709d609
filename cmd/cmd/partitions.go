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
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/scafiti/argos/internal/disk"
	fmtutil "github.com/scafiti/argos/pkg/util/format"
	"github.com/spf13/cobra"
)

func DefinePartitionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "partitions <image_path>",
		Short: "List the partition-table entries of a disk image or device",
		Long: `The 'partitions' command prints the MBR partition table of an image so a
scan can be pointed at one partition's byte range instead of the whole
device. An image with no parseable partition table is reported as a
single whole-disk entry.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunPartitions,
	}
}

func RunPartitions(cmd *cobra.Command, args []string) error {
	path := disk.NormalizeVolumePath(args[0])

	parts, err := disk.DiscoverPartitions(path)
	if err != nil {
		return fmt.Errorf("partitions: %q: %w", path, err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NUM\tTYPE\tOFFSET\tSIZE")
	for _, p := range parts {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", p.Num, p.TypeName, p.Offset, fmtutil.FormatBytes(int64(p.Size)))
	}
	return w.Flush()
}
