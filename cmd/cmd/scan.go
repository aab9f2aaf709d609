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
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/scafiti/argos/internal/disk"
	"github.com/scafiti/argos/internal/engine"
	"github.com/scafiti/argos/internal/signature"
	"github.com/scafiti/argos/pkg/pbar"
	fmtutil "github.com/scafiti/argos/pkg/util/format"
	"github.com/spf13/cobra"
)

func DefineScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <image_path>",
		Short: "Scan a disk image or device and carve deleted JPEG/PNG files",
		Long: `The 'scan' command streams a disk image or raw block device through the
signature scanner, pairs JPEG/PNG headers and footers with the linear,
bifragment and reassembly carving strategies, and writes every recovered
file plus a DFXML report describing how each one was found.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE:         RunScan,
	}

	cmd.Flags().StringP("dump", "d", "", "directory to write recovered files into (default: <image>-dump)")
	cmd.Flags().StringP("output", "o", "", "path of the DFXML report file (default: <image>-report.xml)")
	cmd.Flags().String("scan-buffer-size", "4MB", "size of the chunk handed to each scanning worker")
	cmd.Flags().Int("workers", 0, "number of scanning worker goroutines (default: number of CPUs)")
	cmd.Flags().String("min-file-size", "64KB", "minimum carved file size")
	cmd.Flags().String("max-jpeg-size", "50MB", "maximum carved JPEG size")
	cmd.Flags().String("max-png-size", "100MB", "maximum carved PNG size")
	cmd.Flags().Float64("min-confidence", 0.6, "minimum bifragment/reassembly confidence to keep a stitch")
	cmd.Flags().Bool("no-bifragment", false, "disable bifragment and reassembly carving, linear only")
	cmd.Flags().Bool("no-classify", false, "skip statistical pixel classification of recovered files")
	cmd.Flags().Bool("keep-non-photo", false, "keep recovered files the classifier does not judge a natural photo")
	cmd.Flags().String("log-file", "", "path to a structured scan log (default: no log file)")

	return cmd
}

func RunScan(cmd *cobra.Command, args []string) error {
	path := disk.NormalizeVolumePath(args[0])

	dumpDir, _ := cmd.Flags().GetString("dump")
	if dumpDir == "" {
		dumpDir = path + "-dump"
	}
	reportPath, _ := cmd.Flags().GetString("output")
	if reportPath == "" {
		reportPath = path + "-report.xml"
	}

	opts := engine.DefaultOptions(dumpDir)
	opts.ReportPath = reportPath
	opts.LogFilePath, _ = cmd.Flags().GetString("log-file")

	if bufSize := getBytes(cmd, "scan-buffer-size"); bufSize > 0 {
		opts.ChunkSize = int(bufSize)
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		opts.Workers = workers
	}

	opts.Carver.MinFileSize = getBytes(cmd, "min-file-size")
	opts.Carver.MaxFileSize[signature.JPEG] = getBytes(cmd, "max-jpeg-size")
	opts.Carver.MaxFileSize[signature.PNG] = getBytes(cmd, "max-png-size")

	if minConf, _ := cmd.Flags().GetFloat64("min-confidence"); minConf > 0 {
		opts.Carver.MinConfidence = float32(minConf)
	}
	if noBifragment, _ := cmd.Flags().GetBool("no-bifragment"); noBifragment {
		opts.Carver.BifragmentCarving = false
	}
	if noClassify, _ := cmd.Flags().GetBool("no-classify"); noClassify {
		opts.Extract.Classify = false
	}
	if keep, _ := cmd.Flags().GetBool("keep-non-photo"); keep {
		opts.Extract.RejectNonPhoto = false
		opts.Carver.FilterGraphics = false
	}

	var cancel atomic.Bool
	opts.Cancel = &cancel

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		fmt.Println("\n[INFO] cancellation requested, flushing partial results...")
		cancel.Store(true)
	}()

	var pb *pbar.ProgressBarState
	opts.Progress = func(scanned, total uint64, matches int) {
		if pb == nil {
			pb = pbar.NewProgressBarState(int64(total))
		}
		pb.ProcessedBytes = int64(scanned)
		pb.FilesFound = matches
		pb.Render(false)
	}

	fmt.Printf("[INFO] Starting scan of %s\n", absPath(path))
	fmt.Printf("[INFO] Destination: \t%s\n", absPath(dumpDir))
	fmt.Printf("[INFO] Report:      \t%s\n", absPath(reportPath))

	summary, err := engine.Run(path, opts)
	if pb != nil {
		pb.Finish()
	}
	if err != nil {
		return err
	}

	fmt.Printf("[INFO] Scan completed in %s\n", time.Duration(summary.ElapsedSeconds*float64(time.Second)).Round(time.Millisecond))
	fmt.Printf("[INFO] Headers found:     %d\n", summary.HeadersFound)
	fmt.Printf("[INFO] Footers found:     %d\n", summary.FootersFound)
	fmt.Printf("[INFO] Recovered:         %d (linear %d, bifragment %d, reassembled %d)\n",
		summary.Recovered, summary.LinearCount, summary.BifragmentCount, summary.ReassemblyCount)
	fmt.Printf("[INFO] Skipped:           %d\n", summary.Skipped)
	fmt.Printf("[INFO] Failed:            %d\n", summary.Failed)
	if len(summary.BadSectors) > 0 {
		fmt.Printf("[INFO] Bad sectors:      %d (zero-filled rate %.3f%%)\n", len(summary.BadSectors), summary.ZeroFilledSectorRate*100)
	}
	return nil
}

func absPath(path string) string {
	a, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return a
}

func getBytes(cmd *cobra.Command, name string) uint64 {
	s, _ := cmd.Flags().GetString(name)
	v, err := fmtutil.ParseBytes(s)
	if err != nil {
		return 0
	}
	return v
}
