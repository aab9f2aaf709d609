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

// Package engine is the top-level orchestrator the cmd/cmd commands
// drive: it wires block.Open, pipeline.Scan, internal/signature,
// internal/sigindex, internal/carve and internal/extract into a single
// Run call (BlockSource -> DiskScanner -> SignatureScanner ->
// SignatureIndex -> CarvingEngine -> Extractor), and writes the outcome
// as a DFXML report.
package engine

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/scafiti/argos/internal/block"
	"github.com/scafiti/argos/internal/carve"
	"github.com/scafiti/argos/internal/extract"
	"github.com/scafiti/argos/internal/pipeline"
	"github.com/scafiti/argos/internal/pngfmt"
	"github.com/scafiti/argos/internal/signature"
	"github.com/scafiti/argos/internal/sigindex"
	"github.com/scafiti/argos/pkg/dfxml"
)

// Progress is invoked as chunk results arrive, at most once per 100ms, and
// once more when the scan ends, with monotonically non-decreasing
// bytesScanned. No call is made while no chunk result arrives.
type Progress func(bytesScanned, totalBytes uint64, matchesSoFar int)

// Options configures one Run. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	OutputDir  string
	ReportPath string

	ChunkSize int
	Overlap   int
	Workers   int

	Carver  carve.Config
	Extract extract.Options

	// Cancel is the atomic boolean shared with the caller, typically set
	// from a SIGINT handler.
	Cancel *atomic.Bool

	Progress Progress

	// LogFilePath receives structured per-bad-sector and per-extraction-
	// failure records via slog.TextHandler. Empty discards logging.
	LogFilePath string
	LogLevel    slog.Level
}

// DefaultOptions returns an Options wired for outputDir with every
// subsystem's documented defaults.
func DefaultOptions(outputDir string) Options {
	return Options{
		OutputDir: outputDir,
		ChunkSize: pipeline.DefaultChunkSize,
		Overlap:   pipeline.DefaultOverlap,
		Carver:    carve.DefaultConfig(),
		Extract:   extract.DefaultOptions(outputDir),
		LogLevel:  slog.LevelInfo,
	}
}

// Summary is the outbound summary statistics block reported after a scan.
type Summary struct {
	ElapsedSeconds float64
	ScannedBytes   uint64

	HeadersFound int
	FootersFound int

	Recovered int
	Skipped   int
	Failed    int

	PendingCandidates int

	LinearCount     int
	BifragmentCount int
	ReassemblyCount int

	ZeroFilledSectorRate float64
	BadSectors           []uint64
}

// Run scans imagePath end to end and writes every recovered file into
// opts.OutputDir, plus (when opts.ReportPath is set) a DFXML manifest
// recording each RecoveredFile's byte runs, carving method and
// confidence. It never returns a fatal error for a recoverable
// per-sector or per-candidate failure; only errors setting up the log
// file, opening the source or output directory, and creating or starting
// the report file are surfaced.
func Run(imagePath string, opts Options) (Summary, error) {
	start := time.Now()

	logger, logFile, err := setupLogger(opts.LogFilePath, opts.LogLevel)
	if err != nil {
		return Summary{}, fmt.Errorf("engine: set up logger: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	src, err := block.Open(imagePath)
	if err != nil {
		logger.Error("failed to open source", "path", imagePath, "err", err)
		return Summary{}, fmt.Errorf("engine: open %q: %w", imagePath, err)
	}
	defer src.Close()
	logger.Info("source opened", "path", imagePath, "size", src.Size())

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return Summary{}, fmt.Errorf("engine: create output dir %q: %w", opts.OutputDir, err)
	}

	idx := sigindex.New()
	scanner := signature.NewScanner()

	matches := 0
	pcfg := pipeline.Config{ChunkSize: opts.ChunkSize, Overlap: opts.Overlap, Workers: opts.Workers}

	progressAdapter := func(scanned, total uint64) {
		if opts.Progress != nil {
			opts.Progress(scanned, total, matches)
		}
	}

	onChunk := func(c *pipeline.DataChunk) {
		if c.ZeroFilled {
			return
		}
		data := c.Bytes()
		scanner.Scan(data, c.Offset, func(m signature.Match) {
			switch m.Kind {
			case signature.Header:
				rel := m.Offset - c.Offset
				if !signature.QuickValidate(m.Format, data[rel:]) {
					return
				}
				// PNG dimensions sit at a fixed offset in IHDR, so
				// icon-sized candidates can be dropped before they ever
				// enter the index. JPEG dimensions need a marker walk and
				// are checked by the carving vetoes instead.
				if m.Format == signature.PNG && opts.Carver.FilterThumbnails && len(data)-int(rel) >= 24 {
					w := int(binary.BigEndian.Uint32(data[rel+16 : rel+20]))
					h := int(binary.BigEndian.Uint32(data[rel+20 : rel+24]))
					if pngfmt.ClassifyDimensions(w, h) != pngfmt.DimensionPhoto {
						return
					}
				}
				idx.AddHeader(m.Format, m.Offset)
				matches++
			case signature.Footer:
				idx.AddFooter(m.Format, m.Offset)
				matches++
			}
		})
	}

	badSectors, err := pipeline.Scan(src, pcfg, opts.Cancel, progressAdapter, onChunk)
	if err != nil {
		logger.Error("scan failed", "path", imagePath, "err", err)
		return Summary{}, fmt.Errorf("engine: scan %q: %w", imagePath, err)
	}
	for _, off := range badSectors.Offsets {
		logger.Warn("bad sector", "offset", off)
	}

	idx.Finalize()

	headersFound := idx.HeaderCount(signature.JPEG) + idx.HeaderCount(signature.PNG)
	footersFound := idx.FooterCount(signature.JPEG) + idx.FooterCount(signature.PNG)
	logger.Info("signature scan complete", "headers", headersFound, "footers", footersFound, "bad_sectors", len(badSectors.Offsets))

	carveEngine := carve.New(src, idx, opts.Carver)
	recovered, stats := carveEngine.Run()
	logger.Info("carving complete", "candidates", len(recovered), "linear", stats.LinearHits, "bifragment", stats.Bifragment, "reassembled", stats.Reassembled)

	extractOpts := opts.Extract
	extractOpts.OutputDir = opts.OutputDir
	// The statistical graphic/encrypted drop follows the carver's
	// filtering switches; the resolution floor below is unconditional and
	// applied inside the extractor regardless.
	if !opts.Carver.StatisticalFiltering {
		extractOpts.Classify = false
	}
	if !opts.Carver.FilterGraphics {
		extractOpts.RejectNonPhoto = false
	}
	if opts.Carver.MinResolution != [2]int{} {
		extractOpts.MinResolution = opts.Carver.MinResolution
	}
	if opts.Carver.MaxEntropy > 0 {
		extractOpts.ClassifierConfig.MaxValidEntropy = opts.Carver.MaxEntropy
	}
	extractor := extract.New(src, extractOpts)

	var report *dfxml.DFXMLWriter
	var reportFile *os.File
	if opts.ReportPath != "" {
		reportFile, err = os.Create(opts.ReportPath)
		if err != nil {
			return Summary{}, fmt.Errorf("engine: create report %q: %w", opts.ReportPath, err)
		}
		defer reportFile.Close()

		report = dfxml.NewDFXMLWriter(reportFile)
		if err := writeReportHeader(report, imagePath, src.Size()); err != nil {
			return Summary{}, fmt.Errorf("engine: write report header: %w", err)
		}
		defer report.Close()
	}

	summary := Summary{
		ScannedBytes:         src.Size(),
		HeadersFound:         headersFound,
		FootersFound:         footersFound,
		LinearCount:          stats.LinearHits,
		BifragmentCount:      stats.Bifragment,
		ReassemblyCount:      stats.Reassembled,
		PendingCandidates:    stats.Skipped[carve.SkipNoStitch],
		BadSectors:           badSectors.Offsets,
		ZeroFilledSectorRate: zeroFilledRate(badSectors, src.Size()),
	}

	for _, rf := range recovered {
		res, extractErr := extractor.Extract(rf)
		if extractErr != nil {
			logger.Error("extraction failed", "header_offset", rf.HeaderOffset(), "method", rf.Method.String(), "err", extractErr)
			summary.Failed++
			continue
		}
		if res.Skipped {
			logger.Warn("extraction skipped", "path", res.Path, "reason", res.SkipReason)
			summary.Skipped++
			continue
		}
		summary.Recovered++

		if report != nil {
			if err := report.WriteFileObject(fileObjectFor(res)); err != nil {
				logger.Error("failed to write report entry", "path", res.Path, "err", err)
				summary.Failed++
			}
		}
	}
	for _, n := range stats.Skipped {
		summary.Skipped += n
	}

	summary.ElapsedSeconds = time.Since(start).Seconds()
	logger.Info("run complete", "recovered", summary.Recovered, "skipped", summary.Skipped, "failed", summary.Failed, "elapsed_s", summary.ElapsedSeconds)
	return summary, nil
}

// setupLogger initializes a slog.Logger that writes to logFilePath, or
// discards output when logFilePath is empty.
func setupLogger(logFilePath string, minLevel slog.Level) (*slog.Logger, *os.File, error) {
	var writer io.Writer
	var file *os.File

	if logFilePath == "" {
		writer = io.Discard
	} else {
		logDir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %q: %w", logDir, err)
		}

		f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %q: %w", logFilePath, err)
		}
		writer = f
		file = f
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level:     minLevel,
		AddSource: true,
	})
	return slog.New(handler), file, nil
}

func zeroFilledRate(report pipeline.BadSectorReport, totalBytes uint64) float64 {
	if totalBytes == 0 || len(report.Offsets) == 0 {
		return 0
	}
	const sectorSize = 4096
	return float64(uint64(len(report.Offsets))*sectorSize) / float64(totalBytes)
}

func writeReportHeader(w *dfxml.DFXMLWriter, imagePath string, size uint64) error {
	return w.WriteHeader(dfxml.DFXMLHeader{
		XmlOutput: dfxml.XmlOutputVersion,
		Metadata:  dfxml.DefaultMetadata,
		Creator: dfxml.Creator{
			Package:              "argos",
			ExecutionEnvironment: dfxml.GetExecEnv(),
		},
		Source: dfxml.Source{
			ImageFilename: imagePath,
			SectorSize:    512,
			ImageSize:     size,
		},
	})
}

func fileObjectFor(res extract.Result) dfxml.FileObject {
	rf := res.RecoveredFile
	runs := make([]dfxml.ByteRun, len(rf.Ranges))
	var logical uint64
	for i, r := range rf.Ranges {
		runs[i] = dfxml.ByteRun{Offset: logical, ImgOffset: r.Start, Length: r.Len()}
		logical += r.Len()
	}
	return dfxml.FileObject{
		Filename:   res.Path,
		FileSize:   uint64(res.BytesWritten),
		Method:     rf.Method.String(),
		Confidence: rf.Confidence,
		ByteRuns:   dfxml.ByteRuns{Runs: runs},
	}
}
