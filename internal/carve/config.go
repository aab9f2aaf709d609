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

// Package carve orchestrates the three carving strategies (linear,
// bifragment, reassembly) against a finalized SignatureIndex and a
// BlockSource, deciding which byte ranges on the medium make up a
// recovered JPEG or PNG. It never writes output itself; that is
// internal/extract's job.
package carve

import "github.com/scafiti/argos/internal/signature"

// Config is every tunable the engine consults; it travels through this
// struct, never through package-level state.
type Config struct {
	ClusterSizes    []uint64
	MaxGap          uint64
	MinConfidence   float32
	MinFileSize     uint64
	MaxFileSize     map[signature.Format]uint64
	MinResolution   [2]int // width, height
	MinEntropy      float64
	MaxEntropy      float64
	MaxHeaderDistance uint64

	StructuralValidation bool
	BifragmentCarving    bool
	StatisticalFiltering bool
	FilterThumbnails     bool
	FilterGraphics       bool

	// PngBreakZeroThreshold is the run length of zero bytes inside a chunk
	// payload that marks a structural break. 512 is adopted here and
	// exposed so a
	// caller can override it.
	PngBreakZeroThreshold int

	// MaxContinuationCandidates bounds how many reassembly continuation
	// offsets are collected before giving up.
	MaxContinuationCandidates int

	// MinFragmentSize abandons a reassembly attempt whose head fragment,
	// after break detection, is shorter than this.
	MinFragmentSize uint64

	// FragmentationPointsPerCluster is k in the bifragment probe's
	// "k = 1..8" fragmentation-point search.
	FragmentationPointsPerCluster int
}

// DefaultConfig returns the engine's default tunables.
func DefaultConfig() Config {
	return Config{
		ClusterSizes:  []uint64{4096, 8192, 32768},
		MaxGap:        200 << 20,
		MinConfidence: 0.6,
		MinFileSize:   64 << 10,
		MaxFileSize: map[signature.Format]uint64{
			signature.JPEG: 50 << 20,
			signature.PNG:  100 << 20,
		},
		MinResolution:                 [2]int{600, 600},
		MinEntropy:                    6.0,
		MaxEntropy:                    7.99,
		MaxHeaderDistance:             200 << 20,
		StructuralValidation:          true,
		BifragmentCarving:             true,
		StatisticalFiltering:          true,
		FilterThumbnails:              true,
		FilterGraphics:                true,
		PngBreakZeroThreshold:         512,
		MaxContinuationCandidates:     16,
		MinFragmentSize:               4096,
		FragmentationPointsPerCluster: 8,
	}
}

func (c Config) maxFileSize(f signature.Format) uint64 {
	if v, ok := c.MaxFileSize[f]; ok {
		return v
	}
	return 50 << 20
}
