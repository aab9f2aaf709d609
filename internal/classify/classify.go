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

// Package classify statistically distinguishes a genuine decoded
// photograph from an icon, screenshot, encrypted blob, or corrupted
// decode, entirely from pixel statistics: grayscale entropy, tiled
// local-entropy variance, kurtosis, gradient edge density, per-row
// horizontal discontinuity, and 15-bit color diversity.
package classify

import "math"

// Statistics holds the six measurements ImageClassifier computes from a
// decoded RGB (or grayscale) pixel buffer.
type Statistics struct {
	Entropy                 float64
	LocalEntropyVariance    float64
	Kurtosis                float64
	EdgeDensity             float64
	ColorDiversity          float64
	HorizontalDiscontinuity float64
	DistinctColors          int
	Mean                    float64
	StdDeviation            float64
}

// Classification is the final verdict ImageClassifier reaches.
type Classification int

const (
	NaturalPhoto Classification = iota
	ArtificialGraphic
	Corrupted
	Encrypted
	TooSmall
)

func (c Classification) IsPhoto() bool { return c == NaturalPhoto }

func (c Classification) String() string {
	switch c {
	case NaturalPhoto:
		return "natural photo"
	case ArtificialGraphic:
		return "artificial graphic"
	case Corrupted:
		return "corrupted"
	case Encrypted:
		return "encrypted"
	default:
		return "too small"
	}
}

// Config holds the classifier's decision thresholds.
type Config struct {
	MinPhotoEntropy  float64
	MaxValidEntropy  float64
	MinPhotoKurtosis float64
	MaxLocalVariance float64
	MinColorDiversity float64
	MaxDiscontinuity float64
	MinPixels        int
}

// DefaultConfig returns the classifier's default thresholds.
func DefaultConfig() Config {
	return Config{
		MinPhotoEntropy:   5.5,
		MaxValidEntropy:   7.99,
		MinPhotoKurtosis:  -1.0,
		MaxLocalVariance:  2.0,
		MinColorDiversity: 0.001,
		MaxDiscontinuity:  0.3,
		MinPixels:         10000,
	}
}

// Classifier computes Statistics from decoded pixels and reaches a
// Classification from them.
type Classifier struct {
	cfg Config
}

// NewClassifier returns a classifier using DefaultConfig.
func NewClassifier() *Classifier { return &Classifier{cfg: DefaultConfig()} }

// NewClassifierWithConfig returns a classifier using the given thresholds.
func NewClassifierWithConfig(cfg Config) *Classifier { return &Classifier{cfg: cfg} }

// ComputeStatistics derives Statistics from an interleaved pixel buffer
// of width*height pixels, each channels bytes wide (1 = grayscale, 3 =
// RGB, 4 = RGBA).
func (c *Classifier) ComputeStatistics(data []byte, width, height, channels int) Statistics {
	totalPixels := width * height
	if len(data) == 0 || totalPixels == 0 {
		return Statistics{}
	}

	gray := toGrayscale(data, channels)
	mean, std := computeMeanStd(gray)
	entropy := computeEntropy(gray)
	kurtosis := computeKurtosis(gray, mean, std)
	localVar := computeLocalEntropyVariance(gray, width, height)
	edgeDensity := computeEdgeDensity(gray, width, height)
	horizDisc := computeHorizontalDiscontinuity(gray, width, height)

	var colorDiv float64
	var distinct int
	if channels >= 3 {
		colorDiv, distinct = computeColorDiversity(data, channels)
	} else {
		seen := make(map[byte]bool)
		for _, v := range gray {
			seen[v] = true
		}
		distinct = len(seen)
		colorDiv = float64(distinct) / 256.0
	}

	return Statistics{
		Entropy:                 entropy,
		LocalEntropyVariance:    localVar,
		Kurtosis:                kurtosis,
		EdgeDensity:             edgeDensity,
		ColorDiversity:          colorDiv,
		HorizontalDiscontinuity: horizDisc,
		DistinctColors:          distinct,
		Mean:                    mean,
		StdDeviation:            std,
	}
}

// Classify applies the decision tree in a fixed order: first match wins.
func (c *Classifier) Classify(stats Statistics, totalPixels int) Classification {
	cfg := c.cfg

	if totalPixels < cfg.MinPixels {
		return TooSmall
	}
	if stats.Entropy > cfg.MaxValidEntropy && stats.LocalEntropyVariance < 0.1 {
		return Encrypted
	}
	if stats.HorizontalDiscontinuity > cfg.MaxDiscontinuity {
		return Corrupted
	}
	if (stats.Entropy < cfg.MinPhotoEntropy || stats.ColorDiversity < cfg.MinColorDiversity) &&
		stats.Kurtosis < cfg.MinPhotoKurtosis {
		return ArtificialGraphic
	}
	if stats.LocalEntropyVariance < 0.5 && stats.Entropy < 6.0 {
		return ArtificialGraphic
	}
	if stats.Entropy >= cfg.MinPhotoEntropy &&
		stats.Kurtosis >= cfg.MinPhotoKurtosis &&
		stats.ColorDiversity >= cfg.MinColorDiversity {
		return NaturalPhoto
	}
	return ArtificialGraphic
}

func toGrayscale(data []byte, channels int) []byte {
	switch channels {
	case 1:
		out := make([]byte, len(data))
		copy(out, data)
		return out
	case 3:
		n := len(data) / 3
		out := make([]byte, n)
		for i := 0; i < n; i++ {
			r, g, b := uint32(data[i*3]), uint32(data[i*3+1]), uint32(data[i*3+2])
			out[i] = byte((r*299 + g*587 + b*114) / 1000)
		}
		return out
	case 4:
		n := len(data) / 4
		out := make([]byte, n)
		for i := 0; i < n; i++ {
			r, g, b := uint32(data[i*4]), uint32(data[i*4+1]), uint32(data[i*4+2])
			out[i] = byte((r*299 + g*587 + b*114) / 1000)
		}
		return out
	default:
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
}

func computeEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]uint64
	for _, b := range data {
		counts[b]++
	}
	length := float64(len(data))
	entropy := 0.0
	for _, count := range counts {
		if count > 0 {
			p := float64(count) / length
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

func computeMeanStd(data []byte) (mean, std float64) {
	if len(data) == 0 {
		return 0, 0
	}
	var sum uint64
	for _, b := range data {
		sum += uint64(b)
	}
	mean = float64(sum) / float64(len(data))

	var variance float64
	for _, b := range data {
		d := float64(b) - mean
		variance += d * d
	}
	variance /= float64(len(data))
	return mean, math.Sqrt(variance)
}

func computeKurtosis(data []byte, mean, std float64) float64 {
	if len(data) == 0 || std == 0 {
		return 0
	}
	n := float64(len(data))
	var fourthMoment float64
	for _, b := range data {
		z := (float64(b) - mean) / std
		fourthMoment += z * z * z * z
	}
	return fourthMoment/n - 3.0
}

func computeLocalEntropyVariance(data []byte, width, height int) float64 {
	const gridSize = 4
	if width < gridSize || height < gridSize {
		return 0
	}
	cellW := width / gridSize
	cellH := height / gridSize

	var localEntropies []float64
	for gy := 0; gy < gridSize; gy++ {
		for gx := 0; gx < gridSize; gx++ {
			var cellData []byte
			for y := 0; y < cellH; y++ {
				rowStart := (gy*cellH+y)*width + gx*cellW
				rowEnd := rowStart + cellW
				if rowEnd <= len(data) {
					cellData = append(cellData, data[rowStart:rowEnd]...)
				}
			}
			if len(cellData) > 0 {
				localEntropies = append(localEntropies, computeEntropy(cellData))
			}
		}
	}
	if len(localEntropies) == 0 {
		return 0
	}
	var sum float64
	for _, e := range localEntropies {
		sum += e
	}
	mean := sum / float64(len(localEntropies))

	var variance float64
	for _, e := range localEntropies {
		d := e - mean
		variance += d * d
	}
	return variance / float64(len(localEntropies))
}

func computeEdgeDensity(data []byte, width, height int) float64 {
	if width < 3 || height < 3 || len(data) < width*height {
		return 0
	}
	const threshold = 30
	edgeCount := 0

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			idx := y*width + x
			gx := int(data[idx+1]) - int(data[idx-1])
			gy := int(data[idx+width]) - int(data[idx-width])
			gradient := int(math.Sqrt(float64(gx*gx + gy*gy)))
			if gradient > threshold {
				edgeCount++
			}
		}
	}
	return float64(edgeCount) / float64((width-2)*(height-2))
}

func computeHorizontalDiscontinuity(data []byte, width, height int) float64 {
	if width < 2 || height < 2 || len(data) < width*height {
		return 0
	}
	var rowGradients []float64
	for y := 0; y < height; y++ {
		rowStart := y * width
		if rowStart+width > len(data) {
			break
		}
		var rowGradient int64
		for x := 0; x < width-1; x++ {
			d := int64(data[rowStart+x+1]) - int64(data[rowStart+x])
			if d < 0 {
				d = -d
			}
			rowGradient += d
		}
		rowGradients = append(rowGradients, float64(rowGradient)/float64(width-1))
	}
	if len(rowGradients) < 2 {
		return 0
	}

	maxJump := 0.0
	for i := 1; i < len(rowGradients); i++ {
		jump := rowGradients[i] - rowGradients[i-1]
		if jump < 0 {
			jump = -jump
		}
		if jump > maxJump {
			maxJump = jump
		}
	}

	var sum float64
	for _, g := range rowGradients {
		sum += g
	}
	avgGradient := sum / float64(len(rowGradients))
	if avgGradient > 0 {
		return maxJump / avgGradient
	}
	return 0
}

func computeColorDiversity(data []byte, channels int) (float64, int) {
	var colorSeen [512]uint64

	totalPixels := len(data) / channels
	sampleStep := 1
	if totalPixels > 100000 {
		sampleStep = totalPixels / 100000
	}

	stride := channels * sampleStep
	for i := 0; i+2 < len(data); i += stride {
		r := int(data[i]) >> 3
		g := int(data[i+1]) >> 3
		b := int(data[i+2]) >> 3
		index := (r << 10) | (g << 5) | b
		colorSeen[index/64] |= 1 << uint(index%64)
	}

	count := 0
	for _, word := range colorSeen {
		count += popcount(word)
	}
	return float64(count) / 32768.0, count
}

func popcount(x uint64) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}
