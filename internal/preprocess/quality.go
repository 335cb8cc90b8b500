package preprocess

import (
	"image"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ArmanBehnam/clark/internal/vision"
)

// Level is the enhancement intensity chosen from an image quality assessment.
type Level string

const (
	LevelSkip      Level = "skip"
	LevelNormal    Level = "normal"
	LevelIntensify Level = "intensify"
)

// Quality marks. Contrast is the standard deviation of CIE L* (0-100), sharpness is
// the mean absolute Laplacian response on 8-bit luminance.
const (
	contrastHigh  = 25.0
	contrastLow   = 10.0
	sharpnessHigh = 12.0
	sharpnessLow  = 3.0

	sampleGrid = 96
)

// Quality is the measured condition of a page image.
type Quality struct {
	Contrast  float64 `json:"contrast"`
	Sharpness float64 `json:"sharpness"`
	Level     Level   `json:"level"`
}

// Assess measures contrast and sharpness and picks an enhancement level.
func Assess(img image.Image) Quality {
	q := Quality{
		Contrast:  lightnessStdDev(img),
		Sharpness: laplacianMean(img),
	}
	switch {
	case q.Contrast >= contrastHigh && q.Sharpness >= sharpnessHigh:
		q.Level = LevelSkip
	case q.Contrast < contrastLow || q.Sharpness < sharpnessLow:
		q.Level = LevelIntensify
	default:
		q.Level = LevelNormal
	}
	return q
}

// lightnessStdDev samples a fixed grid of pixels and returns the L* spread.
func lightnessStdDev(img image.Image) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}
	stepX := max(1, b.Dx()/sampleGrid)
	stepY := max(1, b.Dy()/sampleGrid)

	var sum, sumSq float64
	var n int
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue
			}
			l, _, _ := c.Lab()
			l *= 100
			sum += l
			sumSq += l * l
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// laplacianMean is the mean absolute 4-neighbour Laplacian over interior pixels.
func laplacianMean(img image.Image) float64 {
	gray := vision.Gray(img)
	b := gray.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return 0
	}
	var sum float64
	var n int
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			c := float64(gray.GrayAt(x, y).Y)
			lap := float64(gray.GrayAt(x-1, y).Y) + float64(gray.GrayAt(x+1, y).Y) +
				float64(gray.GrayAt(x, y-1).Y) + float64(gray.GrayAt(x, y+1).Y) - 4*c
			sum += math.Abs(lap)
			n++
		}
	}
	return sum / float64(n)
}
