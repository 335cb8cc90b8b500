package preprocess

import (
	"image"
	"math"

	"github.com/ArmanBehnam/clark/internal/vision"
)

// minTileSize keeps tile histograms populated enough for clipping to leave a
// usable equalization.
const minTileSize = 32

// CLAHE applies contrast-limited adaptive histogram equalization to the luminance of
// img using a tiles x tiles grid. The result is grayscale.
func CLAHE(img image.Image, clipLimit float64, tiles int) *image.Gray {
	gray := vision.Gray(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return out
	}
	tiles = max(1, min(tiles, w/minTileSize, h/minTileSize))

	tileW := int(math.Ceil(float64(w) / float64(tiles)))
	tileH := int(math.Ceil(float64(h) / float64(tiles)))
	tx := int(math.Ceil(float64(w) / float64(tileW)))
	ty := int(math.Ceil(float64(h) / float64(tileH)))

	luts := make([][256]uint8, tx*ty)
	for j := 0; j < ty; j++ {
		for i := 0; i < tx; i++ {
			r := image.Rect(i*tileW, j*tileH, min((i+1)*tileW, w), min((j+1)*tileH, h))
			luts[j*tx+i] = tileLUT(gray, b.Min, r, clipLimit)
		}
	}

	for y := 0; y < h; y++ {
		// position relative to tile centers
		fy := (float64(y)+0.5)/float64(tileH) - 0.5
		j0 := int(math.Floor(fy))
		wy := fy - float64(j0)
		j1 := j0 + 1
		j0 = clampInt(j0, 0, ty-1)
		j1 = clampInt(j1, 0, ty-1)
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)/float64(tileW) - 0.5
			i0 := int(math.Floor(fx))
			wx := fx - float64(i0)
			i1 := i0 + 1
			i0 = clampInt(i0, 0, tx-1)
			i1 = clampInt(i1, 0, tx-1)

			v := gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			top := (1-wx)*float64(luts[j0*tx+i0][v]) + wx*float64(luts[j0*tx+i1][v])
			bottom := (1-wx)*float64(luts[j1*tx+i0][v]) + wx*float64(luts[j1*tx+i1][v])
			out.Pix[y*out.Stride+x] = uint8(math.Round((1-wy)*top + wy*bottom))
		}
	}
	return out
}

// tileLUT builds the clipped, redistributed CDF mapping for one tile.
func tileLUT(gray *image.Gray, origin image.Point, r image.Rectangle, clipLimit float64) [256]uint8 {
	var hist [256]int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			hist[gray.GrayAt(origin.X+x, origin.Y+y).Y]++
		}
	}
	n := r.Dx() * r.Dy()

	var lut [256]uint8
	if n == 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	limit := math.Max(1, clipLimit*float64(n)/256)
	var clipped [256]float64
	excess := 0.0
	for i, c := range hist {
		v := float64(c)
		if v > limit {
			excess += v - limit
			v = limit
		}
		clipped[i] = v
	}
	bonus := excess / 256

	var cdf [256]float64
	sum := 0.0
	for i, v := range clipped {
		sum += v + bonus
		cdf[i] = sum
	}
	cdfMin := cdf[0]
	span := float64(n) - cdfMin
	for i := range lut {
		if span <= 0 {
			lut[i] = uint8(i)
			continue
		}
		lut[i] = uint8(math.Round(255 * (cdf[i] - cdfMin) / span))
	}
	return lut
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
