package vision

import (
	"image"
	"sort"
)

// Component is one 8-connected group of set pixels.
type Component struct {
	Bounds image.Rectangle
	Pixels int
}

// BorderCoverage is the fraction of positions along the four sides of r that have
// a set pixel within band pixels of the side. An outlined box scores close to 1.
func BorderCoverage(b *Bitmap, r image.Rectangle, band int) float64 {
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return 0
	}
	hit := func(x0, y0, x1, y1 int) bool {
		return b.Count(image.Rect(x0, y0, x1, y1)) > 0
	}
	covered, total := 0, 0
	for x := r.Min.X; x < r.Max.X; x++ {
		if hit(x, r.Min.Y, x+1, r.Min.Y+band) {
			covered++
		}
		if hit(x, r.Max.Y-band, x+1, r.Max.Y) {
			covered++
		}
		total += 2
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		if hit(r.Min.X, y, r.Min.X+band, y+1) {
			covered++
		}
		if hit(r.Max.X-band, y, r.Max.X, y+1) {
			covered++
		}
		total += 2
	}
	return float64(covered) / float64(total)
}

// Components labels 8-connected components with an iterative flood fill and drops
// those smaller than minPixels. The result is ordered top to bottom, left to right.
func Components(b *Bitmap, minPixels int) []Component {
	visited := make([]bool, len(b.Bits))
	var out []Component
	var stack []image.Point

	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			i := y*b.W + x
			if !b.Bits[i] || visited[i] {
				continue
			}
			comp := Component{Bounds: image.Rect(x, y, x+1, y+1)}
			stack = append(stack[:0], image.Pt(x, y))
			visited[i] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				comp.Pixels++
				comp.Bounds = comp.Bounds.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || ny < 0 || nx >= b.W || ny >= b.H {
							continue
						}
						j := ny*b.W + nx
						if b.Bits[j] && !visited[j] {
							visited[j] = true
							stack = append(stack, image.Pt(nx, ny))
						}
					}
				}
			}
			if comp.Pixels >= minPixels {
				out = append(out, comp)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Bounds.Min.Y != out[j].Bounds.Min.Y {
			return out[i].Bounds.Min.Y < out[j].Bounds.Min.Y
		}
		return out[i].Bounds.Min.X < out[j].Bounds.Min.X
	})
	return out
}

// Projection returns the set-pixel count per column (horizontal=false) or per row
// (horizontal=true) inside r.
func Projection(b *Bitmap, r image.Rectangle, horizontal bool) []int {
	r = r.Intersect(b.Bounds())
	if horizontal {
		out := make([]int, r.Dy())
		for y := r.Min.Y; y < r.Max.Y; y++ {
			out[y-r.Min.Y] = b.Count(image.Rect(r.Min.X, y, r.Max.X, y+1))
		}
		return out
	}
	out := make([]int, r.Dx())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if b.Bits[y*b.W+x] {
				out[x-r.Min.X]++
			}
		}
	}
	return out
}

// Peaks returns the centers of runs in a projection whose values reach minValue.
// Adjacent qualifying positions collapse into one peak.
func Peaks(proj []int, minValue int) []int {
	var peaks []int
	start := -1
	for i := 0; i <= len(proj); i++ {
		on := i < len(proj) && proj[i] >= minValue
		if on && start < 0 {
			start = i
		}
		if !on && start >= 0 {
			peaks = append(peaks, (start+i-1)/2)
			start = -1
		}
	}
	return peaks
}
