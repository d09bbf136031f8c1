package imaging

import (
	"image"
	"math"
)

// EdgeDetect runs Canny edge detection and returns a binary mask: 255 on
// edges, 0 elsewhere, with the input dimensions anchored at the origin.
//
// Thresholds are on the 0-255 gradient scale. Gradients at or above
// thresholdHigh are strong edges; gradients between the two thresholds are
// kept only when they touch a strong edge. The edge_detection operation uses
// 100/200.
//
// # Algorithm
//
//  1. Luminance with ITU-R BT.601 weights.
//  2. 5x5 Gaussian smoothing (sigma ≈ 1.4).
//  3. Sobel gradients, magnitude and direction.
//  4. Non-maximum suppression along the gradient direction.
//  5. Hysteresis with an 8-connected strong-neighbour test.
//
// Borders replicate the edge pixels.
func EdgeDetect(img image.Image, thresholdLow, thresholdHigh int) *image.Gray {
	src := NewPicture(img).Image()
	g := newPlane(src.Rect.Dx(), src.Rect.Dy())
	for y := 0; y < g.h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < g.w; x++ {
			g.set(x, y, luma(row[x*4], row[x*4+1], row[x*4+2])/255)
		}
	}

	smooth := gaussian5(g)
	mag, dir := sobel(smooth)
	thin := suppress(mag, dir)

	out := image.NewGray(image.Rect(0, 0, g.w, g.h))
	low := float64(thresholdLow) / 255
	high := float64(thresholdHigh) / 255
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			v := thin.at(x, y)
			if v >= high || (v >= low && thin.strongNeighbour(x, y, high)) {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// plane is a dense float64 raster.
type plane struct {
	w, h int
	v    []float64
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, v: make([]float64, w*h)}
}

func (p *plane) at(x, y int) float64 {
	return p.v[clamp(y, 0, p.h-1)*p.w+clamp(x, 0, p.w-1)]
}

func (p *plane) set(x, y int, v float64) {
	p.v[y*p.w+x] = v
}

func (p *plane) strongNeighbour(x, y int, high float64) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if p.at(x+dx, y+dy) >= high {
				return true
			}
		}
	}
	return false
}

var gaussKernel5 = [5][5]float64{
	{1, 4, 7, 4, 1},
	{4, 16, 26, 16, 4},
	{7, 26, 41, 26, 7},
	{4, 16, 26, 16, 4},
	{1, 4, 7, 4, 1},
}

// gaussian5 convolves with gaussKernel5 (sum 273).
func gaussian5(p *plane) *plane {
	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var sum float64
			for ky := -2; ky <= 2; ky++ {
				for kx := -2; kx <= 2; kx++ {
					sum += p.at(x+kx, y+ky) * gaussKernel5[ky+2][kx+2]
				}
			}
			out.set(x, y, sum/273)
		}
	}
	return out
}

func sobel(p *plane) (mag, dir *plane) {
	mag, dir = newPlane(p.w, p.h), newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			gx := -p.at(x-1, y-1) + p.at(x+1, y-1) +
				-2*p.at(x-1, y) + 2*p.at(x+1, y) +
				-p.at(x-1, y+1) + p.at(x+1, y+1)
			gy := -p.at(x-1, y-1) - 2*p.at(x, y-1) - p.at(x+1, y-1) +
				p.at(x-1, y+1) + 2*p.at(x, y+1) + p.at(x+1, y+1)
			mag.set(x, y, math.Hypot(gx, gy))
			dir.set(x, y, math.Atan2(gy, gx))
		}
	}
	return mag, dir
}

// suppress keeps a magnitude only where it is a local maximum across the
// edge. Border pixels are dropped.
func suppress(mag, dir *plane) *plane {
	out := newPlane(mag.w, mag.h)
	for y := 1; y < mag.h-1; y++ {
		for x := 1; x < mag.w-1; x++ {
			a := dir.at(x, y)
			if a < 0 {
				a += math.Pi
			}
			var n1, n2 float64
			switch {
			case a < math.Pi/8 || a >= 7*math.Pi/8:
				n1, n2 = mag.at(x-1, y), mag.at(x+1, y)
			case a < 3*math.Pi/8:
				n1, n2 = mag.at(x+1, y-1), mag.at(x-1, y+1)
			case a < 5*math.Pi/8:
				n1, n2 = mag.at(x, y-1), mag.at(x, y+1)
			default:
				n1, n2 = mag.at(x-1, y-1), mag.at(x+1, y+1)
			}
			if m := mag.at(x, y); m >= n1 && m >= n2 {
				out.set(x, y, m)
			}
		}
	}
	return out
}

// clamp constrains val to [lo, hi].
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
