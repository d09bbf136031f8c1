//go:build !opencv

package vision

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

// Engine names the active implementation.
const Engine = "native"

// Segment separates foreground from background. Pixels outside rect are
// background; pixels inside are relabelled over iterations rounds by a
// two-class color model (three centroids per class).
func Segment(f *Frame, rect image.Rectangle, iterations int) (*Mask, error) {
	if rect.Empty() || !rect.In(f.Bounds()) {
		return nil, imgerr.Transformf("segmentation rectangle %v does not fit a %dx%d image", rect, f.Width, f.Height)
	}

	fg := make([]bool, f.Width*f.Height)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			fg[y*f.Width+x] = true
		}
	}

	for it := 0; it < iterations; it++ {
		fgModel := fitColorModel(f, fg, true)
		bgModel := fitColorModel(f, fg, false)
		if len(bgModel) == 0 {
			break
		}
		changed := false
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			for x := rect.Min.X; x < rect.Max.X; x++ {
				i := y*f.Width + x
				c := pixelVec(f, i)
				want := fgModel.distance(c) < bgModel.distance(c)
				if want != fg[i] {
					fg[i] = want
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}

	mask := image.NewGray(f.Bounds())
	for i, on := range fg {
		if on {
			mask.Pix[(i/f.Width)*mask.Stride+i%f.Width] = 255
		}
	}
	return mask, nil
}

type colorModel [][3]float64

func (m colorModel) distance(c [3]float64) float64 {
	best := math.Inf(1)
	for _, k := range m {
		d := sqDist(k, c)
		if d < best {
			best = d
		}
	}
	return best
}

func pixelVec(f *Frame, i int) [3]float64 {
	return [3]float64{float64(f.Pix[i*3]), float64(f.Pix[i*3+1]), float64(f.Pix[i*3+2])}
}

func sqDist(a, b [3]float64) float64 {
	d0, d1, d2 := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return d0*d0 + d1*d1 + d2*d2
}

// fitColorModel runs a short k-means over the pixels labelled want.
func fitColorModel(f *Frame, labels []bool, want bool) colorModel {
	var samples [][3]float64
	count := 0
	for _, l := range labels {
		if l == want {
			count++
		}
	}
	if count == 0 {
		return nil
	}
	step := count/20000 + 1
	seen := 0
	for i, l := range labels {
		if l != want {
			continue
		}
		if seen%step == 0 {
			samples = append(samples, pixelVec(f, i))
		}
		seen++
	}
	return colorModel(kmeans(samples, 3, 4))
}

// kmeans seeds centroids at evenly spaced samples and refines them.
func kmeans(samples [][3]float64, k, rounds int) [][3]float64 {
	if len(samples) < k {
		k = len(samples)
	}
	centers := make([][3]float64, k)
	for i := range centers {
		centers[i] = samples[(2*i+1)*len(samples)/(2*k)]
	}
	assign := make([]int, len(samples))
	for r := 0; r < rounds; r++ {
		for i, s := range samples {
			best, bestD := 0, math.Inf(1)
			for j, c := range centers {
				if d := sqDist(s, c); d < bestD {
					best, bestD = j, d
				}
			}
			assign[i] = best
		}
		sums := make([][3]float64, k)
		counts := make([]int, k)
		for i, s := range samples {
			j := assign[i]
			sums[j][0] += s[0]
			sums[j][1] += s[1]
			sums[j][2] += s[2]
			counts[j]++
		}
		for j := range centers {
			if counts[j] == 0 {
				continue
			}
			n := float64(counts[j])
			centers[j] = [3]float64{sums[j][0] / n, sums[j][1] / n, sums[j][2] / n}
		}
	}
	return centers
}

// Inpaint fills the masked pixels from the boundary inward, each pixel taking
// the inverse-distance weighted mean of known pixels within radius.
func Inpaint(f *Frame, mask *Mask, radius int) (*Frame, error) {
	if mask.Bounds() != f.Bounds() {
		return nil, imgerr.Transformf("inpaint mask %v does not match image %v", mask.Bounds(), f.Bounds())
	}
	if radius < 1 {
		radius = 1
	}
	out := f.Clone()
	known := make([]bool, f.Width*f.Height)
	var unknown []int
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := y*f.Width + x
			if mask.Pix[y*mask.Stride+x] == 0 {
				known[i] = true
			} else {
				unknown = append(unknown, i)
			}
		}
	}

	type fill struct {
		i       int
		b, g, r uint8
	}
	for len(unknown) > 0 {
		var front []fill
		var rest []int
		for _, i := range unknown {
			x, y := i%f.Width, i/f.Width
			var sb, sg, sr, sw float64
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= f.Width || ny >= f.Height || !known[ny*f.Width+nx] {
						continue
					}
					w := 1 / float64(dx*dx+dy*dy)
					b, g, r := out.BGR(nx, ny)
					sb += w * float64(b)
					sg += w * float64(g)
					sr += w * float64(r)
					sw += w
				}
			}
			if sw == 0 {
				rest = append(rest, i)
				continue
			}
			front = append(front, fill{i, clampByte(sb / sw), clampByte(sg / sw), clampByte(sr / sw)})
		}
		if len(front) == 0 {
			// Nothing known anywhere near: leave the remainder untouched.
			break
		}
		for _, p := range front {
			out.SetBGR(p.i%f.Width, p.i/f.Width, p.b, p.g, p.r)
			known[p.i] = true
		}
		unknown = rest
	}
	return out, nil
}

// Denoise smooths noise with a median filter whose radius grows with strength.
func Denoise(f *Frame, strength float32) (*Frame, error) {
	radius := 1 + float64(strength)/15
	return FrameFromNRGBA(imaging.Clone(effect.Median(f.NRGBA(), radius))), nil
}

// DetailEnhance boosts local contrast with an unsharp mask.
func DetailEnhance(f *Frame, sigmaS, sigmaR float32) (*Frame, error) {
	out := effect.UnsharpMask(f.NRGBA(), float64(sigmaS)/4, 1+float64(sigmaR)*4)
	return FrameFromNRGBA(imaging.Clone(out)), nil
}

// Stylize produces a flat, painted look: edge-preserving median smoothing
// followed by tone quantization.
func Stylize(f *Frame, sigmaS, sigmaR float32) (*Frame, error) {
	levels := float32(4 + int(sigmaR*40))
	g := gift.New(
		gift.Median(int(sigmaS/10)|1, true),
		gift.GaussianBlur(sigmaR*4),
		gift.ColorFunc(func(r0, g0, b0, a0 float32) (float32, float32, float32, float32) {
			q := func(v float32) float32 { return float32(math.Round(float64(v*levels))) / levels }
			return q(r0), q(g0), q(b0), a0
		}),
	)
	src := f.NRGBA()
	dst := image.NewNRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return FrameFromNRGBA(dst), nil
}

// OilPaint replaces each pixel with the mean color of the most common
// intensity bin in its size×size neighbourhood.
func OilPaint(f *Frame, size, dynRatio int) (*Frame, error) {
	if dynRatio < 1 {
		dynRatio = 1
	}
	levels := 256 / (dynRatio * 8)
	if levels < 4 {
		levels = 4
	}
	radius := size / 2
	out := NewFrame(f.Width, f.Height)

	intensity := make([]int, f.Width*f.Height)
	for i := range intensity {
		b, g, r := f.Pix[i*3], f.Pix[i*3+1], f.Pix[i*3+2]
		lum := (int(r)*299 + int(g)*587 + int(b)*114) / 1000
		intensity[i] = lum * (levels - 1) / 255
	}

	count := make([]int, levels)
	sum := make([][3]int, levels)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			for i := range count {
				count[i] = 0
				sum[i] = [3]int{}
			}
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= f.Height {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= f.Width {
						continue
					}
					j := ny*f.Width + nx
					bin := intensity[j]
					count[bin]++
					sum[bin][0] += int(f.Pix[j*3])
					sum[bin][1] += int(f.Pix[j*3+1])
					sum[bin][2] += int(f.Pix[j*3+2])
				}
			}
			best := 0
			for i := range count {
				if count[i] > count[best] {
					best = i
				}
			}
			n := count[best]
			out.SetBGR(x, y, uint8(sum[best][0]/n), uint8(sum[best][1]/n), uint8(sum[best][2]/n))
		}
	}
	return out, nil
}

// PencilSketch renders a grayscale dodge-blend sketch.
func PencilSketch(f *Frame, sigmaS, sigmaR, shade float32) (*Frame, error) {
	src := f.NRGBA()
	gray := image.NewGray(src.Bounds())
	gift.New(gift.Grayscale()).Draw(gray, src)

	inverted := image.NewGray(gray.Bounds())
	gift.New(gift.Invert(), gift.GaussianBlur(sigmaS/6+sigmaR*10)).Draw(inverted, gray)

	out := NewFrame(f.Width, f.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			g := float64(gray.Pix[y*gray.Stride+x])
			blur := float64(inverted.Pix[y*inverted.Stride+x])
			v := g * 255 / (256 - blur)
			v *= 1 - float64(shade)
			c := clampByte(v)
			out.SetBGR(x, y, c, c, c)
		}
	}
	return out, nil
}

// DetectFaces needs trained Haar cascades, which only the opencv engine loads.
func DetectFaces(f *Frame, c Cascades) ([]image.Rectangle, error) {
	return nil, imgerr.Transformf("face detection is unavailable in the %s engine", Engine)
}

// DetectEyes needs trained Haar cascades, which only the opencv engine loads.
func DetectEyes(f *Frame, c Cascades, face image.Rectangle) ([]image.Rectangle, error) {
	return nil, imgerr.Transformf("eye detection is unavailable in the %s engine", Engine)
}

// WarpPerspective maps quad q onto a w×h rectangle using bilinear sampling.
func WarpPerspective(f *Frame, q Quad, w, h int) (*Frame, error) {
	if w <= 0 || h <= 0 {
		return nil, imgerr.Transformf("perspective output %dx%d is empty", w, h)
	}
	dst := [4][2]float64{{0, 0}, {float64(w - 1), 0}, {float64(w - 1), float64(h - 1)}, {0, float64(h - 1)}}
	var src [4][2]float64
	for i, p := range q {
		src[i] = [2]float64{float64(p.X), float64(p.Y)}
	}
	H, ok := homography(dst, src)
	if !ok {
		return nil, imgerr.Transformf("perspective points are degenerate")
	}

	out := NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			u, v := float64(x), float64(y)
			d := H[6]*u + H[7]*v + 1
			if d == 0 {
				continue
			}
			sx := (H[0]*u + H[1]*v + H[2]) / d
			sy := (H[3]*u + H[4]*v + H[5]) / d
			if b, g, r, ok := bilinear(f, sx, sy); ok {
				out.SetBGR(x, y, b, g, r)
			}
		}
	}
	return out, nil
}

// homography solves for the 3×3 matrix (h8 = 1) mapping from[i] to to[i].
func homography(from, to [4][2]float64) ([8]float64, bool) {
	var a [8][9]float64
	for i := 0; i < 4; i++ {
		u, v := from[i][0], from[i][1]
		x, y := to[i][0], to[i][1]
		a[2*i] = [9]float64{u, v, 1, 0, 0, 0, -u * x, -v * x, x}
		a[2*i+1] = [9]float64{0, 0, 0, u, v, 1, -u * y, -v * y, y}
	}
	for col := 0; col < 8; col++ {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return [8]float64{}, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		for r := 0; r < 8; r++ {
			if r == col {
				continue
			}
			k := a[r][col] / a[col][col]
			for c := col; c < 9; c++ {
				a[r][c] -= k * a[col][c]
			}
		}
	}
	var h [8]float64
	for i := range h {
		h[i] = a[i][8] / a[i][i]
	}
	return h, true
}

func bilinear(f *Frame, x, y float64) (b, g, r uint8, ok bool) {
	const eps = 1e-6
	maxX, maxY := float64(f.Width-1), float64(f.Height-1)
	if x < -eps || y < -eps || x > maxX+eps || y > maxY+eps {
		return 0, 0, 0, false
	}
	x = math.Min(math.Max(x, 0), maxX)
	y = math.Min(math.Max(y, 0), maxY)
	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 >= f.Width {
		x1 = x0
	}
	if y1 >= f.Height {
		y1 = y0
	}
	fx, fy := x-float64(x0), y-float64(y0)
	var out [3]float64
	for c := 0; c < 3; c++ {
		p00 := float64(f.Pix[(y0*f.Width+x0)*3+c])
		p10 := float64(f.Pix[(y0*f.Width+x1)*3+c])
		p01 := float64(f.Pix[(y1*f.Width+x0)*3+c])
		p11 := float64(f.Pix[(y1*f.Width+x1)*3+c])
		top := p00 + (p10-p00)*fx
		bot := p01 + (p11-p01)*fx
		out[c] = top + (bot-top)*fy
	}
	return clampByte(out[0]), clampByte(out[1]), clampByte(out[2]), true
}

// stitchTolerance is the largest mean per-channel difference accepted in an
// overlap before the pair is declared unalignable.
const stitchTolerance = 12.0

// Stitch joins frames left to right. Each neighbour is scaled to the
// panorama height and placed at the horizontal overlap that minimises the
// mean absolute difference; the overlap is cross-faded.
func Stitch(frames []*Frame) (*Frame, error) {
	if len(frames) < 2 {
		return nil, errors.Wrap(imgerr.ErrStitchingFailed, "need at least two images")
	}
	pano := frames[0]
	for i, next := range frames[1:] {
		if next.Height != pano.Height {
			w := next.Width * pano.Height / next.Height
			next = FrameFromNRGBA(imaging.Resize(next.NRGBA(), w, pano.Height, imaging.Lanczos))
		}
		ov, score := bestOverlap(pano, next)
		if ov == 0 || score > stitchTolerance {
			return nil, errors.Wrapf(imgerr.ErrStitchingFailed, "image %d does not overlap its neighbour", i+1)
		}
		pano = joinFrames(pano, next, ov)
	}
	return pano, nil
}

func bestOverlap(a, b *Frame) (int, float64) {
	limit := a.Width
	if b.Width < limit {
		limit = b.Width
	}
	minOv := limit / 10
	if minOv < 4 {
		minOv = 4
	}
	maxOv := limit * 9 / 10
	rowStep := a.Height/64 + 1

	bestOv, bestScore := 0, math.Inf(1)
	for ov := minOv; ov <= maxOv; ov++ {
		colStep := ov/64 + 1
		var diff, n float64
		for y := 0; y < a.Height; y += rowStep {
			for x := 0; x < ov; x += colStep {
				ia := (y*a.Width + a.Width - ov + x) * 3
				ib := (y*b.Width + x) * 3
				for c := 0; c < 3; c++ {
					diff += math.Abs(float64(a.Pix[ia+c]) - float64(b.Pix[ib+c]))
				}
				n += 3
			}
		}
		if n == 0 {
			continue
		}
		if score := diff / n; score < bestScore {
			bestOv, bestScore = ov, score
		}
	}
	return bestOv, bestScore
}

func joinFrames(a, b *Frame, ov int) *Frame {
	out := NewFrame(a.Width+b.Width-ov, a.Height)
	for y := 0; y < a.Height; y++ {
		for x := 0; x < out.Width; x++ {
			var bb, gg, rr uint8
			switch ax := x; {
			case ax < a.Width-ov:
				bb, gg, rr = a.BGR(ax, y)
			case ax < a.Width:
				t := float64(ax-(a.Width-ov)+1) / float64(ov+1)
				b0, g0, r0 := a.BGR(ax, y)
				b1, g1, r1 := b.BGR(ax-(a.Width-ov), y)
				bb = clampByte(float64(b0)*(1-t) + float64(b1)*t)
				gg = clampByte(float64(g0)*(1-t) + float64(g1)*t)
				rr = clampByte(float64(r0)*(1-t) + float64(r1)*t)
			default:
				bb, gg, rr = b.BGR(ax-(a.Width-ov), y)
			}
			out.SetBGR(x, y, bb, gg, rr)
		}
	}
	return out
}

