package imaging

import (
	"image"
	"math"
	"math/rand"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

// Palette extraction parameters: the image is sampled at paletteSide ×
// paletteSide and k-means runs paletteAttempts times from k-means++ seeds,
// each for at most paletteIterations rounds or until no center moves more
// than paletteEpsilon. The best-compacted attempt wins.
const (
	paletteSide       = 150
	paletteIterations = 200
	paletteEpsilon    = 0.1
	paletteAttempts   = 10
	paletteSeed       = 1
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// HSLColor represents a color in HSL space.
//
// H is in degrees (0-360), S and L in percent (0-100).
type HSLColor struct {
	H int `json:"h"`
	S int `json:"s"`
	L int `json:"l"`
}

// Swatch is one palette entry.
type Swatch struct {
	Hex        string   `json:"hex"`        // "#rrggbb"
	RGB        RGBColor `json:"rgb"`        // cluster center
	HSL        HSLColor `json:"hsl"`        // cluster center in HSL
	Percentage float64  `json:"percentage"` // share of sampled pixels (0-100)
}

// ExtractPalette returns the k dominant colors of img, most common first.
//
// The image is resized to 150×150 (ignoring aspect) and its pixels are
// clustered with k-means. Results are deterministic for a given image.
func ExtractPalette(img image.Image, k int) ([]Swatch, error) {
	if k < 1 {
		return nil, imgerr.Invalid("number of colors must be positive, got %d", k)
	}
	if k > paletteSide*paletteSide {
		return nil, imgerr.Invalid("number of colors %d exceeds the %d sampled pixels", k, paletteSide*paletteSide)
	}

	small := imaging.Resize(img, paletteSide, paletteSide, imaging.Box)
	samples := make([][3]float64, 0, paletteSide*paletteSide)
	for y := 0; y < paletteSide; y++ {
		row := small.Pix[y*small.Stride:]
		for x := 0; x < paletteSide; x++ {
			samples = append(samples, [3]float64{float64(row[x*4]), float64(row[x*4+1]), float64(row[x*4+2])})
		}
	}

	rng := rand.New(rand.NewSource(paletteSeed))
	var best clustering
	best.compactness = math.Inf(1)
	for a := 0; a < paletteAttempts; a++ {
		c := cluster(samples, k, rng)
		if c.compactness < best.compactness {
			best = c
		}
	}

	swatches := make([]Swatch, k)
	for i, center := range best.centers {
		r, g, b := uint8(center[0]), uint8(center[1]), uint8(center[2])
		col := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
		h, s, l := col.Hsl()
		swatches[i] = Swatch{
			Hex:        col.Hex(),
			RGB:        RGBColor{R: r, G: g, B: b},
			HSL:        HSLColor{H: int(h), S: int(s * 100), L: int(l * 100)},
			Percentage: float64(best.counts[i]) / float64(len(samples)) * 100,
		}
	}
	sort.SliceStable(swatches, func(i, j int) bool {
		return swatches[i].Percentage > swatches[j].Percentage
	})
	return swatches, nil
}

type clustering struct {
	centers     [][3]float64
	counts      []int
	compactness float64
}

func cluster(samples [][3]float64, k int, rng *rand.Rand) clustering {
	centers := seedCenters(samples, k, rng)
	labels := make([]int, len(samples))
	counts := make([]int, k)

	for iter := 0; iter < paletteIterations; iter++ {
		for i, s := range samples {
			labels[i] = nearest(centers, s)
		}

		var sums = make([][3]float64, k)
		for i := range counts {
			counts[i] = 0
		}
		for i, s := range samples {
			l := labels[i]
			counts[l]++
			sums[l][0] += s[0]
			sums[l][1] += s[1]
			sums[l][2] += s[2]
		}

		shift := 0.0
		for c := range centers {
			var next [3]float64
			if counts[c] == 0 {
				next = samples[rng.Intn(len(samples))]
			} else {
				n := float64(counts[c])
				next = [3]float64{sums[c][0] / n, sums[c][1] / n, sums[c][2] / n}
			}
			shift = math.Max(shift, math.Sqrt(sqDistance(next, centers[c])))
			centers[c] = next
		}
		if shift < paletteEpsilon {
			break
		}
	}

	var compactness float64
	for i := range counts {
		counts[i] = 0
	}
	for i, s := range samples {
		labels[i] = nearest(centers, s)
		counts[labels[i]]++
		compactness += sqDistance(s, centers[labels[i]])
	}
	return clustering{centers: centers, counts: counts, compactness: compactness}
}

// seedCenters picks the first center uniformly and each further one with
// probability proportional to its squared distance from the chosen centers.
func seedCenters(samples [][3]float64, k int, rng *rand.Rand) [][3]float64 {
	centers := make([][3]float64, 0, k)
	centers = append(centers, samples[rng.Intn(len(samples))])
	d2 := make([]float64, len(samples))
	for i, s := range samples {
		d2[i] = sqDistance(s, centers[0])
	}
	for len(centers) < k {
		var total float64
		for _, d := range d2 {
			total += d
		}
		next := rng.Intn(len(samples))
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range d2 {
				target -= d
				if target < 0 {
					next = i
					break
				}
			}
		}
		c := samples[next]
		centers = append(centers, c)
		for i, s := range samples {
			if d := sqDistance(s, c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centers
}

func nearest(centers [][3]float64, s [3]float64) int {
	best, bestD := 0, math.Inf(1)
	for c, center := range centers {
		if d := sqDistance(s, center); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

func sqDistance(a, b [3]float64) float64 {
	d0, d1, d2 := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return d0*d0 + d1*d1 + d2*d2
}
