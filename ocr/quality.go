package ocr

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// NeutralQualityScore is reported when an image cannot be assessed.
const NeutralQualityScore = 50.0

// Canny hysteresis thresholds used for the text density estimate.
const (
	cannyLowThreshold  = 50.0
	cannyHighThreshold = 150.0
)

var errEmptyImage = errors.New("empty image")

// AssessQuality scores how OCR-friendly an image is. It never fails: any internal
// error yields metrics carrying only the neutral score.
func AssessQuality(img image.Image) (metrics QualityMetrics) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Warn("Image quality assessment failed, using neutral score")
			metrics = QualityMetrics{QualityScore: NeutralQualityScore}
		}
	}()

	m, err := assessQuality(img)
	if err != nil {
		log.WithError(err).Warn("Image quality assessment failed, using neutral score")
		return QualityMetrics{QualityScore: NeutralQualityScore}
	}
	return m
}

func assessQuality(img image.Image) (QualityMetrics, error) {
	if img == nil {
		return QualityMetrics{}, errEmptyImage
	}
	g := newGrayPlane(img)
	if g.w == 0 || g.h == 0 {
		return QualityMetrics{}, errEmptyImage
	}

	mean, std := meanStd(g.pix)
	m := QualityMetrics{
		Resolution:  g.w * g.h,
		Contrast:    std,
		Brightness:  mean,
		Sharpness:   laplacianVariance(g),
		TextDensity: edgeDensity(g, cannyLowThreshold, cannyHighThreshold),
		NoiseLevel:  highPassNoise(g),
	}
	m.QualityScore = combineQualityScore(m)
	return m, nil
}

// combineQualityScore caps each contribution and clamps the total to [0, 100].
func combineQualityScore(m QualityMetrics) float64 {
	score := math.Min(float64(m.Resolution)/1e6, 30) +
		math.Min(m.Contrast/50, 20) +
		math.Min(m.Sharpness/100, 25) +
		math.Min(m.TextDensity*100, 15) +
		math.Max(0, 10-m.NoiseLevel/10)
	if math.IsNaN(score) {
		return NeutralQualityScore
	}
	return math.Min(100, math.Max(0, score))
}

// grayPlane is an 8-bit luminance image held as floats.
type grayPlane struct {
	w, h int
	pix  []float64
}

func newGrayPlane(img image.Image) grayPlane {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	g := grayPlane{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < g.h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < g.w; x++ {
			g.pix[y*g.w+x] = float64(row[x*4])
		}
	}
	return g
}

// at reads a pixel with reflect-101 border handling (gfedcb|abcdefgh|gfedcba).
func (g grayPlane) at(x, y int) float64 {
	return g.pix[reflect101(y, g.h)*g.w+reflect101(x, g.w)]
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// laplacianVariance is the variance of the 4-neighbour Laplacian response.
func laplacianVariance(g grayPlane) float64 {
	resp := make([]float64, len(g.pix))
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			resp[y*g.w+x] = g.at(x-1, y) + g.at(x+1, y) + g.at(x, y-1) + g.at(x, y+1) - 4*g.at(x, y)
		}
	}
	_, std := meanStd(resp)
	return std * std
}

// highPassNoise is the standard deviation of the 8-neighbour high-pass response
// saturated to the 8-bit range.
func highPassNoise(g grayPlane) float64 {
	resp := make([]float64, len(g.pix))
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			var neighbours float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx != 0 || dy != 0 {
						neighbours += g.at(x+dx, y+dy)
					}
				}
			}
			v := 8*g.at(x, y) - neighbours
			resp[y*g.w+x] = math.Round(math.Min(255, math.Max(0, v)))
		}
	}
	_, std := meanStd(resp)
	return std
}

// edgeDensity returns the fraction of pixels marked as edges by a Canny detector:
// Sobel gradients with L1 magnitude, non-maximum suppression and hysteresis.
func edgeDensity(g grayPlane, low, high float64) float64 {
	n := g.w * g.h
	gx := make([]float64, n)
	gy := make([]float64, n)
	mag := make([]float64, n)
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			dx := g.at(x+1, y-1) + 2*g.at(x+1, y) + g.at(x+1, y+1) -
				g.at(x-1, y-1) - 2*g.at(x-1, y) - g.at(x-1, y+1)
			dy := g.at(x-1, y+1) + 2*g.at(x, y+1) + g.at(x+1, y+1) -
				g.at(x-1, y-1) - 2*g.at(x, y-1) - g.at(x+1, y-1)
			i := y*g.w + x
			gx[i], gy[i] = dx, dy
			mag[i] = math.Abs(dx) + math.Abs(dy)
		}
	}

	magAt := func(x, y int) float64 {
		if x < 0 || y < 0 || x >= g.w || y >= g.h {
			return 0
		}
		return mag[y*g.w+x]
	}

	tan22 := math.Tan(math.Pi / 8)
	tan67 := math.Tan(3 * math.Pi / 8)

	// 0 = suppressed, 1 = weak candidate, 2 = strong edge
	state := make([]uint8, n)
	stack := make([]int, 0, n/16)
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			i := y*g.w + x
			m := mag[i]
			if m <= low {
				continue
			}
			ax, ay := math.Abs(gx[i]), math.Abs(gy[i])
			var n1, n2 float64
			switch {
			case ay <= ax*tan22:
				n1, n2 = magAt(x-1, y), magAt(x+1, y)
			case ay >= ax*tan67:
				n1, n2 = magAt(x, y-1), magAt(x, y+1)
			case gx[i]*gy[i] > 0:
				n1, n2 = magAt(x-1, y-1), magAt(x+1, y+1)
			default:
				n1, n2 = magAt(x+1, y-1), magAt(x-1, y+1)
			}
			if m <= n1 || m < n2 {
				continue
			}
			if m > high {
				state[i] = 2
				stack = append(stack, i)
			} else {
				state[i] = 1
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%g.w, i/g.w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= g.w || ny >= g.h {
					continue
				}
				j := ny*g.w + nx
				if state[j] == 1 {
					state[j] = 2
					stack = append(stack, j)
				}
			}
		}
	}

	edges := 0
	for _, s := range state {
		if s == 2 {
			edges++
		}
	}
	return float64(edges) / float64(n)
}
