package ocr

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// EnhancementTier is the strength of the enhancement applied to a page.
type EnhancementTier string

const (
	TierAggressive EnhancementTier = "aggressive"
	TierModerate   EnhancementTier = "moderate"
	TierMinimal    EnhancementTier = "minimal"
)

// SelectTier maps a quality score to an enhancement tier.
func SelectTier(score float64) EnhancementTier {
	switch {
	case score < 30:
		return TierAggressive
	case score < 70:
		return TierModerate
	default:
		return TierMinimal
	}
}

type unsharpMask struct {
	radius    float64
	percent   float64
	threshold float64
}

type tierSettings struct {
	contrast   float64
	brightness float64
	sharpen    unsharpMask
	blur       float64
}

var tiers = map[EnhancementTier]tierSettings{
	TierAggressive: {contrast: 1.5, brightness: 1.2, sharpen: unsharpMask{radius: 2, percent: 200, threshold: 2}, blur: 0.3},
	TierModerate:   {contrast: 1.2, brightness: 1.0, sharpen: unsharpMask{radius: 1, percent: 150, threshold: 3}, blur: 0.5},
	TierMinimal:    {contrast: 1.1, brightness: 1.0, sharpen: unsharpMask{radius: 0.5, percent: 120, threshold: 5}},
}

// ImageEnhancer prepares a rendered page for OCR.
type ImageEnhancer struct {
	maxImageSize int
	grayscale    bool
}

// NewImageEnhancer downscales images larger than maxImageSize (0 disables resizing)
// and optionally converts them to a single channel.
func NewImageEnhancer(maxImageSize int, grayscale bool) *ImageEnhancer {
	return &ImageEnhancer{maxImageSize: maxImageSize, grayscale: grayscale}
}

// Enhance resizes, converts and enhances img using tier. Failures in any step
// return the image as it was before that step.
func (e *ImageEnhancer) Enhance(img image.Image, tier EnhancementTier) image.Image {
	out := img
	logger := log.WithField("tier", string(tier))

	out = e.safeStep(out, "resize", func(in image.Image) image.Image {
		b := in.Bounds()
		if e.maxImageSize <= 0 || (b.Dx() <= e.maxImageSize && b.Dy() <= e.maxImageSize) {
			return in
		}
		resized := imaging.Fit(in, e.maxImageSize, e.maxImageSize, imaging.Lanczos)
		logger.WithFields(logrus.Fields{
			"from": fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
			"to":   fmt.Sprintf("%dx%d", resized.Bounds().Dx(), resized.Bounds().Dy()),
		}).Debug("Resized image")
		return resized
	})

	if e.grayscale {
		out = e.safeStep(out, "grayscale", func(in image.Image) image.Image {
			return toGray(in)
		})
	}

	settings, ok := tiers[tier]
	if !ok {
		settings = tiers[TierModerate]
	}
	out = e.safeStep(out, "contrast", func(in image.Image) image.Image {
		return adjustContrast(in, settings.contrast)
	})
	if settings.brightness != 1.0 {
		out = e.safeStep(out, "brightness", func(in image.Image) image.Image {
			return adjustBrightness(in, settings.brightness)
		})
	}
	out = e.safeStep(out, "sharpen", func(in image.Image) image.Image {
		return applyUnsharpMask(in, settings.sharpen)
	})
	if settings.blur > 0 {
		out = e.safeStep(out, "denoise", func(in image.Image) image.Image {
			return imaging.Blur(in, settings.blur)
		})
	}

	if e.grayscale {
		out = toGray(out)
	}
	logger.Debug("Applied image enhancement")
	return out
}

// safeStep runs one enhancement step, keeping the input if the step panics.
func (e *ImageEnhancer) safeStep(in image.Image, name string, step func(image.Image) image.Image) (out image.Image) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"step":  name,
				"panic": fmt.Sprint(r),
			}).Warn("Image enhancement step failed, keeping previous image")
			out = in
		}
	}()
	if res := step(in); res != nil {
		return res
	}
	return in
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// adjustContrast blends every pixel with the mean luminance of the image:
// out = mean + factor*(in-mean).
func adjustContrast(img image.Image, factor float64) image.Image {
	if factor == 1.0 {
		return img
	}
	g := newGrayPlane(img)
	mean, _ := meanStd(g.pix)
	mean = math.Round(mean)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(mean + factor*(float64(c.R)-mean)),
			G: clamp8(mean + factor*(float64(c.G)-mean)),
			B: clamp8(mean + factor*(float64(c.B)-mean)),
			A: c.A,
		}
	})
}

// adjustBrightness scales every channel by factor.
func adjustBrightness(img image.Image, factor float64) image.Image {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(float64(c.R) * factor),
			G: clamp8(float64(c.G) * factor),
			B: clamp8(float64(c.B) * factor),
			A: c.A,
		}
	})
}

// applyUnsharpMask adds percent/100 of the difference between the image and a
// blurred copy to every channel where that difference reaches threshold.
func applyUnsharpMask(img image.Image, mask unsharpMask) image.Image {
	src := imaging.Clone(img)
	blurred := imaging.Blur(src, mask.radius)
	amount := mask.percent / 100
	dst := image.NewNRGBA(src.Bounds())
	for i := 0; i+3 < len(src.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			orig := float64(src.Pix[i+c])
			diff := orig - float64(blurred.Pix[i+c])
			if math.Abs(diff) < mask.threshold {
				dst.Pix[i+c] = src.Pix[i+c]
				continue
			}
			dst.Pix[i+c] = clamp8(orig + diff*amount)
		}
		dst.Pix[i+3] = src.Pix[i+3]
	}
	return dst
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
