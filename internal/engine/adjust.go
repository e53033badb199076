package engine

import (
	"image/color"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// Brightness shifts lightness by a percentage in [-100, 100].
func (e *Engine) Brightness(im *Image, amount int) {
	im.Pixels = imaging.AdjustBrightness(im.Pixels, float64(amount))
}

// Contrast adjusts contrast by a percentage in [-100, 100].
func (e *Engine) Contrast(im *Image, amount int) {
	im.Pixels = imaging.AdjustContrast(im.Pixels, float64(amount))
}

// Saturation adjusts color intensity by a percentage in [-100, 100].
func (e *Engine) Saturation(im *Image, amount int) {
	im.Pixels = imaging.AdjustSaturation(im.Pixels, float64(amount))
}

// Hue rotates the hue wheel by the given degrees.
func (e *Engine) Hue(im *Image, degrees int) {
	im.Pixels = imaging.Clone(adjust.Hue(im.Pixels, degrees))
}

// RGBShift moves each channel independently by a percentage of full
// scale, so 100 saturates the channel and -100 empties it.
func (e *Engine) RGBShift(im *Image, r, g, b int) {
	dr := int(float64(r) * 255 / 100)
	dg := int(float64(g) * 255 / 100)
	db := int(float64(b) * 255 / 100)

	px := im.Pixels.Pix
	for i := 0; i < len(px); i += 4 {
		px[i] = clampByte(int(px[i]) + dr)
		px[i+1] = clampByte(int(px[i+1]) + dg)
		px[i+2] = clampByte(int(px[i+2]) + db)
	}
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func (e *Engine) Grayscale(im *Image) {
	im.Pixels = imaging.Grayscale(im.Pixels)
}

// Blur applies a gaussian blur with the given sigma.
func (e *Engine) Blur(im *Image, sigma float64) {
	if sigma <= 0 {
		return
	}
	im.Pixels = imaging.Clone(blur.Gaussian(im.Pixels, sigma))
}

// Sharpen applies an unsharp-style sharpen with the given sigma.
func (e *Engine) Sharpen(im *Image, sigma float64) {
	im.Pixels = imaging.Sharpen(im.Pixels, sigma)
}

// Modulate adjusts brightness and saturation by percentages and rotates
// the hue, in one HSL pass per pixel.
func (e *Engine) Modulate(im *Image, brightness, saturation, hue int) {
	bf := 1 + float64(brightness)/100
	sf := 1 + float64(saturation)/100
	hf := float64(hue)

	px := im.Pixels.Pix
	for i := 0; i < len(px); i += 4 {
		c := colorful.Color{
			R: float64(px[i]) / 255,
			G: float64(px[i+1]) / 255,
			B: float64(px[i+2]) / 255,
		}
		h, s, l := c.Hsl()
		h += hf
		for h >= 360 {
			h -= 360
		}
		for h < 0 {
			h += 360
		}
		out := colorful.Hsl(h, clampUnit(s*sf), clampUnit(l*bf)).Clamped()
		px[i] = uint8(out.R*255 + 0.5)
		px[i+1] = uint8(out.G*255 + 0.5)
		px[i+2] = uint8(out.B*255 + 0.5)
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Flatten paints the image over an opaque background, discarding alpha.
func (e *Engine) Flatten(im *Image, bg color.NRGBA) {
	canvas := imaging.New(im.Width(), im.Height(), bg)
	im.Pixels = imaging.OverlayCenter(canvas, im.Pixels, 1.0)
}

// AutoColor picks a representative background color by averaging the
// border pixels in Lab space, where the mean tracks perception better
// than raw RGB.
func (e *Engine) AutoColor(im *Image) color.NRGBA {
	w, h := im.Width(), im.Height()
	if w == 0 || h == 0 {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}

	var sumL, sumA, sumB float64
	var n int
	sample := func(x, y int) {
		c := im.Pixels.NRGBAAt(x, y)
		l, a, b := colorful.Color{
			R: float64(c.R) / 255,
			G: float64(c.G) / 255,
			B: float64(c.B) / 255,
		}.Lab()
		sumL += l
		sumA += a
		sumB += b
		n++
	}

	for x := 0; x < w; x++ {
		sample(x, 0)
		sample(x, h-1)
	}
	for y := 1; y < h-1; y++ {
		sample(0, y)
		sample(w-1, y)
	}

	avg := colorful.Lab(sumL/float64(n), sumA/float64(n), sumB/float64(n)).Clamped()
	return color.NRGBA{
		R: uint8(avg.R*255 + 0.5),
		G: uint8(avg.G*255 + 0.5),
		B: uint8(avg.B*255 + 0.5),
		A: 255,
	}
}
