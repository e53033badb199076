package engine

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
)

// Crop cuts the box (left,top)-(right,bottom). Coordinates are absolute
// pixels, or fractions of the source dimensions when every value lies in
// [0,1]. Out-of-bounds boxes are clamped to the image.
func (e *Engine) Crop(im *Image, left, top, right, bottom float64) {
	w := float64(im.Width())
	h := float64(im.Height())

	if left <= 1 && top <= 1 && right <= 1 && bottom <= 1 {
		left, right = left*w, right*w
		top, bottom = top*h, bottom*h
	}

	rect := image.Rect(int(left), int(top), int(right), int(bottom)).
		Intersect(im.Pixels.Bounds())
	if rect.Empty() {
		return
	}
	im.Pixels = imaging.Crop(im.Pixels, rect)
}

// Trim removes the uniform border. The reference color is taken from the
// given corner; a border pixel survives when any channel differs from the
// reference by more than tolerance.
func (e *Engine) Trim(im *Image, byBottomRight bool, tolerance float64) {
	b := im.Pixels.Bounds()
	if b.Dx() < 2 || b.Dy() < 2 {
		return
	}

	var ref color.NRGBA
	if byBottomRight {
		ref = im.Pixels.NRGBAAt(b.Max.X-1, b.Max.Y-1)
	} else {
		ref = im.Pixels.NRGBAAt(b.Min.X, b.Min.Y)
	}

	differs := func(x, y int) bool {
		c := im.Pixels.NRGBAAt(x, y)
		return absDiff(c.R, ref.R) > tolerance ||
			absDiff(c.G, ref.G) > tolerance ||
			absDiff(c.B, ref.B) > tolerance
	}

	rowDiffers := func(y int) bool {
		for x := b.Min.X; x < b.Max.X; x++ {
			if differs(x, y) {
				return true
			}
		}
		return false
	}
	colDiffers := func(x int) bool {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			if differs(x, y) {
				return true
			}
		}
		return false
	}

	top, bottom := b.Min.Y, b.Max.Y
	for top < bottom && !rowDiffers(top) {
		top++
	}
	for bottom > top && !rowDiffers(bottom-1) {
		bottom--
	}
	left, right := b.Min.X, b.Max.X
	for left < right && !colDiffers(left) {
		left++
	}
	for right > left && !colDiffers(right-1) {
		right--
	}

	if top >= bottom || left >= right {
		return // entire image is border, keep it untouched
	}
	im.Pixels = imaging.Crop(im.Pixels, image.Rect(left, top, right, bottom))
}

func absDiff(a, b uint8) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}

// ResizeStretch resizes to exactly w x h, ignoring the aspect ratio.
func (e *Engine) ResizeStretch(im *Image, w, h int) {
	im.Pixels = imaging.Resize(im.Pixels, w, h, imaging.Lanczos)
}

// ResizeFit shrinks the image to fit within w x h preserving the aspect
// ratio. It never enlarges unless upscale is set. A zero dimension leaves
// that axis unconstrained.
func (e *Engine) ResizeFit(im *Image, w, h int, upscale bool) {
	sw, sh := im.Width(), im.Height()

	switch {
	case w == 0 && h == 0:
		return
	case w == 0:
		if !upscale && sh <= h {
			return
		}
		im.Pixels = imaging.Resize(im.Pixels, 0, h, imaging.Lanczos)
	case h == 0:
		if !upscale && sw <= w {
			return
		}
		im.Pixels = imaging.Resize(im.Pixels, w, 0, imaging.Lanczos)
	default:
		if !upscale && sw <= w && sh <= h {
			return
		}
		im.Pixels = imaging.Fit(im.Pixels, w, h, imaging.Lanczos)
	}
}

// CropSpec positions the visible window when a resize must discard source
// area. Exactly one anchoring strategy applies: a focal region when
// HasFocal is set, the energy scan when Smart is set, the alignment
// keywords otherwise.
type CropSpec struct {
	HAlign, VAlign string
	Smart          bool
	HasFocal       bool
	FocalX, FocalY float64 // window center, fraction of source size
}

// ResizeFill scales so the image covers w x h, then crops the overflow
// window positioned by the crop spec. This is the default resize mode.
func (e *Engine) ResizeFill(im *Image, w, h int, spec CropSpec) {
	sw, sh := im.Width(), im.Height()
	if sw == 0 || sh == 0 || w == 0 || h == 0 {
		return
	}

	scale := float64(w) / float64(sw)
	if s := float64(h) / float64(sh); s > scale {
		scale = s
	}
	rw := int(float64(sw)*scale + 0.5)
	rh := int(float64(sh)*scale + 0.5)
	im.Pixels = imaging.Resize(im.Pixels, rw, rh, imaging.Lanczos)

	x := e.windowOffset(im, w, true, spec)
	y := e.windowOffset(im, h, false, spec)
	im.Pixels = imaging.Crop(im.Pixels, image.Rect(x, y, x+w, y+h))
}

// windowOffset picks the crop window start along one axis.
func (e *Engine) windowOffset(im *Image, window int, horizontal bool, spec CropSpec) int {
	size := im.Height()
	if horizontal {
		size = im.Width()
	}
	max := size - window
	if max <= 0 {
		return 0
	}

	switch {
	case spec.HasFocal:
		f := spec.FocalY
		if horizontal {
			f = spec.FocalX
		}
		return clamp(int(f*float64(size))-window/2, 0, max)
	case spec.Smart:
		return e.smartOffset(im, window, horizontal, max)
	}

	if horizontal {
		switch spec.HAlign {
		case "left":
			return 0
		case "right":
			return max
		}
	} else {
		switch spec.VAlign {
		case "top":
			return 0
		case "bottom":
			return max
		}
	}
	return max / 2
}

// smartOffset slides the window and keeps the position with the highest
// luminance-gradient energy, a cheap stand-in for saliency detection.
func (e *Engine) smartOffset(im *Image, window int, horizontal bool, max int) int {
	energy := e.axisEnergy(im, horizontal)

	// prefix sums for O(1) window energy
	prefix := make([]float64, len(energy)+1)
	for i, v := range energy {
		prefix[i+1] = prefix[i] + v
	}

	best, bestSum := 0, -1.0
	step := max/32 + 1
	for off := 0; off <= max; off += step {
		sum := prefix[off+window] - prefix[off]
		if sum > bestSum {
			best, bestSum = off, sum
		}
	}
	return best
}

// axisEnergy sums absolute luminance gradients per column (horizontal) or
// per row.
func (e *Engine) axisEnergy(im *Image, horizontal bool) []float64 {
	w, h := im.Width(), im.Height()
	n := h
	if horizontal {
		n = w
	}
	energy := make([]float64, n)

	lum := func(x, y int) float64 {
		c := im.Pixels.NRGBAAt(x, y)
		return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
	}

	for y := 0; y < h; y++ {
		for x := 1; x < w; x++ {
			g := lum(x, y) - lum(x-1, y)
			if g < 0 {
				g = -g
			}
			if horizontal {
				energy[x] += g
			} else {
				energy[y] += g
			}
		}
	}
	return energy
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Scale multiplies both dimensions by factor.
func (e *Engine) Scale(im *Image, factor float64) {
	if factor <= 0 || factor == 1 {
		return
	}
	w := int(float64(im.Width())*factor + 0.5)
	h := int(float64(im.Height())*factor + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	im.Pixels = imaging.Resize(im.Pixels, w, h, imaging.Lanczos)
}

// Flip mirrors the image along the requested axes.
func (e *Engine) Flip(im *Image, horizontal, vertical bool) {
	if horizontal {
		im.Pixels = imaging.FlipH(im.Pixels)
	}
	if vertical {
		im.Pixels = imaging.FlipV(im.Pixels)
	}
}

// Rotate turns the image counter-clockwise by a right angle.
func (e *Engine) Rotate(im *Image, angle int) {
	switch angle {
	case 90:
		im.Pixels = imaging.Rotate90(im.Pixels)
	case 180:
		im.Pixels = imaging.Rotate180(im.Pixels)
	case 270:
		im.Pixels = imaging.Rotate270(im.Pixels)
	}
}

// Pad extends the canvas by the given margins filled with bg.
func (e *Engine) Pad(im *Image, left, top, right, bottom int, bg color.NRGBA) {
	if left == 0 && top == 0 && right == 0 && bottom == 0 {
		return
	}
	w := im.Width() + left + right
	h := im.Height() + top + bottom
	canvas := imaging.New(w, h, bg)
	im.Pixels = imaging.Paste(canvas, im.Pixels, image.Pt(left, top))
}

// Embed centers the image on a w x h canvas according to the alignment,
// painting the uncovered area with the background. Used by fit-in when a
// fill color is requested.
func (e *Engine) Embed(im *Image, w, h int, halign, valign string, bg *image.NRGBA) {
	if w <= im.Width() && h <= im.Height() {
		return
	}
	x := (w - im.Width()) / 2
	switch halign {
	case "left":
		x = 0
	case "right":
		x = w - im.Width()
	}
	y := (h - im.Height()) / 2
	switch valign {
	case "top":
		y = 0
	case "bottom":
		y = h - im.Height()
	}
	im.Pixels = imaging.Paste(bg, im.Pixels, image.Pt(x, y))
}

// BlurBackground builds a w x h canvas from a blurred, stretched copy of
// the image, for the fill(blur) policy.
func (e *Engine) BlurBackground(im *Image, w, h int) *image.NRGBA {
	stretched := imaging.Resize(im.Pixels, w, h, imaging.Linear)
	return imaging.Clone(blur.Gaussian(stretched, 20))
}
