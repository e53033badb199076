package engine

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"refract-server-go/internal/filters"
	platformerrors "refract-server-go/internal/platform/errors"
)

// Watermark composites mark over the image. Alpha is transparency in
// percent, ratios bound the mark size as a percentage of the base
// dimensions, and a repeat position tiles the mark along that axis.
func (e *Engine) Watermark(im *Image, mark *Image, op filters.Watermark) {
	if op.WRatio > 0 || op.HRatio > 0 {
		maxW, maxH := mark.Width(), mark.Height()
		if op.WRatio > 0 {
			maxW = int(float64(im.Width()) * op.WRatio / 100)
		}
		if op.HRatio > 0 {
			maxH = int(float64(im.Height()) * op.HRatio / 100)
		}
		if maxW > 0 && maxH > 0 {
			mark.Pixels = imaging.Fit(mark.Pixels, maxW, maxH, imaging.Lanczos)
		}
	}

	opacity := float64(100-op.Alpha) / 100
	mw, mh := mark.Width(), mark.Height()
	if mw == 0 || mh == 0 || opacity <= 0 {
		return
	}

	xs := overlayOffsets(op.X, im.Width(), mw)
	ys := overlayOffsets(op.Y, im.Height(), mh)
	for _, y := range ys {
		for _, x := range xs {
			im.Pixels = imaging.Overlay(im.Pixels, mark.Pixels, image.Pt(x, y), opacity)
		}
	}
}

// overlayOffsets resolves one placement axis to concrete offsets; repeat
// yields one offset per tile.
func overlayOffsets(p filters.Position, size, mark int) []int {
	switch p.Kind {
	case filters.PositionLeft, filters.PositionTop:
		return []int{0}
	case filters.PositionRight, filters.PositionBottom:
		return []int{size - mark}
	case filters.PositionCenter:
		return []int{(size - mark) / 2}
	case filters.PositionRepeat:
		if mark <= 0 {
			return []int{0}
		}
		var offsets []int
		for off := 0; off < size; off += mark {
			offsets = append(offsets, off)
		}
		return offsets
	case filters.PositionPercent:
		return []int{int(p.Value * float64(size))}
	default: // pixels, negative anchors the far edge
		off := int(p.Value)
		if off < 0 {
			off = size + off - mark
		}
		return []int{off}
	}
}

// Label draws text onto the image. The bundled Go fonts back the
// rendering; a font argument of "bold" selects the bold face, anything
// else the regular one.
func (e *Engine) Label(im *Image, op filters.Label) error {
	const errOp = "engine.label"

	ttf := goregular.TTF
	if op.Font == "bold" {
		ttf = gobold.TTF
	}
	parsed, err := opentype.Parse(ttf)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindEngine, errOp, "parsing font", err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    float64(op.Size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindEngine, errOp, "building font face", err)
	}
	defer face.Close()

	r, g, b, ok := op.Color.RGB()
	if !ok {
		return platformerrors.New(platformerrors.KindEngine, errOp,
			"label color has no concrete value")
	}
	alpha := uint8(op.Alpha * 255 / 100)

	drawer := &font.Drawer{
		Dst:  im.Pixels,
		Src:  image.NewUniform(color.NRGBA{R: r, G: g, B: b, A: alpha}),
		Face: face,
	}
	textWidth := drawer.MeasureString(op.Text).Ceil()

	x := labelOffset(op.X, im.Width(), textWidth)
	y := labelOffset(op.Y, im.Height(), op.Size)

	metrics := face.Metrics()
	drawer.Dot = fixed.P(x, y+metrics.Ascent.Ceil())
	drawer.DrawString(op.Text)
	return nil
}

func labelOffset(p filters.Position, size, extent int) int {
	switch p.Kind {
	case filters.PositionLeft, filters.PositionTop:
		return 0
	case filters.PositionRight, filters.PositionBottom:
		return size - extent
	case filters.PositionCenter:
		return (size - extent) / 2
	case filters.PositionPercent:
		return int(p.Value * float64(size))
	default:
		off := int(p.Value)
		if off < 0 {
			off = size + off - extent
		}
		return off
	}
}

// RoundCorner clears the four corners outside an ellipse quadrant of
// radii rx, ry. Without a color the corners become transparent; with one
// they are painted over it.
func (e *Engine) RoundCorner(im *Image, rx, ry int, bg *color.NRGBA) {
	w, h := im.Width(), im.Height()
	if rx > w/2 {
		rx = w / 2
	}
	if ry > h/2 {
		ry = h / 2
	}
	if rx <= 0 || ry <= 0 {
		return
	}

	outside := func(x, y int) bool {
		// distance from the corner arc center, normalized to the radii
		dx := float64(rx-1-x) / float64(rx)
		dy := float64(ry-1-y) / float64(ry)
		return dx > 0 && dy > 0 && dx*dx+dy*dy > 1
	}

	clear := func(x, y int) {
		if bg != nil {
			im.Pixels.SetNRGBA(x, y, *bg)
		} else {
			c := im.Pixels.NRGBAAt(x, y)
			c.A = 0
			im.Pixels.SetNRGBA(x, y, c)
		}
	}

	for y := 0; y < ry; y++ {
		for x := 0; x < rx; x++ {
			if outside(x, y) {
				clear(x, y)         // top-left
				clear(w-1-x, y)     // top-right
				clear(x, h-1-y)     // bottom-left
				clear(w-1-x, h-1-y) // bottom-right
			}
		}
	}
}
