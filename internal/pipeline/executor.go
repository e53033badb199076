// Package pipeline turns one validated request into encoded result bytes.
// The executor owns operation ordering: geometry first (trim, crop,
// resize, padding), then the filter operations in their resolved
// sequence, then encoding with the output directives.
package pipeline

import (
	"context"
	"image"
	"image/color"
	"log/slog"

	"github.com/disintegration/imaging"

	"refract-server-go/internal/engine"
	"refract-server-go/internal/filters"
	"refract-server-go/internal/imagepath"
	platformerrors "refract-server-go/internal/platform/errors"
)

// SourceFetcher loads an auxiliary source image, the watermark overlay
// being the one consumer. The service wires this to the loader chain so
// watermark URIs resolve the same way primary sources do.
type SourceFetcher func(ctx context.Context, uri string) ([]byte, error)

// Engine is the pixel capability set the executor drives. Any conforming
// backend is substitutable; the executor never reaches past these
// methods.
type Engine interface {
	Decode(data []byte) (*engine.Image, error)
	Encode(im *engine.Image, opts engine.EncodeOptions) ([]byte, string, error)

	Trim(im *engine.Image, byBottomRight bool, tolerance float64)
	Crop(im *engine.Image, left, top, right, bottom float64)
	ResizeStretch(im *engine.Image, w, h int)
	ResizeFit(im *engine.Image, w, h int, upscale bool)
	ResizeFill(im *engine.Image, w, h int, spec engine.CropSpec)
	Scale(im *engine.Image, factor float64)
	Flip(im *engine.Image, horizontal, vertical bool)
	Rotate(im *engine.Image, angle int)
	Pad(im *engine.Image, left, top, right, bottom int, bg color.NRGBA)
	Embed(im *engine.Image, w, h int, halign, valign string, bg *image.NRGBA)
	BlurBackground(im *engine.Image, w, h int) *image.NRGBA

	Brightness(im *engine.Image, amount int)
	Contrast(im *engine.Image, amount int)
	Saturation(im *engine.Image, amount int)
	Hue(im *engine.Image, degrees int)
	RGBShift(im *engine.Image, r, g, b int)
	Grayscale(im *engine.Image)
	Blur(im *engine.Image, sigma float64)
	Sharpen(im *engine.Image, sigma float64)
	Modulate(im *engine.Image, brightness, saturation, hue int)
	Flatten(im *engine.Image, bg color.NRGBA)
	AutoColor(im *engine.Image) color.NRGBA

	Watermark(im *engine.Image, mark *engine.Image, op filters.Watermark)
	Label(im *engine.Image, op filters.Label) error
	RoundCorner(im *engine.Image, rx, ry int, bg *color.NRGBA)
}

var _ Engine = (*engine.Engine)(nil)

// Result is one rendered response payload.
type Result struct {
	Data        []byte
	ContentType string
}

// Executor applies the resolved plan to decoded pixels.
type Executor struct {
	engine Engine
	fetch  SourceFetcher
	log    *slog.Logger
}

func NewExecutor(eng Engine, fetch SourceFetcher, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{engine: eng, fetch: fetch, log: log}
}

// Execute runs the whole transform chain over source bytes. The caller
// has already authenticated the request and run the resource guard.
func (ex *Executor) Execute(ctx context.Context, source []byte, p imagepath.Params, res filters.Resolved) (Result, error) {
	im, err := ex.engine.Decode(source)
	if err != nil {
		return Result{}, err
	}

	if p.Trim {
		ex.engine.Trim(im, p.TrimBy == imagepath.TrimByBottomRight, p.TrimTolerance)
	}
	if p.HasCrop() {
		ex.engine.Crop(im, p.CropLeft, p.CropTop, p.CropRight, p.CropBottom)
	}

	if err := ex.applyGeometry(im, p, res); err != nil {
		return Result{}, err
	}
	ex.engine.Flip(im, p.HFlip, p.VFlip)

	if p.HasPadding() {
		pad := ex.resolvePadColor(im, res)
		ex.engine.Pad(im, p.PaddingLeft, p.PaddingTop, p.PaddingRight, p.PaddingBottom, pad)
	}

	for _, op := range res.Ops {
		if ctx.Err() != nil {
			return Result{}, platformerrors.Wrap(platformerrors.KindTimeout,
				"pipeline.execute", "canceled mid-chain", ctx.Err())
		}
		if err := ex.applyOp(ctx, im, op); err != nil {
			return Result{}, err
		}
	}

	if ctx.Err() != nil {
		return Result{}, platformerrors.Wrap(platformerrors.KindTimeout,
			"pipeline.execute", "canceled before encode", ctx.Err())
	}
	return ex.encode(im, res.Output)
}

// applyGeometry performs the resize step. Fill, focal and upscale are
// consumed here rather than in the ordered loop because they modify how
// the resize itself behaves.
func (ex *Executor) applyGeometry(im *engine.Image, p imagepath.Params, res filters.Resolved) error {
	upscale := false
	var focal *filters.Focal
	var fill *imagepath.Color
	for _, op := range res.Ops {
		switch v := op.(type) {
		case filters.Upscale:
			upscale = true
		case filters.Focal:
			f := v
			focal = &f
		case filters.Fill:
			c := v.Color
			fill = &c
		}
	}

	w, h := p.Width, p.Height
	if w == 0 && h == 0 {
		if fill != nil {
			ex.flattenFill(im, *fill)
		}
		return nil
	}

	switch {
	case p.Stretch:
		if w == 0 {
			w = im.Width()
		}
		if h == 0 {
			h = im.Height()
		}
		ex.engine.ResizeStretch(im, w, h)
	case p.FitIn:
		ex.engine.ResizeFit(im, w, h, upscale)
		if fill != nil && w > 0 && h > 0 {
			ex.embedFill(im, w, h, p, *fill)
		}
	default:
		if w == 0 || h == 0 {
			ex.engine.ResizeFit(im, w, h, true)
			return nil
		}
		spec := engine.CropSpec{HAlign: p.HAlign, VAlign: p.VAlign, Smart: p.Smart}
		if focal != nil {
			spec.HasFocal = true
			spec.FocalX, spec.FocalY = focalCenter(*focal, im)
		}
		ex.engine.ResizeFill(im, w, h, spec)
	}
	return nil
}

// focalCenter reduces a focal region to a fractional window center.
// Values above 1 are absolute source pixels.
func focalCenter(f filters.Focal, im *engine.Image) (x, y float64) {
	cx := (f.Left + f.Right) / 2
	cy := (f.Top + f.Bottom) / 2
	if f.Right > 1 || f.Bottom > 1 {
		cx /= float64(im.Width())
		cy /= float64(im.Height())
	}
	return cx, cy
}

// embedFill pads a fitted image out to the exact target canvas using the
// fill policy.
func (ex *Executor) embedFill(im *engine.Image, w, h int, p imagepath.Params, c imagepath.Color) {
	bg := ex.backgroundCanvas(im, w, h, c)
	ex.engine.Embed(im, w, h, p.HAlign, p.VAlign, bg)
}

func (ex *Executor) backgroundCanvas(im *engine.Image, w, h int, c imagepath.Color) *image.NRGBA {
	switch c.Kind {
	case imagepath.ColorBlur:
		return ex.engine.BlurBackground(im, w, h)
	case imagepath.ColorAuto:
		return imaging.New(w, h, ex.engine.AutoColor(im))
	case imagepath.ColorNone:
		return imaging.New(w, h, color.NRGBA{})
	default:
		return imaging.New(w, h, ex.concreteColor(c))
	}
}

func (ex *Executor) flattenFill(im *engine.Image, c imagepath.Color) {
	switch c.Kind {
	case imagepath.ColorNone, imagepath.ColorBlur:
		return
	case imagepath.ColorAuto:
		ex.engine.Flatten(im, ex.engine.AutoColor(im))
	default:
		ex.engine.Flatten(im, ex.concreteColor(c))
	}
}

func (ex *Executor) resolvePadColor(im *engine.Image, res filters.Resolved) color.NRGBA {
	for i := len(res.Ops) - 1; i >= 0; i-- {
		if f, ok := res.Ops[i].(filters.Fill); ok {
			switch f.Color.Kind {
			case imagepath.ColorAuto:
				return ex.engine.AutoColor(im)
			case imagepath.ColorNone, imagepath.ColorBlur:
				return color.NRGBA{}
			default:
				return ex.concreteColor(f.Color)
			}
		}
	}
	return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
}

func (ex *Executor) concreteColor(c imagepath.Color) color.NRGBA {
	r, g, b, ok := c.RGB()
	if !ok {
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func (ex *Executor) applyOp(ctx context.Context, im *engine.Image, op filters.Operation) error {
	switch v := op.(type) {
	case filters.Fill, filters.Focal, filters.Upscale:
		// consumed by the geometry step
	case filters.BackgroundColor:
		switch v.Color.Kind {
		case imagepath.ColorNone, imagepath.ColorBlur:
		case imagepath.ColorAuto:
			ex.engine.Flatten(im, ex.engine.AutoColor(im))
		default:
			ex.engine.Flatten(im, ex.concreteColor(v.Color))
		}
	case filters.Blur:
		ex.engine.Blur(im, v.Sigma)
	case filters.Sharpen:
		ex.engine.Sharpen(im, v.Sigma)
	case filters.Brightness:
		ex.engine.Brightness(im, v.Amount)
	case filters.Contrast:
		ex.engine.Contrast(im, v.Amount)
	case filters.Saturation:
		ex.engine.Saturation(im, v.Amount)
	case filters.Hue:
		ex.engine.Hue(im, v.Degrees)
	case filters.RGB:
		ex.engine.RGBShift(im, v.R, v.G, v.B)
	case filters.Grayscale:
		ex.engine.Grayscale(im)
	case filters.Modulate:
		ex.engine.Modulate(im, v.Brightness, v.Saturation, v.Hue)
	case filters.Rotate:
		ex.engine.Rotate(im, v.Angle)
	case filters.Orient:
		ex.engine.Rotate(im, v.Angle)
	case filters.Proportion:
		ex.engine.Scale(im, v.Percent/100)
	case filters.RoundCorner:
		var bg *color.NRGBA
		if v.Color.Kind != imagepath.ColorNone {
			c := ex.concreteColor(v.Color)
			bg = &c
		}
		ex.engine.RoundCorner(im, v.RX, v.RY, bg)
	case filters.Watermark:
		return ex.applyWatermark(ctx, im, v)
	case filters.Label:
		return ex.engine.Label(im, v)
	}
	return nil
}

func (ex *Executor) applyWatermark(ctx context.Context, im *engine.Image, op filters.Watermark) error {
	const errOp = "pipeline.watermark"

	if ex.fetch == nil {
		return platformerrors.New(platformerrors.KindEngine, errOp,
			"no source fetcher configured")
	}
	data, err := ex.fetch(ctx, op.Image)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindSource, errOp,
			"loading watermark "+op.Image, err)
	}
	mark, err := ex.engine.Decode(data)
	if err != nil {
		return err
	}
	ex.engine.Watermark(im, mark, op)
	return nil
}

// encode serializes the image, honoring max_bytes by geometrically
// degrading jpeg quality down to a floor of 10.
func (ex *Executor) encode(im *engine.Image, out filters.Output) (Result, error) {
	opts := engine.EncodeOptions{Format: out.Format, Quality: out.Quality}

	data, contentType, err := ex.engine.Encode(im, opts)
	if err != nil {
		return Result{}, err
	}
	if out.MaxBytes <= 0 || len(data) <= out.MaxBytes {
		return Result{Data: data, ContentType: contentType}, nil
	}

	// Only quality-parameterized encodes can shrink; force jpeg when the
	// current format ignores quality.
	if contentType != "image/jpeg" {
		opts.Format = "jpeg"
	}
	quality := opts.Quality
	if quality == 0 {
		quality = 75
	}
	for len(data) > out.MaxBytes && quality > 10 {
		quality /= 2
		if quality < 10 {
			quality = 10
		}
		opts.Quality = quality
		data, contentType, err = ex.engine.Encode(im, opts)
		if err != nil {
			return Result{}, err
		}
	}
	if len(data) > out.MaxBytes {
		ex.log.Warn("max_bytes target unreachable",
			"target", out.MaxBytes, "size", len(data), "quality", quality)
	}
	return Result{Data: data, ContentType: contentType}, nil
}
