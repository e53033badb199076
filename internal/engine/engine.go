// Package engine performs the pixel work: decoding sources, applying
// geometry and color transforms, and encoding results. It is deliberately
// free of request-level concerns; the pipeline decides what to call and in
// which order.
package engine

import (
	"bytes"
	"image"
	"log/slog"

	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	platformerrors "refract-server-go/internal/platform/errors"
)

// Image is one decoded working image. Pixels are held as NRGBA so every
// transform operates on the same representation.
type Image struct {
	Pixels *image.NRGBA
	Format string // registered name of the source codec
}

func (im *Image) Width() int  { return im.Pixels.Bounds().Dx() }
func (im *Image) Height() int { return im.Pixels.Bounds().Dy() }

// Engine is the pure-Go image backend.
type Engine struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log}
}

// Decode fully decodes source bytes. Callers are expected to have run the
// security guard against the same bytes first.
func (e *Engine) Decode(data []byte) (*Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindEngine, "engine.decode",
			"decoding source image", err)
	}
	return &Image{Pixels: imaging.Clone(img), Format: format}, nil
}

// EncodeOptions are the encode-time directives resolved from the filter
// chain. An empty Format keeps the source format.
type EncodeOptions struct {
	Format  string
	Quality int
}

// ContentType maps a format name to its MIME type.
func ContentType(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// Encode serializes the image. Formats the standard library cannot encode
// (webp sources, for one) fall back to png rather than failing, since a
// decodable source should always produce a servable result.
func (e *Engine) Encode(im *Image, opts EncodeOptions) ([]byte, string, error) {
	const op = "engine.encode"

	format := opts.Format
	if format == "" {
		format = im.Format
	}
	switch format {
	case "jpeg", "png", "gif", "bmp", "tiff":
	default:
		e.log.Debug("falling back to png encode", "source_format", format)
		format = "png"
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		q := opts.Quality
		if q == 0 {
			q = jpeg.DefaultQuality
		}
		err = jpeg.Encode(&buf, im.Pixels, &jpeg.Options{Quality: q})
	case "png":
		err = png.Encode(&buf, im.Pixels)
	case "gif":
		err = gif.Encode(&buf, im.Pixels, nil)
	case "bmp":
		err = bmp.Encode(&buf, im.Pixels)
	case "tiff":
		err = tiff.Encode(&buf, im.Pixels, &tiff.Options{Compression: tiff.Deflate})
	}
	if err != nil {
		return nil, "", platformerrors.Wrap(platformerrors.KindEngine, op,
			"encoding as "+format, err)
	}
	return buf.Bytes(), ContentType(format), nil
}
