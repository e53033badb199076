package security

import (
	"bytes"
	"image"
	"log/slog"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	platformerrors "refract-server-go/internal/platform/errors"
)

// Limits are the resource ceilings enforced before any full decode. Zero
// values disable the corresponding check.
type Limits struct {
	MaxFileSize int64
	MaxWidth    int
	MaxHeight   int
	MaxPixels   int64
}

// Probe describes a source payload that passed the guard: its registered
// format name and header dimensions.
type Probe struct {
	Format string
	Width  int
	Height int
}

// Guard rejects decompression-bomb payloads by checking the byte length
// and the header-declared dimensions. Only image.DecodeConfig runs here,
// so a hostile payload is refused before any pixel allocation.
type Guard struct {
	limits Limits
	log    *slog.Logger
}

func NewGuard(limits Limits, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{limits: limits, log: log}
}

// Check validates raw source bytes against the configured ceilings.
func (g *Guard) Check(data []byte) (Probe, error) {
	const op = "security.guard"

	if len(data) == 0 {
		return Probe{}, platformerrors.New(platformerrors.KindSource, op,
			"empty source payload")
	}

	if g.limits.MaxFileSize > 0 && int64(len(data)) > g.limits.MaxFileSize {
		g.log.Warn("rejecting oversized source",
			"size", len(data), "max_size", g.limits.MaxFileSize)
		return Probe{}, platformerrors.Newf(platformerrors.KindResourceLimit, op,
			"file size %d exceeds limit %d", len(data), g.limits.MaxFileSize)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Probe{}, platformerrors.Wrap(platformerrors.KindSource, op,
			"unrecognized or corrupted image header", err)
	}

	if g.limits.MaxWidth > 0 && cfg.Width > g.limits.MaxWidth ||
		g.limits.MaxHeight > 0 && cfg.Height > g.limits.MaxHeight {
		g.log.Warn("rejecting oversized dimensions",
			"width", cfg.Width, "height", cfg.Height,
			"max_width", g.limits.MaxWidth, "max_height", g.limits.MaxHeight)
		return Probe{}, platformerrors.Newf(platformerrors.KindResourceLimit, op,
			"dimensions %dx%d exceed limit %dx%d",
			cfg.Width, cfg.Height, g.limits.MaxWidth, g.limits.MaxHeight)
	}

	pixels := int64(cfg.Width) * int64(cfg.Height)
	if g.limits.MaxPixels > 0 && pixels > g.limits.MaxPixels {
		g.log.Warn("rejecting pixel bomb",
			"pixels", pixels, "max_pixels", g.limits.MaxPixels)
		return Probe{}, platformerrors.Newf(platformerrors.KindResourceLimit, op,
			"pixel count %d exceeds limit %d", pixels, g.limits.MaxPixels)
	}

	return Probe{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
