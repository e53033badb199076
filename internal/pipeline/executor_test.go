package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"

	"refract-server-go/internal/engine"
	"refract-server-go/internal/filters"
	"refract-server-go/internal/imagepath"
	platformerrors "refract-server-go/internal/platform/errors"
)

func newTestExecutor(t *testing.T, fetch SourceFetcher) *Executor {
	t.Helper()
	return NewExecutor(engine.New(nil), fetch, nil)
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	return pngBytes(t, imaging.New(w, h, c))
}

func noisePNG(t *testing.T, w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	seed := uint32(1)
	for i := range img.Pix {
		seed = seed*1664525 + 1013904223
		img.Pix[i] = uint8(seed >> 24)
	}
	return pngBytes(t, img)
}

func execute(t *testing.T, ex *Executor, path string, source []byte) Result {
	t.Helper()
	p, err := imagepath.Parse(path)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	res, err := filters.NewResolver(false, nil).Resolve(p.Filters)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	result, err := ex.Execute(context.Background(), source, p, res)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	return result
}

func decodeResult(t *testing.T, r Result) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(r.Data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return img
}

func TestExecuteFitInWithFill(t *testing.T) {
	ex := newTestExecutor(t, nil)
	source := solidPNG(t, 400, 300, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	result := execute(t, ex, "unsafe/fit-in/200x200/filters:fill(white)/example.com/a.png", source)
	img := decodeResult(t, result)

	b := img.Bounds()
	if b.Dx() != 200 || b.Dy() != 200 {
		t.Fatalf("canvas %dx%d, want 200x200", b.Dx(), b.Dy())
	}
	// 400x300 fits to 200x150, leaving 25px white bands top and bottom.
	r, g, bl, _ := img.At(100, 5).RGBA()
	if r>>8 != 255 || g>>8 != 255 || bl>>8 != 255 {
		t.Errorf("padding band not white: %d %d %d", r>>8, g>>8, bl>>8)
	}
	r, _, _, _ = img.At(100, 100).RGBA()
	if r>>8 != 10 {
		t.Errorf("image area wrong color: r=%d", r>>8)
	}
}

func TestExecuteCropBeforeResize(t *testing.T) {
	ex := newTestExecutor(t, nil)

	// red region exactly at the crop box, blue elsewhere
	src := imaging.New(200, 200, color.NRGBA{B: 255, A: 255})
	for y := 40; y < 150; y++ {
		for x := 30; x < 100; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}

	result := execute(t, ex, "unsafe/30x40:100x150/example.com/b.png", pngBytes(t, src))
	img := decodeResult(t, result)

	b := img.Bounds()
	if b.Dx() != 70 || b.Dy() != 110 {
		t.Fatalf("cropped to %dx%d, want 70x110", b.Dx(), b.Dy())
	}
	r, _, _, _ := img.At(35, 55).RGBA()
	if r>>8 != 255 {
		t.Errorf("crop box missed the red region")
	}
}

func TestExecuteStretchIgnoresAspect(t *testing.T) {
	ex := newTestExecutor(t, nil)
	source := solidPNG(t, 400, 100, color.NRGBA{A: 255})

	result := execute(t, ex, "unsafe/stretch/100x100/example.com/a.png", source)
	img := decodeResult(t, result)
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 100 {
		t.Errorf("stretched to %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestExecuteFlipFromNegativeDimensions(t *testing.T) {
	ex := newTestExecutor(t, nil)

	src := imaging.New(100, 100, color.NRGBA{A: 255})
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})

	result := execute(t, ex, "unsafe/-100x100/example.com/a.png", pngBytes(t, src))
	img := decodeResult(t, result)

	r, _, _, _ := img.At(99, 0).RGBA()
	if r>>8 < 200 {
		t.Errorf("marker not mirrored to the right edge")
	}
}

func TestExecutePaddingWithFillColor(t *testing.T) {
	ex := newTestExecutor(t, nil)
	source := solidPNG(t, 100, 100, color.NRGBA{R: 50, A: 255})

	result := execute(t, ex, "unsafe/100x100/10x10/filters:fill(0,255,0)/example.com/a.png", source)
	img := decodeResult(t, result)

	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 120 {
		t.Fatalf("padded to %dx%d, want 120x120", img.Bounds().Dx(), img.Bounds().Dy())
	}
	_, g, _, _ := img.At(2, 2).RGBA()
	if g>>8 != 255 {
		t.Errorf("padding color wrong: g=%d", g>>8)
	}
}

func TestExecuteOrderedOps(t *testing.T) {
	ex := newTestExecutor(t, nil)
	source := solidPNG(t, 40, 20, color.NRGBA{R: 128, G: 128, B: 128, A: 255})

	result := execute(t, ex, "unsafe/filters:rotate(90)/example.com/a.png", source)
	img := decodeResult(t, result)
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 40 {
		t.Errorf("rotate: %dx%d, want 20x40", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestExecuteMaxBytesDegradesQuality(t *testing.T) {
	ex := newTestExecutor(t, nil)
	source := noisePNG(t, 100, 100)

	result := execute(t, ex, "unsafe/filters:format(jpeg):max_bytes(4000)/example.com/a.png", source)
	if len(result.Data) > 4000 {
		t.Errorf("result %d bytes exceeds max_bytes", len(result.Data))
	}
	if result.ContentType != "image/jpeg" {
		t.Errorf("content type = %s", result.ContentType)
	}
}

func TestExecuteWatermarkUsesFetcher(t *testing.T) {
	mark := solidPNG(t, 10, 10, color.NRGBA{R: 255, A: 255})
	fetched := ""
	fetch := func(_ context.Context, uri string) ([]byte, error) {
		fetched = uri
		return mark, nil
	}

	ex := newTestExecutor(t, fetch)
	source := solidPNG(t, 100, 100, color.NRGBA{A: 255})

	result := execute(t, ex, "unsafe/filters:watermark(cdn.example.com/w.png,left,top,0)/example.com/a.png", source)
	if fetched != "cdn.example.com/w.png" {
		t.Errorf("fetcher got %q", fetched)
	}

	img := decodeResult(t, result)
	r, _, _, _ := img.At(5, 5).RGBA()
	if r>>8 < 200 {
		t.Errorf("watermark not composited")
	}
}

func TestExecuteCanceledContext(t *testing.T) {
	ex := newTestExecutor(t, nil)
	source := solidPNG(t, 20, 20, color.NRGBA{A: 255})

	p, err := imagepath.Parse("unsafe/filters:grayscale()/example.com/a.png")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	res, err := filters.NewResolver(false, nil).Resolve(p.Filters)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ex.Execute(ctx, source, p, res)
	if !platformerrors.IsKind(err, platformerrors.KindTimeout) {
		t.Errorf("expected timeout kind, got %v", err)
	}
}

func TestExecuteGarbageSource(t *testing.T) {
	ex := newTestExecutor(t, nil)

	p, _ := imagepath.Parse("unsafe/example.com/a.png")
	_, err := ex.Execute(context.Background(), []byte("junk"), p, filters.Resolved{})
	if !platformerrors.IsKind(err, platformerrors.KindEngine) {
		t.Errorf("expected engine kind, got %v", err)
	}
}

func TestExecuteKeepsSourceFormatWithoutFormatFilter(t *testing.T) {
	ex := newTestExecutor(t, nil)
	source := solidPNG(t, 10, 10, color.NRGBA{A: 255})

	result := execute(t, ex, "unsafe/example.com/a.png", source)
	if result.ContentType != "image/png" {
		t.Errorf("content type = %s", result.ContentType)
	}
}
