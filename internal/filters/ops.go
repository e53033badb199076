package filters

import (
	"time"

	"refract-server-go/internal/imagepath"
)

// Operation is one resolved pipeline step. The set of implementations is
// closed: every URL filter that transforms pixels maps to exactly one of
// the types below, so the executor can switch exhaustively.
type Operation interface {
	op()
}

// PositionKind discriminates the accepted position argument forms for
// watermark and label placement.
type PositionKind int

const (
	PositionPixels PositionKind = iota
	PositionPercent
	PositionLeft
	PositionRight
	PositionCenter
	PositionTop
	PositionBottom
	PositionRepeat
)

// Position is a placement along one axis. Pixels may be negative,
// anchoring from the far edge. Percent holds a fraction in [0,1].
type Position struct {
	Kind  PositionKind
	Value float64
}

type Fill struct{ Color imagepath.Color }

type BackgroundColor struct{ Color imagepath.Color }

type Blur struct{ Sigma float64 }

type Sharpen struct{ Sigma float64 }

type Brightness struct{ Amount int }

type Contrast struct{ Amount int }

type Saturation struct{ Amount int }

type Hue struct{ Degrees int }

// RGB shifts each channel independently by a percentage in [-100, 100].
type RGB struct{ R, G, B int }

type Grayscale struct{}

type Rotate struct{ Angle int }

type Orient struct{ Angle int }

type RoundCorner struct {
	RX, RY int
	Color  imagepath.Color
}

type Watermark struct {
	Image  string
	X, Y   Position
	Alpha  int // transparency percent, 0 opaque to 100 invisible
	WRatio float64
	HRatio float64
}

type Label struct {
	Text  string
	X, Y  Position
	Size  int
	Color imagepath.Color
	Alpha int // opacity percent, 100 opaque
	Font  string
}

// Focal overrides the crop anchor. Coordinates are fractional in [0,1]
// when <= 1, absolute pixels otherwise. A point is stored as a zero-area
// region.
type Focal struct {
	Left, Top, Right, Bottom float64
}

// Proportion scales both dimensions by a percentage in (0, 100].
type Proportion struct{ Percent float64 }

type Upscale struct{}

// Modulate adjusts brightness and saturation by percentages and rotates
// hue by degrees, in one pass.
type Modulate struct {
	Brightness int
	Saturation int
	Hue        int
}

func (Fill) op()            {}
func (BackgroundColor) op() {}
func (Blur) op()            {}
func (Sharpen) op()         {}
func (Brightness) op()      {}
func (Contrast) op()        {}
func (Saturation) op()      {}
func (Hue) op()             {}
func (RGB) op()             {}
func (Grayscale) op()       {}
func (Rotate) op()          {}
func (Orient) op()          {}
func (RoundCorner) op()     {}
func (Watermark) op()       {}
func (Label) op()           {}
func (Focal) op()           {}
func (Proportion) op()      {}
func (Upscale) op()         {}
func (Modulate) op()        {}

// Output collects the encode-time directives. These apply when the result
// is serialized, regardless of where their filters appeared in the chain;
// a later occurrence of the same filter overrides an earlier one.
type Output struct {
	Format        string // empty keeps the source format
	Quality       int    // 0 selects the encoder default
	MaxBytes      int
	StripEXIF     bool
	StripICC      bool
	StripMetadata bool
}

// Meta collects the utility filters that shape the response rather than
// the pixels.
type Meta struct {
	Attachment bool
	Filename   string
	Expire     time.Time // zero means no expiry
	Preview    bool      // bypass result storage entirely
	Raw        bool      // return source bytes untransformed
}

// Resolved is the validated execution plan for one request.
type Resolved struct {
	Ops    []Operation
	Output Output
	Meta   Meta
}
