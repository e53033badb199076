package filters

import (
	"reflect"
	"testing"
	"time"

	"refract-server-go/internal/imagepath"
	platformerrors "refract-server-go/internal/platform/errors"
)

func mustParseFilters(t *testing.T, path string) []imagepath.Filter {
	t.Helper()
	p, err := imagepath.Parse("unsafe/" + path + "/example.com/a.jpg")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return p.Filters
}

func TestResolve_OrderPreserved(t *testing.T) {
	r := NewResolver(false, nil)
	fs := mustParseFilters(t, "filters:grayscale():blur(3):brightness(40)")

	res, err := r.Resolve(fs)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	want := []Operation{Grayscale{}, Blur{Sigma: 3}, Brightness{Amount: 40}}
	if !reflect.DeepEqual(res.Ops, want) {
		t.Errorf("ops\n got:  %+v\n want: %+v", res.Ops, want)
	}
}

func TestResolve_BoundaryValues(t *testing.T) {
	r := NewResolver(false, nil)

	tests := []struct {
		name    string
		filters string
		wantErr bool
	}{
		{"brightness at upper bound", "filters:brightness(100)", false},
		{"brightness at lower bound", "filters:brightness(-100)", false},
		{"brightness above range", "filters:brightness(101)", true},
		{"brightness below range", "filters:brightness(-101)", true},
		{"contrast in range", "filters:contrast(-50)", false},
		{"contrast out of range", "filters:contrast(200)", true},
		{"saturation out of range", "filters:saturation(999)", true},
		{"rgb at bounds", "filters:rgb(-100,0,100)", false},
		{"rgb component out of range", "filters:rgb(0,0,101)", true},
		{"blur at upper bound", "filters:blur(150)", false},
		{"blur above range", "filters:blur(151)", true},
		{"blur negative", "filters:blur(-1)", true},
		{"sharpen positive", "filters:sharpen(0.5)", false},
		{"sharpen zero", "filters:sharpen(0)", true},
		{"quality at bounds", "filters:quality(1)", false},
		{"quality zero", "filters:quality(0)", true},
		{"quality above range", "filters:quality(101)", true},
		{"rotate right angle", "filters:rotate(270)", false},
		{"rotate odd angle", "filters:rotate(45)", true},
		{"orient negative right angle", "filters:orient(-90)", false},
		{"proportion in range", "filters:proportion(50)", false},
		{"proportion zero", "filters:proportion(0)", true},
		{"max_bytes positive", "filters:max_bytes(10000)", false},
		{"max_bytes zero", "filters:max_bytes(0)", true},
		{"hue any degrees", "filters:hue(290)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(mustParseFilters(t, tt.filters))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.filters)
				}
				if !platformerrors.IsKind(err, platformerrors.KindResolve) {
					t.Errorf("expected resolve kind, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve error: %v", err)
			}
		})
	}
}

func TestResolve_EncodeDirectivesLaterWins(t *testing.T) {
	r := NewResolver(false, nil)

	once, err := r.Resolve(mustParseFilters(t, "filters:format(jpeg):quality(80)"))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	twice, err := r.Resolve(mustParseFilters(t, "filters:format(jpeg):quality(80):format(jpeg):quality(80)"))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("repeated encode directives should collapse\n once:  %+v\n twice: %+v", once, twice)
	}

	over, err := r.Resolve(mustParseFilters(t, "filters:quality(80):quality(30)"))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if over.Output.Quality != 30 {
		t.Errorf("later quality should win, got %d", over.Output.Quality)
	}
}

func TestResolve_FormatNormalization(t *testing.T) {
	r := NewResolver(false, nil)

	res, err := r.Resolve(mustParseFilters(t, "filters:format(JPG)"))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if res.Output.Format != "jpeg" {
		t.Errorf("got format %q, want jpeg", res.Output.Format)
	}

	if _, err := r.Resolve(mustParseFilters(t, "filters:format(webp)")); err == nil {
		t.Errorf("webp output should be rejected")
	}
	if _, err := r.Resolve(mustParseFilters(t, "filters:format(exe)")); err == nil {
		t.Errorf("unknown format should be rejected")
	}
}

func TestResolve_UnknownFilterPolicy(t *testing.T) {
	fs := mustParseFilters(t, "filters:nosuchfilter(1):grayscale()")

	strict := NewResolver(false, nil)
	if _, err := strict.Resolve(fs); err == nil {
		t.Fatalf("strict mode should reject unknown filters")
	}

	lenient := NewResolver(true, nil)
	res, err := lenient.Resolve(fs)
	if err != nil {
		t.Fatalf("lenient mode error: %v", err)
	}
	if len(res.Ops) != 1 {
		t.Errorf("expected the known filter to survive, got %d ops", len(res.Ops))
	}
}

func TestResolve_NameAliases(t *testing.T) {
	r := NewResolver(false, nil)

	a, err := r.Resolve(mustParseFilters(t, "filters:background_color(white)"))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	b, err := r.Resolve(mustParseFilters(t, "filters:backgroundcolor(white)"))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("underscore and bare names should resolve identically")
	}
}

func TestResolve_Watermark(t *testing.T) {
	r := NewResolver(false, nil)

	res, err := r.Resolve([]imagepath.Filter{{
		Name: "watermark",
		Args: "b.com/filters:label(hi,0,0,12,white)/w.png,left,bottom,40,25,25",
	}})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	want := Watermark{
		Image:  "b.com/filters:label(hi,0,0,12,white)/w.png",
		X:      Position{Kind: PositionLeft},
		Y:      Position{Kind: PositionBottom},
		Alpha:  40,
		WRatio: 25,
		HRatio: 25,
	}
	if len(res.Ops) != 1 || !reflect.DeepEqual(res.Ops[0], want) {
		t.Errorf("got %+v, want %+v", res.Ops, want)
	}
}

func TestResolve_WatermarkPositions(t *testing.T) {
	r := NewResolver(false, nil)

	tests := []struct {
		name    string
		args    string
		wantX   Position
		wantErr bool
	}{
		{"pixel offset", "w.png,20,0,50", Position{Kind: PositionPixels, Value: 20}, false},
		{"negative pixel anchors far edge", "w.png,-20,0,50", Position{Kind: PositionPixels, Value: -20}, false},
		{"fraction", "w.png,0.5,0,50", Position{Kind: PositionPercent, Value: 0.5}, false},
		{"repeat allowed", "w.png,repeat,top,50", Position{Kind: PositionRepeat}, false},
		{"fraction out of range", "w.png,1.5,0,50", Position{}, true},
		{"alpha out of range", "w.png,0,0,150", Position{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve([]imagepath.Filter{{Name: "watermark", Args: tt.args}})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve error: %v", err)
			}
			if got := res.Ops[0].(Watermark).X; got != tt.wantX {
				t.Errorf("x position = %+v, want %+v", got, tt.wantX)
			}
		})
	}
}

func TestResolve_Label(t *testing.T) {
	r := NewResolver(false, nil)

	res, err := r.Resolve([]imagepath.Filter{{
		Name: "label",
		Args: "hello world,center,top,24,ffcc00,80,sans",
	}})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	want := Label{
		Text:  "hello world",
		X:     Position{Kind: PositionCenter},
		Y:     Position{Kind: PositionTop},
		Size:  24,
		Color: imagepath.Color{Kind: imagepath.ColorHex, Hex: "ffcc00"},
		Alpha: 80,
		Font:  "sans",
	}
	if len(res.Ops) != 1 || !reflect.DeepEqual(res.Ops[0], want) {
		t.Errorf("got %+v, want %+v", res.Ops, want)
	}

	// repeat is a watermark-only placement
	if _, err := r.Resolve([]imagepath.Filter{{Name: "label", Args: "x,repeat,top,24,white"}}); err == nil {
		t.Errorf("label should reject repeat placement")
	}
}

func TestResolve_LabelDefaultAlpha(t *testing.T) {
	r := NewResolver(false, nil)

	res, err := r.Resolve([]imagepath.Filter{{Name: "label", Args: "hi,0,0,12,white"}})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got := res.Ops[0].(Label).Alpha; got != 100 {
		t.Errorf("default alpha = %d, want 100", got)
	}
}

func TestResolve_Focal(t *testing.T) {
	r := NewResolver(false, nil)

	tests := []struct {
		name    string
		arg     string
		want    Focal
		wantErr bool
	}{
		{"region", "10x20:100x200", Focal{Left: 10, Top: 20, Right: 100, Bottom: 200}, false},
		{"fractional region", "0.1x0.2:0.9x0.8", Focal{Left: 0.1, Top: 0.2, Right: 0.9, Bottom: 0.8}, false},
		{"point", "0.5x0.5", Focal{Left: 0.5, Top: 0.5, Right: 0.5, Bottom: 0.5}, false},
		{"inverted region", "100x100:10x10", Focal{}, true},
		{"not a pair", "banana", Focal{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve([]imagepath.Filter{{Name: "focal", Args: tt.arg}})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve error: %v", err)
			}
			if got := res.Ops[0].(Focal); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolve_RoundCorner(t *testing.T) {
	r := NewResolver(false, nil)

	res, err := r.Resolve([]imagepath.Filter{{Name: "round_corner", Args: "20"}})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got := res.Ops[0].(RoundCorner); got.RX != 20 || got.RY != 20 {
		t.Errorf("single radius should apply to both axes, got %+v", got)
	}

	res, err = r.Resolve([]imagepath.Filter{{Name: "round_corner", Args: "20,40,white"}})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	want := RoundCorner{RX: 20, RY: 40, Color: imagepath.Color{Kind: imagepath.ColorNamed, Name: "white"}}
	if got := res.Ops[0].(RoundCorner); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestResolve_UtilityFilters(t *testing.T) {
	r := NewResolver(false, nil)

	res, err := r.Resolve(mustParseFilters(t, "filters:attachment(photo.jpg):expire(1735689600000):preview():raw()"))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	if len(res.Ops) != 0 {
		t.Errorf("utility filters should not become pipeline ops, got %d", len(res.Ops))
	}
	if !res.Meta.Attachment || res.Meta.Filename != "photo.jpg" {
		t.Errorf("attachment meta = %+v", res.Meta)
	}
	if !res.Meta.Expire.Equal(time.UnixMilli(1735689600000)) {
		t.Errorf("expire = %v", res.Meta.Expire)
	}
	if !res.Meta.Preview || !res.Meta.Raw {
		t.Errorf("preview/raw flags not set: %+v", res.Meta)
	}
}

func TestResolve_AttachmentWithoutFilename(t *testing.T) {
	r := NewResolver(false, nil)

	res, err := r.Resolve(mustParseFilters(t, "filters:attachment()"))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !res.Meta.Attachment || res.Meta.Filename != "" {
		t.Errorf("meta = %+v", res.Meta)
	}
}

func TestResolve_ArityErrors(t *testing.T) {
	r := NewResolver(false, nil)

	tests := []struct {
		name string
		f    imagepath.Filter
	}{
		{"too few", imagepath.Filter{Name: "rgb", Args: "1,2"}},
		{"too many", imagepath.Filter{Name: "blur", Args: "1,2"}},
		{"watermark too few", imagepath.Filter{Name: "watermark", Args: "w.png,0,0"}},
		{"grayscale with arg", imagepath.Filter{Name: "grayscale", Args: "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Resolve([]imagepath.Filter{tt.f}); err == nil {
				t.Fatalf("expected arity error for %+v", tt.f)
			}
		})
	}
}

func TestResolve_StripFlags(t *testing.T) {
	r := NewResolver(false, nil)

	res, err := r.Resolve(mustParseFilters(t, "filters:strip_exif():strip_icc():strip_metadata()"))
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !res.Output.StripEXIF || !res.Output.StripICC || !res.Output.StripMetadata {
		t.Errorf("strip flags not all set: %+v", res.Output)
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"cyan", []string{"cyan"}},
		{"1,2,3", []string{"1", "2", "3"}},
		{"a.com/filters:label(x,y)/w.png,0,0", []string{"a.com/filters:label(x,y)/w.png", "0", "0"}},
		{"trailing,", []string{"trailing", ""}},
	}

	for _, tt := range tests {
		if got := splitArgs(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitArgs(%q) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}
