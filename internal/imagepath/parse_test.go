package imagepath

import (
	"reflect"
	"testing"

	platformerrors "refract-server-go/internal/platform/errors"
)

func TestParse_FullGrammar(t *testing.T) {
	tests := []struct {
		name string
		path string
		want Params
	}{
		{
			name: "non url image",
			path: "meta/trim/10x11:12x13/fit-in/-300x-200/left/top/smart/filters:grayscale()/img",
			want: Params{
				Path:       "meta/trim/10x11:12x13/fit-in/-300x-200/left/top/smart/filters:grayscale()/img",
				Image:      "img",
				Meta:       true,
				Trim:       true,
				TrimBy:     TrimByTopLeft,
				CropLeft:   10,
				CropTop:    11,
				CropRight:  12,
				CropBottom: 13,
				FitIn:      true,
				Width:      300,
				Height:     200,
				HFlip:      true,
				VFlip:      true,
				HAlign:     HAlignLeft,
				VAlign:     VAlignTop,
				Smart:      true,
				Filters:    []Filter{{Name: "grayscale"}},
			},
		},
		{
			name: "url image with trim options",
			path: "meta/trim:bottom-right:100/10x11:12x13/fit-in/-300x-200/left/top/smart/filters:grayscale()/s.glbimg.com/es/ge/f/original/2011/03/29/orlandosilva_60.jpg",
			want: Params{
				Path:          "meta/trim:bottom-right:100/10x11:12x13/fit-in/-300x-200/left/top/smart/filters:grayscale()/s.glbimg.com/es/ge/f/original/2011/03/29/orlandosilva_60.jpg",
				Image:         "s.glbimg.com/es/ge/f/original/2011/03/29/orlandosilva_60.jpg",
				Meta:          true,
				Trim:          true,
				TrimBy:        TrimByBottomRight,
				TrimTolerance: 100,
				CropLeft:      10,
				CropTop:       11,
				CropRight:     12,
				CropBottom:    13,
				FitIn:         true,
				Width:         300,
				Height:        200,
				HFlip:         true,
				VFlip:         true,
				HAlign:        HAlignLeft,
				VAlign:        VAlignTop,
				Smart:         true,
				Filters:       []Filter{{Name: "grayscale"}},
			},
		},
		{
			name: "unsafe crop and fill",
			path: "unsafe/30x40:100x150/filters:fill(cyan)/media.example.com/animations/dancing-banana.gif",
			want: Params{
				Path:       "30x40:100x150/filters:fill(cyan)/media.example.com/animations/dancing-banana.gif",
				Image:      "media.example.com/animations/dancing-banana.gif",
				Unsafe:     true,
				TrimBy:     "",
				CropLeft:   30,
				CropTop:    40,
				CropRight:  100,
				CropBottom: 150,
				Filters:    []Filter{{Name: "fill", Args: "cyan"}},
			},
		},
		{
			name: "fractional crop",
			path: "unsafe/0.2x0.3:0.4x0.5/example.com/a.png",
			want: Params{
				Path:       "0.2x0.3:0.4x0.5/example.com/a.png",
				Image:      "example.com/a.png",
				Unsafe:     true,
				CropLeft:   0.2,
				CropTop:    0.3,
				CropRight:  0.4,
				CropBottom: 0.5,
			},
		},
		{
			name: "mixed integer and fractional crop",
			path: "unsafe/30x0.25:100x0.75/example.com/a.png",
			want: Params{
				Path:       "30x0.25:100x0.75/example.com/a.png",
				Image:      "example.com/a.png",
				Unsafe:     true,
				CropLeft:   30,
				CropTop:    0.25,
				CropRight:  100,
				CropBottom: 0.75,
			},
		},
		{
			name: "padding after dimensions",
			path: "unsafe/fit-in/200x300/10x20:30x40/example.com/a.png",
			want: Params{
				Path:          "fit-in/200x300/10x20:30x40/example.com/a.png",
				Image:         "example.com/a.png",
				Unsafe:        true,
				FitIn:         true,
				Width:         200,
				Height:        300,
				PaddingLeft:   10,
				PaddingTop:    20,
				PaddingRight:  30,
				PaddingBottom: 40,
			},
		},
		{
			name: "symmetric padding shorthand",
			path: "unsafe/200x300/15x25/example.com/a.png",
			want: Params{
				Path:          "200x300/15x25/example.com/a.png",
				Image:         "example.com/a.png",
				Unsafe:        true,
				Width:         200,
				Height:        300,
				PaddingLeft:   15,
				PaddingTop:    25,
				PaddingRight:  15,
				PaddingBottom: 25,
			},
		},
		{
			name: "stretch with partial dimensions",
			path: "unsafe/stretch/300x/example.com/a.png",
			want: Params{
				Path:    "stretch/300x/example.com/a.png",
				Image:   "example.com/a.png",
				Unsafe:  true,
				Stretch: true,
				Width:   300,
			},
		},
		{
			name: "query string preserved verbatim",
			path: "unsafe/200x200/example.com/a.png?version=2&size=big",
			want: Params{
				Path:   "200x200/example.com/a.png?version=2&size=big",
				Image:  "example.com/a.png?version=2&size=big",
				Unsafe: true,
				Width:  200,
				Height: 200,
			},
		},
		{
			name: "signed path",
			path: "E6lPPd4HZ8FmimwtHVOep6MrUA0=/fit-in/200x200/example.com/a.png",
			want: Params{
				Path:   "fit-in/200x200/example.com/a.png",
				Hash:   "E6lPPd4HZ8FmimwtHVOep6MrUA0=",
				Image:  "example.com/a.png",
				FitIn:  true,
				Width:  200,
				Height: 200,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.path)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.path, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q)\n got:  %+v\n want: %+v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParse_FiltersWithNestedParens(t *testing.T) {
	path := "unsafe/filters:watermark(s.glbimg.com/filters:label(abc):watermark(aaa.com/fit-in/filters:aaa(bbb))/aaa.jpg,0,0,0):brightness(-50):grayscale()/some/example/img"
	got, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	wantFilters := []Filter{
		{Name: "watermark", Args: "s.glbimg.com/filters:label(abc):watermark(aaa.com/fit-in/filters:aaa(bbb))/aaa.jpg,0,0,0"},
		{Name: "brightness", Args: "-50"},
		{Name: "grayscale"},
	}
	if !reflect.DeepEqual(got.Filters, wantFilters) {
		t.Errorf("filters\n got:  %+v\n want: %+v", got.Filters, wantFilters)
	}
	if got.Image != "some/example/img" {
		t.Errorf("image: got %q, want %q", got.Image, "some/example/img")
	}
}

func TestParse_FilterArgsWithCommas(t *testing.T) {
	path := "unsafe/filters:label(hello world,10,20,24,white,50)/example.com/a.jpg"
	got, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(got.Filters) != 1 {
		t.Fatalf("expected 1 filter, got %d", len(got.Filters))
	}
	if got.Filters[0].Args != "hello world,10,20,24,white,50" {
		t.Errorf("args: got %q", got.Filters[0].Args)
	}
}

func TestParse_OutOfRangeValuesDoNotFailParse(t *testing.T) {
	// Range checking belongs to the resolver; parse accepts any numerics.
	path := "unsafe/filters:brightness(9999):quality(500)/example.com/a.jpg"
	got, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(got.Filters) != 2 {
		t.Fatalf("expected 2 filters, got %d", len(got.Filters))
	}
}

func TestParse_StructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing image", "unsafe/fit-in/200x200"},
		{"missing image after filters", "unsafe/filters:grayscale()"},
		{"unbalanced parens", "unsafe/filters:watermark(a.com/b.png,0,0/example.com/a.jpg"},
		{"filter without argument list", "unsafe/filters:grayscale/example.com/a.jpg"},
		{"non numeric trim tolerance", "unsafe/trim:bottom-right:abc/example.com/a.jpg"},
		{"empty path", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.path)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", tt.path)
			}
			if !platformerrors.IsKind(err, platformerrors.KindParse) {
				t.Errorf("expected parse kind, got %v", err)
			}
		})
	}
}

func TestParse_UnknownSegmentStartsImage(t *testing.T) {
	// A segment matching no recognized token is the image URI, together
	// with everything after it.
	got, err := Parse("unsafe/not-a-keyword/200x200/a.png")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got.Image != "not-a-keyword/200x200/a.png" {
		t.Errorf("image: got %q", got.Image)
	}
	if got.Width != 0 {
		t.Errorf("width should not be parsed from the image URI")
	}
}
