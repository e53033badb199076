package imagepath

import (
	"reflect"
	"testing"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		want string
	}{
		{
			name: "full chain",
			p: Params{
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
			want: "meta/trim/10x11:12x13/fit-in/-300x-200/left/top/smart/filters:grayscale()/img",
		},
		{
			name: "trim bottom-right with tolerance",
			p: Params{
				Image:         "example.com/a.jpg",
				Trim:          true,
				TrimBy:        TrimByBottomRight,
				TrimTolerance: 100,
			},
			want: "trim:bottom-right:100/example.com/a.jpg",
		},
		{
			name: "fractional crop",
			p: Params{
				Image:      "example.com/a.png",
				CropLeft:   0.2,
				CropTop:    0.3,
				CropRight:  0.4,
				CropBottom: 0.5,
			},
			want: "0.2x0.3:0.4x0.5/example.com/a.png",
		},
		{
			name: "symmetric padding collapses",
			p: Params{
				Image:         "example.com/a.png",
				Width:         200,
				Height:        300,
				PaddingLeft:   15,
				PaddingTop:    25,
				PaddingRight:  15,
				PaddingBottom: 25,
			},
			want: "200x300/15x25/example.com/a.png",
		},
		{
			name: "asymmetric padding keeps four values",
			p: Params{
				Image:         "example.com/a.png",
				Width:         200,
				Height:        300,
				PaddingLeft:   10,
				PaddingTop:    20,
				PaddingRight:  30,
				PaddingBottom: 40,
			},
			want: "200x300/10x20:30x40/example.com/a.png",
		},
		{
			name: "padding without dimensions emits zero dims",
			p: Params{
				Image:         "example.com/a.png",
				PaddingLeft:   5,
				PaddingTop:    5,
				PaddingRight:  5,
				PaddingBottom: 5,
			},
			want: "0x0/5x5/example.com/a.png",
		},
		{
			name: "center and middle aligns omitted",
			p: Params{
				Image:  "example.com/a.png",
				Width:  100,
				Height: 100,
				HAlign: HAlignCenter,
				VAlign: VAlignMiddle,
			},
			want: "100x100/example.com/a.png",
		},
		{
			name: "filters with args",
			p: Params{
				Image: "example.com/a.jpg",
				Filters: []Filter{
					{Name: "fill", Args: "cyan"},
					{Name: "watermark", Args: "b.com/w.png,10,10,50"},
				},
			},
			want: "filters:fill(cyan):watermark(b.com/w.png,10,10,50)/example.com/a.jpg",
		},
		{
			name: "image only",
			p:    Params{Image: "example.com/a.jpg"},
			want: "example.com/a.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Generate(tt.p); got != tt.want {
				t.Errorf("Generate()\n got:  %q\n want: %q", got, tt.want)
			}
		})
	}
}

func TestGenerateUnsafe(t *testing.T) {
	p := Params{Image: "example.com/a.jpg", Width: 200, Height: 200}
	if got, want := GenerateUnsafe(p), "unsafe/200x200/example.com/a.jpg"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

type staticSigner string

func (s staticSigner) Sign(string) string { return string(s) }

func TestGenerateSigned(t *testing.T) {
	p := Params{Image: "example.com/a.jpg", Width: 200, Height: 200}
	got := GenerateSigned(p, staticSigner("SIGSEGMENT_____________26ch"))
	want := "SIGSEGMENT_____________26ch/200x200/example.com/a.jpg"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseGenerateRoundTrip(t *testing.T) {
	paths := []string{
		"meta/trim/10x11:12x13/fit-in/-300x-200/left/top/smart/filters:grayscale()/img",
		"trim:bottom-right:100/example.com/a.jpg",
		"0.2x0.3:0.4x0.5/example.com/a.png",
		"fit-in/200x300/10x20:30x40/example.com/a.png",
		"stretch/300x0/example.com/a.png",
		"filters:watermark(b.com/filters:label(abc)/w.png,0,0,50):brightness(-50)/example.com/a.jpg",
		"200x200/example.com/a.png?version=2&size=big",
		"example.com/a.jpg",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			p, err := Parse("unsafe/" + path)
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if got := Generate(p); got != path {
				t.Fatalf("Generate(Parse(p)) = %q, want %q", got, path)
			}

			p2, err := Parse("unsafe/" + Generate(p))
			if err != nil {
				t.Fatalf("reparse error: %v", err)
			}
			if !reflect.DeepEqual(p, p2) {
				t.Errorf("round trip diverged\n first:  %+v\n second: %+v", p, p2)
			}
		})
	}
}
