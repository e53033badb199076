// Package imagepath implements the URL path grammar of the image endpoint:
// parsing a raw path into Params, rebuilding a normalized path from Params,
// and deriving storage keys from it.
package imagepath

// Alignment keywords accepted by the grammar.
const (
	HAlignLeft   = "left"
	HAlignCenter = "center"
	HAlignRight  = "right"

	VAlignTop    = "top"
	VAlignMiddle = "middle"
	VAlignBottom = "bottom"
)

// Trim anchors.
const (
	TrimByTopLeft     = "top-left"
	TrimByBottomRight = "bottom-right"
)

// Params is the normalized representation of one request path. It is
// immutable once parsed; the JSON form is served verbatim by the /params
// endpoint.
type Params struct {
	Path          string   `json:"path,omitempty"`
	Image         string   `json:"image,omitempty"`
	Unsafe        bool     `json:"unsafe"`
	Hash          string   `json:"hash,omitempty"`
	Meta          bool     `json:"meta"`
	Trim          bool     `json:"trim"`
	TrimBy        string   `json:"trim_by,omitempty"`
	TrimTolerance float64  `json:"trim_tolerance,omitempty"`
	CropLeft      float64  `json:"crop_left,omitempty"`
	CropTop       float64  `json:"crop_top,omitempty"`
	CropRight     float64  `json:"crop_right,omitempty"`
	CropBottom    float64  `json:"crop_bottom,omitempty"`
	FitIn         bool     `json:"fit_in"`
	Stretch       bool     `json:"stretch"`
	Width         int      `json:"width,omitempty"`
	Height        int      `json:"height,omitempty"`
	PaddingLeft   int      `json:"padding_left,omitempty"`
	PaddingTop    int      `json:"padding_top,omitempty"`
	PaddingRight  int      `json:"padding_right,omitempty"`
	PaddingBottom int      `json:"padding_bottom,omitempty"`
	HFlip         bool     `json:"h_flip"`
	VFlip         bool     `json:"v_flip"`
	HAlign        string   `json:"h_align,omitempty"`
	VAlign        string   `json:"v_align,omitempty"`
	Smart         bool     `json:"smart"`
	Filters       []Filter `json:"filters,omitempty"`
}

// Filter is one parsed filter invocation. Args holds the raw text between
// the parentheses; splitting and validation happen at resolve time, not
// parse time.
type Filter struct {
	Name string `json:"name,omitempty"`
	Args string `json:"args,omitempty"`
}

// HasCrop reports whether a crop box was present in the path.
func (p Params) HasCrop() bool {
	return p.CropRight > p.CropLeft || p.CropBottom > p.CropTop
}

// HasPadding reports whether any padding was requested.
func (p Params) HasPadding() bool {
	return p.PaddingLeft > 0 || p.PaddingTop > 0 || p.PaddingRight > 0 || p.PaddingBottom > 0
}

// CropIsFractional reports whether the crop coordinates are expressed as
// fractions of the source dimensions rather than absolute pixels. A box
// whose every coordinate lies in [0,1] is fractional.
func (p Params) CropIsFractional() bool {
	if !p.HasCrop() {
		return false
	}
	return p.CropLeft <= 1 && p.CropTop <= 1 && p.CropRight <= 1 && p.CropBottom <= 1
}

// FindFilter returns the last filter with the given name, if present.
// Later occurrences win for encode-time filters.
func (p Params) FindFilter(name string) (Filter, bool) {
	for i := len(p.Filters) - 1; i >= 0; i-- {
		if p.Filters[i].Name == name {
			return p.Filters[i], true
		}
	}
	return Filter{}, false
}
