package imagepath

import (
	"fmt"
	"strconv"
	"strings"
)

// Generate rebuilds the normalized path for p, excluding the signature
// segment. It is the inverse of Parse: for any p produced by Parse,
// Parse(Generate(p)) yields p again (modulo the Path field, which Generate
// itself defines).
func Generate(p Params) string {
	var parts []string

	if p.Meta {
		parts = append(parts, "meta")
	}
	if p.Trim {
		trim := "trim"
		if p.TrimBy == TrimByBottomRight {
			trim += ":" + TrimByBottomRight
		}
		if p.TrimTolerance > 0 {
			trim += ":" + formatFloat(p.TrimTolerance)
		}
		parts = append(parts, trim)
	}
	if p.HasCrop() {
		parts = append(parts, fmt.Sprintf("%sx%s:%sx%s",
			formatFloat(p.CropLeft), formatFloat(p.CropTop),
			formatFloat(p.CropRight), formatFloat(p.CropBottom)))
	}
	if p.FitIn {
		parts = append(parts, "fit-in")
	}
	if p.Stretch {
		parts = append(parts, "stretch")
	}

	hasDims := p.Width != 0 || p.Height != 0 || p.HFlip || p.VFlip
	if hasDims || p.HasPadding() {
		var b strings.Builder
		if p.HFlip {
			b.WriteByte('-')
		}
		b.WriteString(strconv.Itoa(abs(p.Width)))
		b.WriteByte('x')
		if p.VFlip {
			b.WriteByte('-')
		}
		b.WriteString(strconv.Itoa(abs(p.Height)))
		parts = append(parts, b.String())
	}
	if p.HasPadding() {
		if p.PaddingLeft == p.PaddingRight && p.PaddingTop == p.PaddingBottom {
			parts = append(parts, fmt.Sprintf("%dx%d", p.PaddingLeft, p.PaddingTop))
		} else {
			parts = append(parts, fmt.Sprintf("%dx%d:%dx%d",
				p.PaddingLeft, p.PaddingTop, p.PaddingRight, p.PaddingBottom))
		}
	}
	if p.HAlign == HAlignLeft || p.HAlign == HAlignRight {
		parts = append(parts, p.HAlign)
	}
	if p.VAlign == VAlignTop || p.VAlign == VAlignBottom {
		parts = append(parts, p.VAlign)
	}
	if p.Smart {
		parts = append(parts, "smart")
	}
	if len(p.Filters) > 0 {
		var fparts []string
		for _, f := range p.Filters {
			if f.Name == "" {
				continue
			}
			fparts = append(fparts, f.Name+"("+f.Args+")")
		}
		if len(fparts) > 0 {
			parts = append(parts, "filters:"+strings.Join(fparts, ":"))
		}
	}
	if p.Image != "" {
		parts = append(parts, p.Image)
	}

	return strings.Join(parts, "/")
}

// GenerateUnsafe prefixes the generated path with the unsafe marker.
func GenerateUnsafe(p Params) string {
	return "unsafe/" + Generate(p)
}

// Signer produces the signature segment for a normalized path.
type Signer interface {
	Sign(path string) string
}

// GenerateSigned prefixes the generated path with its signature.
func GenerateSigned(p Params, signer Signer) string {
	path := Generate(p)
	return signer.Sign(path) + "/" + path
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
