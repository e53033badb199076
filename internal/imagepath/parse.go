package imagepath

import (
	"regexp"
	"strconv"
	"strings"

	platformerrors "refract-server-go/internal/platform/errors"
)

var (
	cropRegexp    = regexp.MustCompile(`^(\d+(?:\.\d+)?)x(\d+(?:\.\d+)?):(\d+(?:\.\d+)?)x(\d+(?:\.\d+)?)$`)
	dimsRegexp    = regexp.MustCompile(`^(-?\d+)?x(-?\d+)?$`)
	paddingRegexp = regexp.MustCompile(`^(\d+)x(\d+)(?::(\d+)x(\d+))?$`)
	hashRegexp    = regexp.MustCompile(`^[A-Za-z0-9_=-]{26,30}$`)
	filterName    = regexp.MustCompile(`^[A-Za-z0-9_]+`)
)

func parseErr(op, format string, args ...any) error {
	return platformerrors.Newf(platformerrors.KindParse, op, format, args...)
}

// Parse decodes a request path into Params. Parsing is greedy and ordered:
// each recognized segment is consumed left to right, and the first segment
// matching no recognized token starts the image URI, which is preserved
// verbatim (embedded slashes and query strings included).
//
// Range checking is deliberately absent here; the filter resolver owns it.
// Parse fails only on structurally invalid input.
func Parse(path string) (Params, error) {
	var p Params

	rest := strings.TrimPrefix(path, "/")

	if seg, tail, ok := splitSegment(rest); ok {
		switch {
		case seg == "unsafe":
			p.Unsafe = true
			rest = tail
		case hashRegexp.MatchString(seg) && tail != "":
			p.Hash = seg
			rest = tail
		}
	}

	// The signable path: everything after the signature segment.
	p.Path = rest

	s := rest

	if seg, tail, ok := splitSegment(s); ok && seg == "meta" {
		p.Meta = true
		s = tail
	}

	if seg, tail, ok := splitSegment(s); ok && (seg == "trim" || strings.HasPrefix(seg, "trim:")) {
		if err := parseTrim(&p, seg); err != nil {
			return Params{}, err
		}
		s = tail
	}

	if seg, tail, ok := splitSegment(s); ok {
		if m := cropRegexp.FindStringSubmatch(seg); m != nil {
			p.CropLeft = mustFloat(m[1])
			p.CropTop = mustFloat(m[2])
			p.CropRight = mustFloat(m[3])
			p.CropBottom = mustFloat(m[4])
			s = tail
		}
	}

	for {
		seg, tail, ok := splitSegment(s)
		if !ok {
			break
		}
		if seg == "fit-in" {
			p.FitIn = true
			s = tail
			continue
		}
		if seg == "stretch" {
			p.Stretch = true
			s = tail
			continue
		}
		break
	}

	dimsSeen := false
	if seg, tail, ok := splitSegment(s); ok {
		if m := dimsRegexp.FindStringSubmatch(seg); m != nil && seg != "" {
			if m[1] != "" {
				w, _ := strconv.Atoi(m[1])
				if w < 0 {
					p.HFlip = true
					w = -w
				}
				p.Width = w
			}
			if m[2] != "" {
				h, _ := strconv.Atoi(m[2])
				if h < 0 {
					p.VFlip = true
					h = -h
				}
				p.Height = h
			}
			dimsSeen = true
			s = tail
		}
	}

	if dimsSeen {
		if seg, tail, ok := splitSegment(s); ok {
			if m := paddingRegexp.FindStringSubmatch(seg); m != nil {
				p.PaddingLeft, _ = strconv.Atoi(m[1])
				p.PaddingTop, _ = strconv.Atoi(m[2])
				if m[3] != "" {
					p.PaddingRight, _ = strconv.Atoi(m[3])
					p.PaddingBottom, _ = strconv.Atoi(m[4])
				} else {
					p.PaddingRight = p.PaddingLeft
					p.PaddingBottom = p.PaddingTop
				}
				s = tail
			}
		}
	}

	if seg, tail, ok := splitSegment(s); ok {
		switch seg {
		case HAlignLeft, HAlignRight, HAlignCenter:
			p.HAlign = seg
			s = tail
		}
	}

	if seg, tail, ok := splitSegment(s); ok {
		switch seg {
		case VAlignTop, VAlignBottom, VAlignMiddle:
			p.VAlign = seg
			s = tail
		}
	}

	if seg, tail, ok := splitSegment(s); ok && seg == "smart" {
		p.Smart = true
		s = tail
	}

	if strings.HasPrefix(s, "filters:") {
		filters, tail, err := parseFilters(s[len("filters:"):])
		if err != nil {
			return Params{}, err
		}
		p.Filters = filters
		s = tail
	}

	if s == "" {
		return Params{}, parseErr("parse", "missing image in path %q", path)
	}
	p.Image = s

	return p, nil
}

func parseTrim(p *Params, seg string) error {
	p.Trim = true
	p.TrimBy = TrimByTopLeft

	parts := strings.Split(seg, ":")
	for _, part := range parts[1:] {
		switch part {
		case TrimByTopLeft, TrimByBottomRight:
			p.TrimBy = part
		default:
			tol, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return parseErr("parse-trim", "trim tolerance %q is not numeric", part)
			}
			p.TrimTolerance = tol
		}
	}
	return nil
}

// parseFilters scans a colon-delimited sequence of name(args) tokens.
// Commas, colons and slashes between a filter's parentheses are literal,
// so nesting is tracked by paren depth rather than splitting on
// delimiters. Returns the remaining path after the filter list.
func parseFilters(s string) ([]Filter, string, error) {
	var filters []Filter

	for {
		if s == "" {
			return filters, "", nil
		}
		if s[0] == '/' {
			return filters, s[1:], nil
		}

		name := filterName.FindString(s)
		if name == "" {
			return nil, "", parseErr("parse-filters", "expected filter name at %q", s)
		}
		s = s[len(name):]
		if s == "" || s[0] != '(' {
			return nil, "", parseErr("parse-filters", "filter %s missing argument list", name)
		}

		args, tail, ok := takeBalanced(s)
		if !ok {
			return nil, "", parseErr("parse-filters", "unbalanced parentheses in filter %s", name)
		}
		filters = append(filters, Filter{Name: strings.ToLower(name), Args: args})
		s = tail

		if s == "" {
			return filters, "", nil
		}
		switch s[0] {
		case ':':
			s = s[1:]
		case '/':
			return filters, s[1:], nil
		default:
			return nil, "", parseErr("parse-filters", "unexpected %q after filter %s", s[:1], name)
		}
	}
}

// takeBalanced consumes a parenthesized group starting at s[0] == '(' and
// returns the inner text and the remainder after the matching ')'.
func takeBalanced(s string) (inner, tail string, ok bool) {
	depth := 0
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return s[1:i], s[i+1:], true
			}
			depth--
		}
	}
	return "", "", false
}

func splitSegment(s string) (segment, tail string, ok bool) {
	if s == "" {
		return "", "", false
	}
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		return s[:idx], s[idx+1:], true
	}
	return s, "", true
}

func mustFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
