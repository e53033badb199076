package filters

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"refract-server-go/internal/imagepath"
	platformerrors "refract-server-go/internal/platform/errors"
)

// Resolver turns a parsed filter chain into a validated execution plan.
// Validation is strict here precisely because parsing is permissive:
// every argument is range-checked before any image work begins.
type Resolver struct {
	ignoreUnknown bool
	log           *slog.Logger
}

// NewResolver builds a Resolver. When ignoreUnknown is set, unrecognized
// filter names are skipped with a warning instead of failing the request.
func NewResolver(ignoreUnknown bool, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{ignoreUnknown: ignoreUnknown, log: log}
}

// Resolve maps each filter to its Operation in order. Encode-time filters
// (format, quality, max_bytes, strip_*) and utility filters (attachment,
// expire, preview, raw) do not produce Operations; they set Output and
// Meta instead, with later occurrences overriding earlier ones.
func (r *Resolver) Resolve(fs []imagepath.Filter) (Resolved, error) {
	var res Resolved

	for _, f := range fs {
		name := normalizeName(f.Name)
		entry, ok := registry[name]
		if !ok {
			if r.ignoreUnknown {
				r.log.Warn("skipping unknown filter", "filter", f.Name)
				continue
			}
			return Resolved{}, resolveErr(f.Name, "unknown filter")
		}

		args := splitArgs(f.Args)
		if len(args) < entry.minArgs {
			return Resolved{}, resolveErr(f.Name, "expected at least %d arguments, got %d", entry.minArgs, len(args))
		}
		if entry.maxArgs >= 0 && len(args) > entry.maxArgs {
			return Resolved{}, resolveErr(f.Name, "expected at most %d arguments, got %d", entry.maxArgs, len(args))
		}
		if err := entry.apply(args, &res); err != nil {
			return Resolved{}, err
		}
	}

	return res, nil
}

func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "")
}

func resolveErr(filter, format string, args ...any) error {
	return platformerrors.Newf(platformerrors.KindResolve, "filters.resolve",
		"filter %s: "+format, append([]any{filter}, args...)...)
}

// splitArgs splits a raw argument string on top-level commas. Commas
// inside parentheses belong to a nested filter chain (watermark source
// URIs embed one) and stay literal.
func splitArgs(raw string) []string {
	if raw == "" {
		return nil
	}
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				args = append(args, raw[start:i])
				start = i + 1
			}
		}
	}
	return append(args, raw[start:])
}

type registryEntry struct {
	minArgs int
	maxArgs int // -1 for unbounded
	apply   func(args []string, res *Resolved) error
}

// registry is the fixed filter table, keyed by lowercased name with
// underscores stripped so background_color and backgroundcolor resolve
// identically. Populated once at init and read-only thereafter.
var registry = map[string]registryEntry{
	"fill": {1, 1, func(args []string, res *Resolved) error {
		c, err := parseColorArg("fill", args[0])
		if err != nil {
			return err
		}
		res.Ops = append(res.Ops, Fill{Color: c})
		return nil
	}},
	"backgroundcolor": {1, 1, func(args []string, res *Resolved) error {
		c, err := parseColorArg("background_color", args[0])
		if err != nil {
			return err
		}
		res.Ops = append(res.Ops, BackgroundColor{Color: c})
		return nil
	}},
	"blur": {1, 1, func(args []string, res *Resolved) error {
		sigma, err := parseFloatRange("blur", args[0], 0, 150)
		if err != nil {
			return err
		}
		res.Ops = append(res.Ops, Blur{Sigma: sigma})
		return nil
	}},
	"sharpen": {1, 1, func(args []string, res *Resolved) error {
		sigma, err := strconv.ParseFloat(args[0], 64)
		if err != nil || sigma <= 0 {
			return resolveErr("sharpen", "sigma %q must be a positive number", args[0])
		}
		res.Ops = append(res.Ops, Sharpen{Sigma: sigma})
		return nil
	}},
	"brightness": {1, 1, func(args []string, res *Resolved) error {
		v, err := parseIntRange("brightness", args[0], -100, 100)
		if err != nil {
			return err
		}
		res.Ops = append(res.Ops, Brightness{Amount: v})
		return nil
	}},
	"contrast": {1, 1, func(args []string, res *Resolved) error {
		v, err := parseIntRange("contrast", args[0], -100, 100)
		if err != nil {
			return err
		}
		res.Ops = append(res.Ops, Contrast{Amount: v})
		return nil
	}},
	"saturation": {1, 1, func(args []string, res *Resolved) error {
		v, err := parseIntRange("saturation", args[0], -100, 100)
		if err != nil {
			return err
		}
		res.Ops = append(res.Ops, Saturation{Amount: v})
		return nil
	}},
	"hue": {1, 1, func(args []string, res *Resolved) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return resolveErr("hue", "degrees %q is not an integer", args[0])
		}
		res.Ops = append(res.Ops, Hue{Degrees: v})
		return nil
	}},
	"rgb": {3, 3, func(args []string, res *Resolved) error {
		var vals [3]int
		for i, arg := range args {
			v, err := parseIntRange("rgb", arg, -100, 100)
			if err != nil {
				return err
			}
			vals[i] = v
		}
		res.Ops = append(res.Ops, RGB{R: vals[0], G: vals[1], B: vals[2]})
		return nil
	}},
	"grayscale": {0, 0, func(args []string, res *Resolved) error {
		res.Ops = append(res.Ops, Grayscale{})
		return nil
	}},
	"rotate": {1, 1, func(args []string, res *Resolved) error {
		v, err := parseRightAngle("rotate", args[0])
		if err != nil {
			return err
		}
		res.Ops = append(res.Ops, Rotate{Angle: v})
		return nil
	}},
	"orient": {1, 1, func(args []string, res *Resolved) error {
		v, err := parseRightAngle("orient", args[0])
		if err != nil {
			return err
		}
		res.Ops = append(res.Ops, Orient{Angle: v})
		return nil
	}},
	"roundcorner": {1, 3, func(args []string, res *Resolved) error {
		rx, err := strconv.Atoi(args[0])
		if err != nil || rx <= 0 {
			return resolveErr("round_corner", "radius %q must be a positive integer", args[0])
		}
		op := RoundCorner{RX: rx, RY: rx}
		if len(args) > 1 {
			ry, err := strconv.Atoi(args[1])
			if err != nil || ry <= 0 {
				return resolveErr("round_corner", "radius %q must be a positive integer", args[1])
			}
			op.RY = ry
		}
		if len(args) > 2 {
			c, err := parseColorArg("round_corner", args[2])
			if err != nil {
				return err
			}
			op.Color = c
		}
		res.Ops = append(res.Ops, op)
		return nil
	}},
	"watermark": {4, 6, func(args []string, res *Resolved) error {
		x, err := parsePosition("watermark", args[1], true)
		if err != nil {
			return err
		}
		y, err := parsePosition("watermark", args[2], true)
		if err != nil {
			return err
		}
		alpha, err := parseIntRange("watermark", args[3], 0, 100)
		if err != nil {
			return err
		}
		op := Watermark{Image: args[0], X: x, Y: y, Alpha: alpha}
		if len(args) > 4 {
			op.WRatio, err = parseFloatRange("watermark", args[4], 0, 100)
			if err != nil {
				return err
			}
		}
		if len(args) > 5 {
			op.HRatio, err = parseFloatRange("watermark", args[5], 0, 100)
			if err != nil {
				return err
			}
		}
		res.Ops = append(res.Ops, op)
		return nil
	}},
	"label": {5, 7, func(args []string, res *Resolved) error {
		x, err := parsePosition("label", args[1], false)
		if err != nil {
			return err
		}
		y, err := parsePosition("label", args[2], false)
		if err != nil {
			return err
		}
		size, err := strconv.Atoi(args[3])
		if err != nil || size <= 0 {
			return resolveErr("label", "size %q must be a positive integer", args[3])
		}
		c, err := parseColorArg("label", args[4])
		if err != nil {
			return err
		}
		op := Label{Text: args[0], X: x, Y: y, Size: size, Color: c, Alpha: 100}
		if len(args) > 5 {
			op.Alpha, err = parseIntRange("label", args[5], 0, 100)
			if err != nil {
				return err
			}
		}
		if len(args) > 6 {
			op.Font = args[6]
		}
		res.Ops = append(res.Ops, op)
		return nil
	}},
	"focal": {1, 1, func(args []string, res *Resolved) error {
		op, err := parseFocal(args[0])
		if err != nil {
			return err
		}
		res.Ops = append(res.Ops, op)
		return nil
	}},
	"proportion": {1, 1, func(args []string, res *Resolved) error {
		p, err := strconv.ParseFloat(args[0], 64)
		if err != nil || p <= 0 || p > 100 {
			return resolveErr("proportion", "%q must be in (0, 100]", args[0])
		}
		if p < 1 {
			p *= 100
		}
		res.Ops = append(res.Ops, Proportion{Percent: p})
		return nil
	}},
	"upscale": {0, 0, func(args []string, res *Resolved) error {
		res.Ops = append(res.Ops, Upscale{})
		return nil
	}},
	"modulate": {3, 3, func(args []string, res *Resolved) error {
		b, err := parseIntRange("modulate", args[0], -100, 100)
		if err != nil {
			return err
		}
		s, err := parseIntRange("modulate", args[1], -100, 100)
		if err != nil {
			return err
		}
		h, err := strconv.Atoi(args[2])
		if err != nil {
			return resolveErr("modulate", "hue %q is not an integer", args[2])
		}
		res.Ops = append(res.Ops, Modulate{Brightness: b, Saturation: s, Hue: h})
		return nil
	}},

	// Encode-time directives.
	"format": {1, 1, func(args []string, res *Resolved) error {
		f, err := normalizeFormat(args[0])
		if err != nil {
			return err
		}
		res.Output.Format = f
		return nil
	}},
	"quality": {1, 1, func(args []string, res *Resolved) error {
		q, err := parseIntRange("quality", args[0], 1, 100)
		if err != nil {
			return err
		}
		res.Output.Quality = q
		return nil
	}},
	"maxbytes": {1, 1, func(args []string, res *Resolved) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return resolveErr("max_bytes", "%q must be a positive integer", args[0])
		}
		res.Output.MaxBytes = n
		return nil
	}},
	"stripexif": {0, 0, func(args []string, res *Resolved) error {
		res.Output.StripEXIF = true
		return nil
	}},
	"stripicc": {0, 0, func(args []string, res *Resolved) error {
		res.Output.StripICC = true
		return nil
	}},
	"stripmetadata": {0, 0, func(args []string, res *Resolved) error {
		res.Output.StripMetadata = true
		return nil
	}},

	// Utility filters shaping the response, not the pixels.
	"attachment": {0, 1, func(args []string, res *Resolved) error {
		res.Meta.Attachment = true
		if len(args) > 0 {
			res.Meta.Filename = args[0]
		}
		return nil
	}},
	"expire": {1, 1, func(args []string, res *Resolved) error {
		ms, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || ms <= 0 {
			return resolveErr("expire", "%q must be a positive unix millisecond timestamp", args[0])
		}
		res.Meta.Expire = time.UnixMilli(ms)
		return nil
	}},
	"preview": {0, 0, func(args []string, res *Resolved) error {
		res.Meta.Preview = true
		return nil
	}},
	"raw": {0, 0, func(args []string, res *Resolved) error {
		res.Meta.Raw = true
		return nil
	}},
}

func parseIntRange(filter, arg string, min, max int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, resolveErr(filter, "%q is not an integer", arg)
	}
	if v < min || v > max {
		return 0, resolveErr(filter, "%d is outside [%d, %d]", v, min, max)
	}
	return v, nil
}

func parseFloatRange(filter, arg string, min, max float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil {
		return 0, resolveErr(filter, "%q is not a number", arg)
	}
	if v < min || v > max {
		return 0, resolveErr(filter, "%v is outside [%v, %v]", v, min, max)
	}
	return v, nil
}

// parseRightAngle accepts right-angle rotations only, normalized to
// [0, 360).
func parseRightAngle(filter, arg string) (int, error) {
	v, err := strconv.Atoi(arg)
	if err != nil || v%90 != 0 {
		return 0, resolveErr(filter, "angle %q must be a multiple of 90", arg)
	}
	v %= 360
	if v < 0 {
		v += 360
	}
	return v, nil
}

func parseColorArg(filter, arg string) (imagepath.Color, error) {
	c, err := imagepath.ParseColor(arg)
	if err != nil {
		return imagepath.Color{}, resolveErr(filter, "%v", err)
	}
	return c, nil
}

// parsePosition parses a placement argument: a keyword, an integer pixel
// offset (negative anchors from the far edge), or a fraction in [0,1]
// written with a decimal point.
func parsePosition(filter, arg string, allowRepeat bool) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "left":
		return Position{Kind: PositionLeft}, nil
	case "right":
		return Position{Kind: PositionRight}, nil
	case "center":
		return Position{Kind: PositionCenter}, nil
	case "top":
		return Position{Kind: PositionTop}, nil
	case "bottom":
		return Position{Kind: PositionBottom}, nil
	case "repeat":
		if !allowRepeat {
			return Position{}, resolveErr(filter, "repeat placement is not supported here")
		}
		return Position{Kind: PositionRepeat}, nil
	}

	if strings.Contains(arg, ".") {
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil || f < 0 || f > 1 {
			return Position{}, resolveErr(filter, "fractional position %q must be in [0, 1]", arg)
		}
		return Position{Kind: PositionPercent, Value: f}, nil
	}

	px, err := strconv.Atoi(arg)
	if err != nil {
		return Position{}, resolveErr(filter, "position %q is not a keyword, pixel offset or fraction", arg)
	}
	return Position{Kind: PositionPixels, Value: float64(px)}, nil
}

// parseFocal parses AxB:CxD (region) or AxB (point, stored as a zero-area
// region). Values <= 1 are fractional coordinates; larger values are
// absolute pixels.
func parseFocal(arg string) (Focal, error) {
	region := strings.SplitN(arg, ":", 2)

	x1, y1, err := parseFocalPair(region[0])
	if err != nil {
		return Focal{}, err
	}
	if len(region) == 1 {
		return Focal{Left: x1, Top: y1, Right: x1, Bottom: y1}, nil
	}

	x2, y2, err := parseFocalPair(region[1])
	if err != nil {
		return Focal{}, err
	}
	if x2 < x1 || y2 < y1 {
		return Focal{}, resolveErr("focal", "region %q is inverted", arg)
	}
	return Focal{Left: x1, Top: y1, Right: x2, Bottom: y2}, nil
}

func parseFocalPair(pair string) (x, y float64, err error) {
	parts := strings.SplitN(pair, "x", 2)
	if len(parts) != 2 {
		return 0, 0, resolveErr("focal", "%q is not an AxB pair", pair)
	}
	x, err = strconv.ParseFloat(parts[0], 64)
	if err != nil || x < 0 {
		return 0, 0, resolveErr("focal", "coordinate %q is not a non-negative number", parts[0])
	}
	y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil || y < 0 {
		return 0, 0, resolveErr("focal", "coordinate %q is not a non-negative number", parts[1])
	}
	return x, y, nil
}

func normalizeFormat(arg string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "jpeg", "jpg":
		return "jpeg", nil
	case "png":
		return "png", nil
	case "gif":
		return "gif", nil
	case "bmp":
		return "bmp", nil
	case "tiff", "tif":
		return "tiff", nil
	case "webp":
		// Decodable but not encodable without cgo.
		return "", resolveErr("format", "webp output is not supported")
	default:
		return "", resolveErr("format", "unsupported format %q", arg)
	}
}
