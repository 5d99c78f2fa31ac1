// Package modeljson extracts detections from the free-form JSON that vision
// language models return.
package modeljson

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/menta2k/vision-nav/pkg/types"
)

// Prompt asks a vision model for object detections in a fixed JSON shape
const Prompt = `You are an object detector for a walking assistant used by blind people.

Return JSON only:
{
  "objects": [
    {"label": "string", "confidence": 0.0, "box": {"x1": 0.0, "y1": 0.0, "x2": 0.0, "y2": 0.0}}
  ]
}

HARD RULES
- Use COCO class names in lowercase (person, car, bicycle, chair, bench, ...). Use "wall", "door" or "stairs" for those structures.
- All coordinates are normalized to [0,1] (NOT pixels). (x1,y1) is top-left, (x2,y2) is bottom-right.
- Report every obstacle, vehicle and person you can see, at most 20 objects.
- confidence is your certainty in [0,1].
- If nothing is visible, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// Sanitize removes code fences, comments and trailing commas from a model response
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost object or array
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return strings.TrimSpace(raw)
	}
	closer := "}"
	if raw[start] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(raw, closer); end > start {
		raw = raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}

// ParseDetections reads detections from a model response. Boxes may be
// normalized to [0,1] or given in pixels; they are returned in pixels of a
// width x height frame. Entries without a label or box are skipped, and a
// response without any JSON yields no detections.
func ParseDetections(raw string, width, height int) []types.RawDetection {
	raw = Sanitize(raw)
	if !gjson.Valid(raw) {
		return nil
	}

	doc := gjson.Parse(raw)
	var items gjson.Result
	switch {
	case doc.IsArray():
		items = doc
	case doc.Get("objects").IsArray():
		items = doc.Get("objects")
	case doc.Get("detections").IsArray():
		items = doc.Get("detections")
	default:
		return nil
	}

	var out []types.RawDetection
	items.ForEach(func(_, item gjson.Result) bool {
		label := strings.TrimSpace(firstString(item, "label", "class", "name"))
		if label == "" {
			return true
		}
		box, ok := parseBox(item.Get("box"), width, height)
		if !ok {
			box, ok = parseBox(item.Get("bbox"), width, height)
		}
		if !ok {
			return true
		}
		conf := item.Get("confidence")
		if !conf.Exists() {
			conf = item.Get("score")
		}
		out = append(out, types.RawDetection{
			Label:      label,
			Confidence: clamp(conf.Float(), 0, 1),
			Box:        box,
		})
		return true
	})
	return out
}

func firstString(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// parseBox accepts {x1,y1,x2,y2}, [x1,y1,x2,y2] and {x,y,w,h}
func parseBox(v gjson.Result, width, height int) (types.Box, bool) {
	var x1, y1, x2, y2 float64
	switch {
	case v.IsArray():
		vals := v.Array()
		if len(vals) != 4 {
			return types.Box{}, false
		}
		x1, y1, x2, y2 = vals[0].Float(), vals[1].Float(), vals[2].Float(), vals[3].Float()
	case v.Get("x1").Exists():
		x1, y1, x2, y2 = v.Get("x1").Float(), v.Get("y1").Float(), v.Get("x2").Float(), v.Get("y2").Float()
	case v.Get("w").Exists():
		x1, y1 = v.Get("x").Float(), v.Get("y").Float()
		x2, y2 = x1+v.Get("w").Float(), y1+v.Get("h").Float()
	default:
		return types.Box{}, false
	}

	// Normalized unless any coordinate is clearly in pixels
	if x1 <= 1 && y1 <= 1 && x2 <= 1 && y2 <= 1 {
		x1, x2 = x1*float64(width), x2*float64(width)
		y1, y2 = y1*float64(height), y2*float64(height)
	}
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return types.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
