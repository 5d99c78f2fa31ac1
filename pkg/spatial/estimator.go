// Package spatial turns raw bounding boxes into distance, direction and
// priority hints for a person walking with the camera.
//
// Distance uses a pinhole-camera approximation:
//
//	distance = known_width * focal_length / pixel_width
//
// where known_width is the assumed real width of the object class in meters.
// Direction buckets the horizontal box center into left, front and right.
// Priority is a fixed severity rank per class used only for ordering.
package spatial

import (
	"math"
	"sort"
	"strings"

	"github.com/menta2k/vision-nav/pkg/types"
)

// Direction describes where an object sits relative to the camera
type Direction string

const (
	Left  Direction = "to your left"
	Front Direction = "in front of you"
	Right Direction = "to your right"
)

// Config holds the tunables of the estimator
type Config struct {
	FocalLength  float64
	DefaultWidth float64
	MinDistance  float64
	MaxDistance  float64
	LeftBound    float64
	RightBound   float64

	// Widths and Priorities are merged over the built-in tables
	Widths     map[string]float64
	Priorities map[string]int
}

// DefaultConfig returns the built-in heuristics
func DefaultConfig() Config {
	return Config{
		FocalLength:  DefaultFocalLength,
		DefaultWidth: DefaultObjectWidth,
		MinDistance:  DefaultMinDistance,
		MaxDistance:  DefaultMaxDistance,
		LeftBound:    DefaultLeftBound,
		RightBound:   DefaultRightBound,
	}
}

// Estimator derives distance, direction and priority for detections
type Estimator struct {
	config     Config
	widths     map[string]float64
	priorities map[string]int
}

// New creates an Estimator with the built-in heuristics
func New() *Estimator {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an Estimator with custom configuration
func NewWithConfig(config Config) *Estimator {
	widths := KnownWidths()
	for k, v := range config.Widths {
		widths[normalizeLabel(k)] = v
	}
	priorities := Priorities()
	for k, v := range config.Priorities {
		priorities[normalizeLabel(k)] = v
	}
	return &Estimator{config: config, widths: widths, priorities: priorities}
}

// Bounds returns the fractions of the frame width that split left, center and right
func (e *Estimator) Bounds() (left, right float64) {
	return e.config.LeftBound, e.config.RightBound
}

// Labels returns the classes with a known width, sorted
func (e *Estimator) Labels() []string {
	labels := make([]string, 0, len(e.widths))
	for k := range e.widths {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return labels
}

// KnownWidth returns the assumed width of a class, or the default width
func (e *Estimator) KnownWidth(label string) float64 {
	if w, ok := e.widths[normalizeLabel(label)]; ok {
		return w
	}
	return e.config.DefaultWidth
}

// Distance estimates the distance in meters to an object of the given class
// spanning pixelWidth pixels. The result is clamped to [MinDistance, MaxDistance].
func (e *Estimator) Distance(label string, pixelWidth float64) float64 {
	if pixelWidth <= 0 || math.IsNaN(pixelWidth) || math.IsInf(pixelWidth, 0) {
		// nothing measurable, treat as far away
		return e.config.MaxDistance
	}
	d := e.KnownWidth(label) * e.config.FocalLength / pixelWidth
	return clamp(d, e.config.MinDistance, e.config.MaxDistance)
}

// Position returns the relative horizontal center of a box:
// 0 is the left edge, 0.5 the center and 1 the right edge
func (e *Estimator) Position(x1, x2 float64, imageWidth int) float64 {
	if imageWidth <= 0 {
		return CenterPosition
	}
	return ((x1 + x2) / 2) / float64(imageWidth)
}

// DirectionOf buckets a relative position
func (e *Estimator) DirectionOf(position float64) Direction {
	switch {
	case position < e.config.LeftBound:
		return Left
	case position > e.config.RightBound:
		return Right
	default:
		return Front
	}
}

// Priority returns the severity rank of a class, DefaultPriority when unknown
func (e *Estimator) Priority(label string) int {
	if p, ok := e.priorities[normalizeLabel(label)]; ok {
		return p
	}
	return DefaultPriority
}

// Assess enriches a raw detection
func (e *Estimator) Assess(raw types.RawDetection, imageWidth int) types.Detection {
	label := normalizeLabel(raw.Label)
	distance := e.Distance(label, raw.Box.Width())
	position := e.Position(raw.Box.X1, raw.Box.X2, imageWidth)

	return types.Detection{
		Label:      label,
		Confidence: raw.Confidence,
		Distance:   RoundDistance(distance),
		Direction:  string(e.DirectionOf(position)),
		Priority:   e.Priority(label),
		Box:        raw.Box,
	}
}

// AssessAll enriches and sorts a batch of raw detections
func (e *Estimator) AssessAll(raw []types.RawDetection, imageWidth int) []types.Detection {
	out := make([]types.Detection, 0, len(raw))
	for _, r := range raw {
		out = append(out, e.Assess(r, imageWidth))
	}
	Sort(out)
	return out
}

// Sort orders detections by priority, then by distance. Equal keys keep
// their input order.
func Sort(detections []types.Detection) {
	sort.SliceStable(detections, func(i, j int) bool {
		if detections[i].Priority != detections[j].Priority {
			return detections[i].Priority < detections[j].Priority
		}
		return detections[i].Distance < detections[j].Distance
	})
}

// RoundDistance rounds a distance to two decimals
func RoundDistance(d float64) float64 {
	return math.Round(d*distanceRoundFactor) / distanceRoundFactor
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
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
