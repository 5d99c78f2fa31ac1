package spatial

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/menta2k/vision-nav/pkg/types"
)

func TestDistance(t *testing.T) {
	est := New()

	tests := []struct {
		name       string
		label      string
		pixelWidth float64
		want       float64
	}{
		{"person at 100px", "person", 100, 5},
		{"car at 360px", "car", 360, 5},
		{"unknown label uses default width", "giraffe", 250, 2},
		{"label is case insensitive", " Person ", 100, 5},
		{"clamped to minimum", "bus", 1e6, DefaultMinDistance},
		{"clamped to maximum", "toothbrush", 1, DefaultMaxDistance},
		{"zero width is far", "person", 0, DefaultMaxDistance},
		{"negative width is far", "person", -20, DefaultMaxDistance},
		{"NaN width is far", "person", math.NaN(), DefaultMaxDistance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, est.Distance(tt.label, tt.pixelWidth), 1e-9)
		})
	}
}

func TestDistanceAlwaysWithinBounds(t *testing.T) {
	est := New()
	for _, label := range est.Labels() {
		for _, w := range []float64{-1, 0, 0.001, 1, 10, 100, 1000, 1e9} {
			d := est.Distance(label, w)
			if d < DefaultMinDistance || d > DefaultMaxDistance {
				t.Errorf("Distance(%q, %v) = %v, out of bounds", label, w, d)
			}
		}
	}
}

func TestPosition(t *testing.T) {
	est := New()

	assert.InDelta(t, 0.5, est.Position(270, 370, 640), 1e-9)
	assert.InDelta(t, 0.0, est.Position(0, 0, 640), 1e-9)
	assert.InDelta(t, 1.0, est.Position(640, 640, 640), 1e-9)
	assert.Equal(t, CenterPosition, est.Position(10, 20, 0))
}

func TestDirectionOf(t *testing.T) {
	est := New()

	tests := []struct {
		position float64
		want     Direction
	}{
		{0.0, Left},
		{0.29, Left},
		{0.3, Front},
		{0.5, Front},
		{0.7, Front},
		{0.71, Right},
		{1.0, Right},
	}

	for _, tt := range tests {
		if got := est.DirectionOf(tt.position); got != tt.want {
			t.Errorf("DirectionOf(%v) = %q, want %q", tt.position, got, tt.want)
		}
	}
}

func TestPriority(t *testing.T) {
	est := New()

	assert.Equal(t, 1, est.Priority("person"))
	assert.Equal(t, 1, est.Priority("bicycle"))
	assert.Equal(t, 2, est.Priority("stairs"))
	assert.Equal(t, 3, est.Priority("dining table"))
	assert.Equal(t, 4, est.Priority("cell phone"))
	assert.Equal(t, DefaultPriority, est.Priority("traffic light"))
}

func TestNewWithConfigMergesTables(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Widths = map[string]float64{"Traffic Light": 0.4, "person": 0.6}
	cfg.Priorities = map[string]int{"traffic light": 2}
	est := NewWithConfig(cfg)

	assert.Equal(t, 0.4, est.KnownWidth("traffic light"))
	assert.Equal(t, 0.6, est.KnownWidth("person"))
	assert.Equal(t, 1.8, est.KnownWidth("car"))
	assert.Equal(t, 2, est.Priority("traffic light"))

	// built-in tables stay untouched
	assert.Equal(t, 0.5, New().KnownWidth("person"))
}

func TestAssess(t *testing.T) {
	est := New()
	raw := types.RawDetection{
		Label:      "Chair",
		Confidence: 0.8,
		Box:        types.Box{X1: 20, Y1: 100, X2: 170, Y2: 300},
	}

	got := est.Assess(raw, 640)

	assert.Equal(t, "chair", got.Label)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Equal(t, 3.33, got.Distance)
	assert.Equal(t, string(Left), got.Direction)
	assert.Equal(t, PriorityFurniture, got.Priority)
	assert.Equal(t, raw.Box, got.Box)
}

func TestSort(t *testing.T) {
	detections := []types.Detection{
		{Label: "book", Priority: 4, Distance: 1},
		{Label: "car", Priority: 1, Distance: 12.5},
		{Label: "door", Priority: 2, Distance: 3},
		{Label: "person", Priority: 1, Distance: 2.1},
		{Label: "bus", Priority: 1, Distance: 12.5},
		{Label: "unknown", Priority: 5, Distance: 0.5},
	}

	Sort(detections)

	var labels []string
	for _, d := range detections {
		labels = append(labels, d.Label)
	}
	want := []string{"person", "car", "bus", "door", "book", "unknown"}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("Sort() order mismatch (-want +got):\n%s", diff)
	}
}

func TestAssessAll(t *testing.T) {
	est := New()
	raw := []types.RawDetection{
		{Label: "laptop", Confidence: 0.9, Box: types.Box{X1: 300, X2: 400}},
		{Label: "person", Confidence: 0.7, Box: types.Box{X1: 500, X2: 600}},
		{Label: "person", Confidence: 0.6, Box: types.Box{X1: 0, X2: 250}},
	}

	got := est.AssessAll(raw, 640)

	want := []types.Detection{
		{Label: "person", Confidence: 0.6, Distance: 2, Direction: string(Left), Priority: 1, Box: raw[2].Box},
		{Label: "person", Confidence: 0.7, Distance: 5, Direction: string(Right), Priority: 1, Box: raw[1].Box},
		{Label: "laptop", Confidence: 0.9, Distance: 3, Direction: string(Front), Priority: 4, Box: raw[0].Box},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AssessAll() mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundDistance(t *testing.T) {
	assert.Equal(t, 3.33, RoundDistance(3.3333333))
	assert.Equal(t, 2.0, RoundDistance(2))
	assert.Equal(t, 0.1, RoundDistance(0.1))
}

func BenchmarkAssessAll(b *testing.B) {
	est := New()
	raw := make([]types.RawDetection, 50)
	for i := range raw {
		raw[i] = types.RawDetection{Label: "person", Confidence: 0.5, Box: types.Box{X1: float64(i), X2: float64(i + 40)}}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		est.AssessAll(raw, 640)
	}
}
