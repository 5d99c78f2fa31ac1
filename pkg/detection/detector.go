package detection

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/vision-nav/internal/monitoring"
	"github.com/menta2k/vision-nav/pkg/client"
	"github.com/menta2k/vision-nav/pkg/processing"
	"github.com/menta2k/vision-nav/pkg/spatial"
	"github.com/menta2k/vision-nav/pkg/types"
)

// DefaultConfidence is the minimum confidence a detection needs to be reported
const DefaultConfidence = 0.25

// Options controls how frames are sent to the backend
type Options struct {
	Model       string
	Confidence  float64
	SendFormat  string // jpg or png
	SendSize    int    // max long side sent to the backend, 0 keeps the original
	SendQuality int
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		Model:       "yolov8n.pt",
		Confidence:  DefaultConfidence,
		SendFormat:  "jpg",
		SendSize:    1280,
		SendQuality: 85,
	}
}

// Detector runs a detection backend and turns its boxes into
// distance/direction/priority hints
type Detector struct {
	client    client.DetectionClient
	processor *processing.Processor
	estimator *spatial.Estimator
	opts      Options
}

// NewDetector creates a new detector with a detection client
func NewDetector(c client.DetectionClient, estimator *spatial.Estimator, opts Options) *Detector {
	if estimator == nil {
		estimator = spatial.New()
	}
	if opts.Confidence <= 0 {
		opts.Confidence = DefaultConfidence
	}
	if opts.SendQuality <= 0 {
		opts.SendQuality = 85
	}
	return &Detector{
		client:    c,
		processor: processing.NewProcessor(),
		estimator: estimator,
		opts:      opts,
	}
}

// Backend returns the name of the detection backend
func (d *Detector) Backend() string {
	return d.client.Name()
}

// Model returns the configured model name
func (d *Detector) Model() string {
	return d.opts.Model
}

// Labels returns the classes the heuristics know a width for
func (d *Detector) Labels() []string {
	return d.estimator.Labels()
}

// DirectionBounds returns the left and right direction bounds of the estimator
func (d *Detector) DirectionBounds() (left, right float64) {
	return d.estimator.Bounds()
}

// Ping checks that the backend is reachable
func (d *Detector) Ping(ctx context.Context) error {
	return d.client.Ping(ctx)
}

// DetectObjects detects objects in img and returns them sorted by priority
// and distance
func (d *Detector) DetectObjects(ctx context.Context, img image.Image) (*types.DetectionResult, error) {
	bounds := img.Bounds()
	imgW, imgH := bounds.Dx(), bounds.Dy()

	prepared, err := d.processor.PrepareImageForModel(img, d.opts.SendFormat, d.opts.SendSize, d.opts.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare frame: %w", err)
	}

	raw, err := d.client.Detect(ctx, client.Frame{
		Data:       prepared.Data,
		Format:     prepared.Format,
		Width:      prepared.Width,
		Height:     prepared.Height,
		Model:      d.opts.Model,
		Confidence: d.opts.Confidence,
	})
	if err != nil {
		return nil, fmt.Errorf("%s detection failed: %w", d.client.Name(), err)
	}
	monitoring.Logger.WithFields(logrus.Fields{
		"backend": d.client.Name(),
		"count":   len(raw),
		"width":   imgW,
		"height":  imgH,
	}).Debug("backend returned detections")

	kept := make([]types.RawDetection, 0, len(raw))
	for _, r := range raw {
		r, ok := d.validateAndAdjust(r, prepared.Scale, imgW, imgH)
		if !ok {
			continue
		}
		kept = append(kept, r)
	}

	detections := d.estimator.AssessAll(kept, imgW)
	for _, det := range detections {
		monitoring.Logger.Debugf("Detected %s at %.2fm %s", det.Label, det.Distance, det.Direction)
	}

	return &types.DetectionResult{
		ImageWidth:  imgW,
		ImageHeight: imgH,
		Detections:  detections,
	}, nil
}

// validateAndAdjust maps a backend box back to the original frame and drops
// entries that cannot be used
func (d *Detector) validateAndAdjust(r types.RawDetection, scale float64, imgW, imgH int) (types.RawDetection, bool) {
	r.Label = strings.ToLower(strings.TrimSpace(r.Label))
	if r.Label == "" {
		monitoring.Logger.Warn("skipping detection without label")
		return r, false
	}
	if math.IsNaN(r.Confidence) || r.Confidence < d.opts.Confidence {
		return r, false
	}
	for _, v := range []float64{r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			monitoring.Logger.Warnf("skipping %s detection with invalid box %+v", r.Label, r.Box)
			return r, false
		}
	}

	if scale > 0 && scale != 1 {
		r.Box = r.Box.Scale(scale)
	}
	r.Box = processing.ClampBox(r.Box, imgW, imgH)
	if r.Box.Width() <= 0 || r.Box.Height() <= 0 {
		monitoring.Logger.Warnf("skipping %s detection with empty box", r.Label)
		return r, false
	}
	return r, true
}
