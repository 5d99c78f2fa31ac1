// Package visionnav is an assistive vision and navigation toolkit for blind
// and low-vision users.
//
// An Assistant runs object detection on camera frames and turns every box
// into a spoken-style hint: how far away the object is (pinhole camera
// estimate), whether it is to the left, in front or to the right, and how
// urgent it is. It also plans walking or driving routes to a named place and
// renders them as turn-by-turn sentences.
//
// Basic usage:
//
//	backend, err := visionnav.NewBackend("yolo", "http://localhost:5001")
//	if err != nil {
//		log.Fatal(err)
//	}
//	assistant := visionnav.New(detection.NewDetector(backend, nil, detection.DefaultOptions()), nil, visionnav.Options{})
//
//	report, err := assistant.DetectImage(ctx, img)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, d := range report.Detections {
//		fmt.Printf("%s %.1f meters %s\n", d.Label, d.Distance, d.Direction)
//	}
//
// The package consists of these components:
//
// 1. Spatial (pkg/spatial): distance, direction and priority heuristics
// 2. Detection (pkg/detection): backend-agnostic detection pipeline
// 3. Backends (pkg/yolo, pkg/ollama, pkg/llamacpp): detection services
// 4. Processing (pkg/processing): frame decoding, resizing and overlays
// 5. Navigation (pkg/navigation): Nominatim geocoding and OSRM routing
package visionnav

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/menta2k/vision-nav/internal/config"
	"github.com/menta2k/vision-nav/internal/httputil"
	"github.com/menta2k/vision-nav/pkg/client"
	"github.com/menta2k/vision-nav/pkg/detection"
	"github.com/menta2k/vision-nav/pkg/llamacpp"
	"github.com/menta2k/vision-nav/pkg/navigation"
	"github.com/menta2k/vision-nav/pkg/ollama"
	"github.com/menta2k/vision-nav/pkg/processing"
	"github.com/menta2k/vision-nav/pkg/spatial"
	"github.com/menta2k/vision-nav/pkg/types"
	"github.com/menta2k/vision-nav/pkg/yolo"
)

// Version of the vision-nav service
const Version = "1.0.0"

// ErrNavigationDisabled is returned by Navigate when no navigator is configured
var ErrNavigationDisabled = errors.New("navigation is not configured")

// Options tunes the Assistant
type Options struct {
	// MinFrameSize rejects frames with a smaller side
	MinFrameSize int
	// AnnotateFormat is the default overlay format (jpg, png or webp)
	AnnotateFormat string
	// AnnotateQuality applies to jpg and webp overlays
	AnnotateQuality int
	// DetectTimeout bounds a single detection, 0 disables the limit
	DetectTimeout time.Duration
}

// FrameRequest is a base64 encoded camera frame
type FrameRequest struct {
	Image          string `json:"image"`
	Annotate       bool   `json:"annotate,omitempty"`
	AnnotateFormat string `json:"annotate_format,omitempty"`
}

// FrameReport is the outcome of detection on a single frame
type FrameReport struct {
	Detections     []types.Detection `json:"detections"`
	AnnotatedImage string            `json:"annotated_image,omitempty"`
	ImageWidth     int               `json:"-"`
	ImageHeight    int               `json:"-"`
}

// ModelInfo describes the configured detection backend
type ModelInfo struct {
	Backend string   `json:"backend"`
	Model   string   `json:"model"`
	Labels  []string `json:"labels"`
}

// Assistant ties frame processing, detection and navigation together
type Assistant struct {
	processor *processing.Processor
	detector  *detection.Detector
	navigator *navigation.Navigator
	opts      Options
}

// New creates an Assistant. navigator may be nil to disable navigation.
func New(detector *detection.Detector, navigator *navigation.Navigator, opts Options) *Assistant {
	if opts.MinFrameSize <= 0 {
		opts.MinFrameSize = processing.DefaultMinFrameSize
	}
	if opts.AnnotateFormat == "" {
		opts.AnnotateFormat = "jpg"
	}
	if opts.AnnotateQuality <= 0 {
		opts.AnnotateQuality = 85
	}
	processor := processing.NewProcessorWithMinSize(opts.MinFrameSize)
	if detector != nil {
		processor.SetDirectionBounds(detector.DirectionBounds())
	}
	return &Assistant{
		processor: processor,
		detector:  detector,
		navigator: navigator,
		opts:      opts,
	}
}

// NewBackend creates the detection client for a backend name
func NewBackend(backend, url string) (client.DetectionClient, error) {
	switch backend {
	case "yolo":
		return yolo.NewClient(url)
	case "ollama":
		return ollama.NewClient(url)
	case "llamacpp":
		return llamacpp.NewClient(url)
	default:
		return nil, fmt.Errorf("unknown backend: %s (use yolo, ollama or llamacpp)", backend)
	}
}

// NewFromConfig wires an Assistant and all its collaborators from configuration
func NewFromConfig(cfg *config.Config) (*Assistant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	backend, err := NewBackend(cfg.Detection.Backend, cfg.Detection.URL)
	if err != nil {
		return nil, err
	}

	model := cfg.Detection.Model
	if model == "" {
		model = config.DefaultModel(cfg.Detection.Backend)
	}

	sp := cfg.Spatial
	estimator := spatial.NewWithConfig(spatial.Config{
		FocalLength:  sp.FocalLength,
		DefaultWidth: sp.DefaultWidth,
		MinDistance:  sp.MinDistance,
		MaxDistance:  sp.MaxDistance,
		LeftBound:    sp.LeftBound,
		RightBound:   sp.RightBound,
		Widths:       sp.Widths,
		Priorities:   sp.Priorities,
	})

	detector := detection.NewDetector(backend, estimator, detection.Options{
		Model:       model,
		Confidence:  cfg.Detection.Confidence,
		SendFormat:  cfg.Detection.SendFormat,
		SendSize:    cfg.Detection.SendSize,
		SendQuality: cfg.Detection.SendQuality,
	})

	nav := cfg.Navigation
	policy := httputil.RetryPolicy{
		MaxRetries:  cfg.Retry.MaxRetries,
		BackoffBase: cfg.Retry.Backoff.Std(),
		BackoffMax:  cfg.Retry.BackoffMax.Std(),
		StatusCodes: cfg.Retry.StatusCodes,
	}
	navigator := navigation.NewNavigator(
		navigation.NewGeocoder(httputil.NewRetryClient(policy, nav.GeocodeTimeout.Std()), navigation.GeocoderConfig{
			BaseURL:        nav.NominatimURL,
			Country:        nav.Country,
			CountryCode:    nav.CountryCode,
			AcceptLanguage: nav.AcceptLanguage,
			UserAgent:      nav.UserAgent,
		}),
		navigation.NewRouter(httputil.NewRetryClient(policy, nav.RouteTimeout.Std()), navigation.RouterConfig{
			BaseURL:   nav.OSRMURL,
			Profile:   nav.Profile,
			UserAgent: nav.UserAgent,
		}),
	)

	return New(detector, navigator, Options{
		MinFrameSize:   cfg.Detection.MinFrameSize,
		AnnotateFormat: cfg.Detection.AnnotateFormat,
		DetectTimeout:  cfg.Detection.Timeout.Std(),
	}), nil
}

// Processor returns the frame processor used by the Assistant
func (a *Assistant) Processor() *processing.Processor {
	return a.processor
}

// DetectFrame decodes a base64 frame, detects objects and optionally renders
// an annotated copy
func (a *Assistant) DetectFrame(ctx context.Context, req FrameRequest) (*FrameReport, error) {
	img, _, err := a.processor.DecodeBase64(req.Image)
	if err != nil {
		return nil, err
	}

	report, err := a.DetectImage(ctx, img)
	if err != nil {
		return nil, err
	}

	if req.Annotate {
		format := req.AnnotateFormat
		if format == "" {
			format = a.opts.AnnotateFormat
		}
		overlay := a.processor.CreateDebugOverlay(img, report.Detections)
		encoded, err := a.processor.EncodeBase64(overlay, format, a.opts.AnnotateQuality)
		if err != nil {
			return nil, fmt.Errorf("%w: annotation: %v", processing.ErrInvalidImage, err)
		}
		report.AnnotatedImage = encoded
	}
	return report, nil
}

// DetectImage runs detection on a decoded frame
func (a *Assistant) DetectImage(ctx context.Context, img image.Image) (*FrameReport, error) {
	if img == nil {
		return nil, processing.ErrNoImage
	}
	if err := a.processor.ValidateFrame(img); err != nil {
		return nil, err
	}

	if a.opts.DetectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.DetectTimeout)
		defer cancel()
	}

	result, err := a.detector.DetectObjects(ctx, img)
	if err != nil {
		return nil, err
	}
	return &FrameReport{
		Detections:  result.Detections,
		ImageWidth:  result.ImageWidth,
		ImageHeight: result.ImageHeight,
	}, nil
}

// TestDetection runs the detector on a blank frame to prove the backend works
func (a *Assistant) TestDetection(ctx context.Context) (ModelInfo, error) {
	blank := a.processor.BlankFrame(processing.TestFrameSize, processing.TestFrameSize)
	if _, err := a.detector.DetectObjects(ctx, blank); err != nil {
		return ModelInfo{}, err
	}
	return a.ModelInfo(), nil
}

// Navigate plans a route to the requested destination
func (a *Assistant) Navigate(ctx context.Context, req navigation.Request) (*navigation.Result, error) {
	if a.navigator == nil {
		return nil, ErrNavigationDisabled
	}
	return a.navigator.Navigate(ctx, req)
}

// Country is the country destinations are searched in
func (a *Assistant) Country() string {
	if a.navigator == nil {
		return ""
	}
	return a.navigator.Country()
}

// Ping checks that the detection backend is reachable
func (a *Assistant) Ping(ctx context.Context) error {
	return a.detector.Ping(ctx)
}

// ModelInfo describes the detection backend
func (a *Assistant) ModelInfo() ModelInfo {
	return ModelInfo{
		Backend: a.detector.Backend(),
		Model:   a.detector.Model(),
		Labels:  a.detector.Labels(),
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
