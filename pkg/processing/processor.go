package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/vision-nav/pkg/spatial"
	"github.com/menta2k/vision-nav/pkg/types"
)

var (
	// ErrNoImage is returned when a request carries no image data
	ErrNoImage = errors.New("no image provided")
	// ErrInvalidImage is returned when image data cannot be decoded
	ErrInvalidImage = errors.New("invalid image")
	// ErrUndecodable is returned, together with ErrInvalidImage, when the
	// bytes are not in any supported image format
	ErrUndecodable = errors.New("failed to decode image")
)

// Default processing parameters
const (
	DefaultMinFrameSize = 32
	TestFrameSize       = 640
)

// Processor handles image processing operations
type Processor struct {
	minFrameSize int
	leftBound    float64
	rightBound   float64
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return NewProcessorWithMinSize(DefaultMinFrameSize)
}

// NewProcessorWithMinSize creates a processor that rejects frames smaller than minSize
func NewProcessorWithMinSize(minSize int) *Processor {
	if minSize < 1 {
		minSize = 1
	}
	return &Processor{
		minFrameSize: minSize,
		leftBound:    spatial.DefaultLeftBound,
		rightBound:   spatial.DefaultRightBound,
	}
}

// SetDirectionBounds moves the guide lines CreateDebugOverlay draws. They
// should match the bounds the estimator uses for direction.
func (p *Processor) SetDirectionBounds(left, right float64) {
	p.leftBound = left
	p.rightBound = right
}

// DecodeBase64 decodes a base64 frame, optionally wrapped in a data URL
func (p *Processor) DecodeBase64(encoded string) (image.Image, string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, "", ErrNoImage
	}
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}

	data, err := decodeBase64String(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return p.Decode(data)
}

func decodeBase64String(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// Decode decodes raw image bytes with WebP support
func (p *Processor) Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrNoImage
	}

	// Try registered decoders first (jpeg, png, gif, bmp, webp)
	if img, format, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, format, nil
	}

	// Fallback: explicit WebP decode
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "webp", nil
	}

	return nil, "", fmt.Errorf("%w: %w", ErrInvalidImage, ErrUndecodable)
}

// ValidateFrame checks if a frame meets minimum requirements
func (p *Processor) ValidateFrame(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < p.minFrameSize || bounds.Dy() < p.minFrameSize {
		return fmt.Errorf("%w: frame too small: %dx%d (minimum: %d)",
			ErrInvalidImage, bounds.Dx(), bounds.Dy(), p.minFrameSize)
	}
	return nil
}

// PreparedFrame is an encoded frame ready for a detection backend
type PreparedFrame struct {
	Data   []byte
	Format string
	Width  int
	Height int

	// Scale converts coordinates of the prepared frame back to the original
	Scale float64
}

// PrepareImageForModel shrinks an image so its long side is at most maxDim
// and encodes it. A maxDim of 0 keeps the original size.
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (*PreparedFrame, error) {
	b := img.Bounds()
	origW := b.Dx()
	if maxDim > 0 {
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	format = strings.ToLower(format)
	switch format {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode png: %w", err)
		}
	default: // jpg
		format = "jpg"
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
	}

	nb := img.Bounds()
	scale := 1.0
	if nb.Dx() > 0 {
		scale = float64(origW) / float64(nb.Dx())
	}
	return &PreparedFrame{
		Data:   buf.Bytes(),
		Format: format,
		Width:  nb.Dx(),
		Height: nb.Dy(),
		Scale:  scale,
	}, nil
}

// Encode encodes an image as jpg, png or webp
func (p *Processor) Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, err
		}
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	case "jpg", "jpeg", "":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return buf.Bytes(), nil
}

// EncodeBase64 encodes an image and returns it as standard base64
func (p *Processor) EncodeBase64(img image.Image, format string, quality int) (string, error) {
	data, err := p.Encode(img, format, quality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// BlankFrame returns a black frame used to probe the detection backend
func (p *Processor) BlankFrame(width, height int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

// ClampBox restricts a box to the bounds of a width x height image
func ClampBox(b types.Box, width, height int) types.Box {
	fw, fh := float64(width), float64(height)
	return types.Box{
		X1: clamp(b.X1, 0, fw),
		Y1: clamp(b.Y1, 0, fh),
		X2: clamp(b.X2, 0, fw),
		Y2: clamp(b.Y2, 0, fh),
	}
}

// priorityColors maps priority rank to overlay color
var priorityColors = map[int]color.NRGBA{
	1: {255, 0, 0, 255},     // people and vehicles
	2: {255, 140, 0, 255},   // structures
	3: {255, 204, 0, 255},   // furniture
	4: {0, 170, 255, 255},   // small objects
	5: {160, 160, 160, 255}, // unknown
}

// CreateDebugOverlay draws detection boxes colored by priority
func (p *Processor) CreateDebugOverlay(img image.Image, detections []types.Detection) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h)))) // ~0.4% of min side

	// Draw lowest priority first so urgent boxes end up on top
	for i := len(detections) - 1; i >= 0; i-- {
		d := detections[i]
		c, ok := priorityColors[d.Priority]
		if !ok {
			c = priorityColors[5]
		}
		drawBox(nrgba, d.Box, c, stroke)
	}

	// Mark the left/right direction bounds
	gray := color.NRGBA{255, 255, 255, 96}
	for _, f := range []float64{p.leftBound, p.rightBound} {
		x := int(f*float64(w) + 0.5)
		drawVLine(nrgba, x, 0, h, gray)
	}

	return nrgba
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func boxToPixels(box types.Box, w, h int) (int, int, int, int) {
	x0 := int(clamp(box.X1, 0, float64(w)) + 0.5)
	y0 := int(clamp(box.Y1, 0, float64(h)) + 0.5)
	x1 := int(clamp(box.X2, 0, float64(w)) + 0.5)
	y1 := int(clamp(box.Y2, 0, float64(h)) + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1, y1
}

func drawBox(img *image.NRGBA, box types.Box, c color.NRGBA, stroke int) {
	b := img.Bounds()
	x0, y0, x1, y1 := boxToPixels(box, b.Dx(), b.Dy())
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
