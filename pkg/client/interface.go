package client

import (
	"context"

	"github.com/menta2k/vision-nav/pkg/types"
)

// Frame is an encoded image handed to a detection backend
type Frame struct {
	Data   []byte
	Format string // jpg or png
	Width  int
	Height int

	Model      string
	Confidence float64
}

// DetectionClient is implemented by every detection backend. Boxes are
// returned in pixel coordinates of the frame that was sent.
type DetectionClient interface {
	Name() string
	Ping(ctx context.Context) error
	Detect(ctx context.Context, frame Frame) ([]types.RawDetection, error)
}
