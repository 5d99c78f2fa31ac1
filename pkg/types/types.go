package types

// Box represents a bounding box in pixel coordinates (top-left, bottom-right)
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent of the box in pixels
func (b Box) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the vertical extent of the box in pixels
func (b Box) Height() float64 {
	return b.Y2 - b.Y1
}

// Scale multiplies every coordinate by f
func (b Box) Scale(f float64) Box {
	return Box{X1: b.X1 * f, Y1: b.Y1 * f, X2: b.X2 * f, Y2: b.Y2 * f}
}

// RawDetection is a single detection as reported by a detection backend
type RawDetection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Detection is a detection enriched with distance, direction and priority
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
	Direction  string  `json:"direction"`
	Priority   int     `json:"priority"`

	// Box is kept for overlays and is not part of the client payload
	Box Box `json:"-"`
}

// DetectionResult contains the sorted detections for one frame
type DetectionResult struct {
	ImageWidth  int         `json:"image_width"`
	ImageHeight int         `json:"image_height"`
	Detections  []Detection `json:"detections"`
}

// Coordinates is a WGS 84 point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
