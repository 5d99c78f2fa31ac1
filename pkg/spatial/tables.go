package spatial

// Default heuristic constants
const (
	DefaultFocalLength  = 1000.0
	DefaultObjectWidth  = 0.5
	DefaultMinDistance  = 0.1
	DefaultMaxDistance  = 50.0
	DefaultLeftBound    = 0.3
	DefaultRightBound   = 0.7
	DefaultPriority     = 5
	CenterPosition      = 0.5
	distanceRoundFactor = 100.0
)

// Priority levels, lower is more urgent
const (
	PriorityMoving     = 1 // people and vehicles
	PriorityStructural = 2 // walls, doors, stairs
	PriorityFurniture  = 3
	PriorityObject     = 4
)

// defaultKnownWidths holds the assumed real-world width of each class in meters
var defaultKnownWidths = map[string]float64{
	"person":       0.5,
	"car":          1.8,
	"truck":        2.4,
	"bus":          2.5,
	"motorcycle":   0.8,
	"bicycle":      0.6,
	"bench":        0.5,
	"chair":        0.5,
	"dining table": 0.8,
	"potted plant": 0.3,
	"tv":           0.8,
	"laptop":       0.3,
	"mouse":        0.1,
	"remote":       0.1,
	"keyboard":     0.3,
	"cell phone":   0.1,
	"book":         0.2,
	"clock":        0.2,
	"vase":         0.2,
	"scissors":     0.1,
	"toothbrush":   0.1,
	"wall":         0.2, // thickness
	"door":         1.0,
	"stairs":       1.2,
}

var defaultPriorities = map[string]int{
	"person":       PriorityMoving,
	"car":          PriorityMoving,
	"truck":        PriorityMoving,
	"bus":          PriorityMoving,
	"motorcycle":   PriorityMoving,
	"bicycle":      PriorityMoving,
	"wall":         PriorityStructural,
	"door":         PriorityStructural,
	"stairs":       PriorityStructural,
	"bench":        PriorityFurniture,
	"chair":        PriorityFurniture,
	"dining table": PriorityFurniture,
	"potted plant": PriorityObject,
	"tv":           PriorityObject,
	"laptop":       PriorityObject,
	"mouse":        PriorityObject,
	"remote":       PriorityObject,
	"keyboard":     PriorityObject,
	"cell phone":   PriorityObject,
	"book":         PriorityObject,
	"clock":        PriorityObject,
	"vase":         PriorityObject,
	"scissors":     PriorityObject,
	"toothbrush":   PriorityObject,
}

// KnownWidths returns a copy of the built-in width table
func KnownWidths() map[string]float64 {
	out := make(map[string]float64, len(defaultKnownWidths))
	for k, v := range defaultKnownWidths {
		out[k] = v
	}
	return out
}

// Priorities returns a copy of the built-in priority table
func Priorities() map[string]int {
	out := make(map[string]int, len(defaultPriorities))
	for k, v := range defaultPriorities {
		out[k] = v
	}
	return out
}
