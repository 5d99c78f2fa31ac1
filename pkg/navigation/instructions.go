package navigation

import "fmt"

// Instruction renders a step as a sentence suitable for text-to-speech.
// Distances are spoken in kilometers with one decimal.
func Instruction(step Step) string {
	km := step.Distance / 1000
	mod := step.Maneuver.Modifier

	switch step.Maneuver.Type {
	case "turn":
		switch mod {
		case "slight left", "slight right", "sharp left", "sharp right":
			return fmt.Sprintf("Make a %s turn in %.1f kilometers", mod, km)
		}
		return fmt.Sprintf("Turn %s in %.1f kilometers", mod, km)
	case "continue":
		return fmt.Sprintf("Continue straight for %.1f kilometers", km)
	case "merge":
		return fmt.Sprintf("Merge onto the road in %.1f kilometers", km)
	case "roundabout":
		return fmt.Sprintf("Enter the roundabout and take the %s exit in %.1f kilometers", mod, km)
	case "arrive":
		return "You have arrived at your destination"
	default:
		return fmt.Sprintf("Follow the road for %.1f kilometers", km)
	}
}

// Instructions renders every step of a route's first leg
func Instructions(route *Route) []string {
	if route == nil || len(route.Legs) == 0 {
		return []string{}
	}
	steps := route.Legs[0].Steps
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, Instruction(s))
	}
	return out
}
