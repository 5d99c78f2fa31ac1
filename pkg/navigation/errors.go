// Package navigation turns a free-text destination and the caller's position
// into a walkable route with spoken turn-by-turn instructions. Geocoding is
// delegated to Nominatim and routing to OSRM.
package navigation

import "errors"

var (
	// ErrDestinationNotFound is returned when the geocoder has no match.
	ErrDestinationNotFound = errors.New("destination not found")
	// ErrGeocode wraps transport and decoding failures of the geocoder.
	ErrGeocode = errors.New("geocoding failed")
	// ErrRouteRejected is returned when the router answers with a non-200 status.
	ErrRouteRejected = errors.New("route request rejected")
	// ErrNoRoute is returned when the router finds no route.
	ErrNoRoute = errors.New("no route found")
	// ErrRoute wraps transport and decoding failures of the router.
	ErrRoute = errors.New("routing failed")
)
