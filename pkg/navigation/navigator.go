package navigation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/menta2k/vision-nav/internal/monitoring"
	"github.com/menta2k/vision-nav/pkg/types"
)

// ErrInvalidRequest is returned for a missing destination or out-of-range position
var ErrInvalidRequest = errors.New("invalid navigation request")

// Request asks for a route from the caller's position to a named place
type Request struct {
	Destination string
	CurrentLat  float64
	CurrentLon  float64
}

// Result is the route summary returned to the client
type Result struct {
	Route             [][]float64       `json:"route"`
	Distance          string            `json:"distance"`
	Duration          string            `json:"duration"`
	Instructions      []string          `json:"instructions"`
	DestinationCoords types.Coordinates `json:"destination_coords"`
}

// Navigator combines geocoding and routing
type Navigator struct {
	geocoder *Geocoder
	router   *Router
}

// NewNavigator creates a navigator from a geocoder and a router
func NewNavigator(g *Geocoder, r *Router) *Navigator {
	return &Navigator{geocoder: g, router: r}
}

// Country is the country every destination search is restricted to
func (n *Navigator) Country() string {
	return n.geocoder.Country()
}

// Navigate geocodes the destination and routes to it from the current position
func (n *Navigator) Navigate(ctx context.Context, req Request) (*Result, error) {
	dest := strings.TrimSpace(req.Destination)
	if dest == "" {
		return nil, fmt.Errorf("%w: empty destination", ErrInvalidRequest)
	}
	if math.IsNaN(req.CurrentLat) || math.IsNaN(req.CurrentLon) ||
		req.CurrentLat < -90 || req.CurrentLat > 90 || req.CurrentLon < -180 || req.CurrentLon > 180 {
		return nil, fmt.Errorf("%w: position %f,%f out of range", ErrInvalidRequest, req.CurrentLat, req.CurrentLon)
	}

	log := monitoring.Logger.WithField("destination", dest)
	log.Infof("calculating route from %.6f,%.6f", req.CurrentLat, req.CurrentLon)

	to, err := n.geocoder.Geocode(ctx, dest)
	if err != nil {
		log.WithError(err).Warn("geocoding failed")
		return nil, err
	}

	from := types.Coordinates{Lat: req.CurrentLat, Lon: req.CurrentLon}
	route, err := n.router.Route(ctx, from, to)
	if err != nil {
		log.WithError(err).Warn("routing failed")
		return nil, err
	}

	coords := route.Geometry.Coordinates
	if coords == nil {
		coords = [][]float64{}
	}

	return &Result{
		Route:             coords,
		Distance:          fmt.Sprintf("%.2f km", route.Distance/1000),
		Duration:          fmt.Sprintf("%.2f mins", route.Duration/60),
		Instructions:      Instructions(route),
		DestinationCoords: to,
	}, nil
}
