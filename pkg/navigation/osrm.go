package navigation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/menta2k/vision-nav/internal/httputil"
	"github.com/menta2k/vision-nav/pkg/types"
)

const (
	DefaultOSRMURL = "https://router.project-osrm.org"
	DefaultProfile = "driving"
)

// RouterConfig selects the OSRM endpoint and profile
type RouterConfig struct {
	BaseURL   string
	Profile   string
	UserAgent string
}

// Maneuver is the OSRM description of what to do at the start of a step
type Maneuver struct {
	Type     string `json:"type"`
	Modifier string `json:"modifier"`
	Exit     int    `json:"exit,omitempty"`
}

// Step is a single leg step; Distance is in meters
type Step struct {
	Distance float64  `json:"distance"`
	Duration float64  `json:"duration"`
	Name     string   `json:"name"`
	Maneuver Maneuver `json:"maneuver"`
}

// Route is one OSRM route. Distance is meters and Duration seconds.
type Route struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry struct {
		Coordinates [][]float64 `json:"coordinates"`
	} `json:"geometry"`
	Legs []Leg `json:"legs"`
}

// Leg is the part of a route between two waypoints
type Leg struct {
	Steps []Step `json:"steps"`
}

type routeResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Routes  []Route `json:"routes"`
}

// Router computes routes between two points
type Router struct {
	client httputil.HTTPClient
	cfg    RouterConfig
}

// NewRouter creates a router; empty config fields take the defaults
func NewRouter(c httputil.HTTPClient, cfg RouterConfig) *Router {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOSRMURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Router{client: c, cfg: cfg}
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Route returns the first route OSRM proposes from origin to destination
func (r *Router) Route(ctx context.Context, from, to types.Coordinates) (*Route, error) {
	path := fmt.Sprintf("%s/route/v1/%s/%s,%s;%s,%s", r.cfg.BaseURL, r.cfg.Profile,
		coord(from.Lon), coord(from.Lat), coord(to.Lon), coord(to.Lat))

	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "geojson")
	q.Set("steps", "true")
	q.Set("annotations", "true")
	q.Set("alternatives", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoute, err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoute, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrRoute, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRouteRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rr routeResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrRoute, err)
	}
	if len(rr.Routes) == 0 {
		return nil, ErrNoRoute
	}

	route := rr.Routes[0]
	if len(route.Legs) == 0 {
		return nil, fmt.Errorf("%w: route has no legs", ErrRoute)
	}
	return &route, nil
}
