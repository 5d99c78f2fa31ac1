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
	"github.com/menta2k/vision-nav/internal/monitoring"
	"github.com/menta2k/vision-nav/pkg/types"
)

const (
	DefaultNominatimURL   = "https://nominatim.openstreetmap.org/search"
	DefaultUserAgent      = "AssistiveNavigationApp/1.0"
	DefaultCountry        = "Ethiopia"
	DefaultCountryCode    = "et"
	DefaultAcceptLanguage = "am,en"
)

// GeocoderConfig selects the Nominatim endpoint and the search restriction
type GeocoderConfig struct {
	BaseURL        string
	Country        string
	CountryCode    string
	AcceptLanguage string
	UserAgent      string
}

// Geocoder resolves a place name to coordinates
type Geocoder struct {
	client httputil.HTTPClient
	cfg    GeocoderConfig
}

// NewGeocoder creates a geocoder; empty config fields take the defaults
func NewGeocoder(c httputil.HTTPClient, cfg GeocoderConfig) *Geocoder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNominatimURL
	}
	if cfg.Country == "" {
		cfg.Country = DefaultCountry
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = DefaultCountryCode
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Geocoder{client: c, cfg: cfg}
}

// Country is the name appended to every search
func (g *Geocoder) Country() string {
	return g.cfg.Country
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the coordinates of the best match for destination
func (g *Geocoder) Geocode(ctx context.Context, destination string) (types.Coordinates, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("%s, %s", strings.TrimSpace(destination), g.cfg.Country))
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("countrycodes", g.cfg.CountryCode)
	q.Set("accept-language", g.cfg.AcceptLanguage)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return types.Coordinates{}, fmt.Errorf("%w: %v", ErrGeocode, err)
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	req.Header.Set("Accept-Language", g.cfg.AcceptLanguage)

	monitoring.Logger.WithField("query", q.Get("q")).Debug("requesting nominatim")

	resp, err := g.client.Do(req)
	if err != nil {
		return types.Coordinates{}, fmt.Errorf("%w: %v", ErrGeocode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		monitoring.Logger.Warnf("nominatim returned status %d for %q", resp.StatusCode, destination)
		return types.Coordinates{}, ErrDestinationNotFound
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Coordinates{}, fmt.Errorf("%w: reading response: %v", ErrGeocode, err)
	}

	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		return types.Coordinates{}, fmt.Errorf("%w: decoding response: %v", ErrGeocode, err)
	}
	if len(places) == 0 {
		return types.Coordinates{}, ErrDestinationNotFound
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return types.Coordinates{}, fmt.Errorf("%w: invalid latitude %q", ErrGeocode, places[0].Lat)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return types.Coordinates{}, fmt.Errorf("%w: invalid longitude %q", ErrGeocode, places[0].Lon)
	}

	monitoring.Logger.Debugf("geocoded %q to %.6f,%.6f (%s)", destination, lat, lon, places[0].DisplayName)
	return types.Coordinates{Lat: lat, Lon: lon}, nil
}
