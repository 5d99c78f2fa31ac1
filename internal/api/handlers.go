package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	visionnav "github.com/menta2k/vision-nav"
	"github.com/menta2k/vision-nav/internal/httputil"
	"github.com/menta2k/vision-nav/internal/monitoring"
	"github.com/menta2k/vision-nav/pkg/navigation"
	"github.com/menta2k/vision-nav/pkg/processing"
)

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httputil.MethodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "Object Detection API is running.")
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if err := s.assistant.Ping(r.Context()); err != nil {
		monitoring.WithRequest(RequestID(r.Context())).WithError(err).Error("detection backend unavailable")
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status":       "error",
			"message":      err.Error(),
			"model_loaded": false,
		})
		return
	}

	info := s.assistant.ModelInfo()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":       "ok",
		"message":      "API is running",
		"model_loaded": true,
		"backend":      info.Backend,
		"model":        info.Model,
		"version":      visionnav.Version,
		"endpoints": map[string]string{
			"detect_objects": "/detect_objects",
			"navigate":       "/navigate",
			"stream":         "/ws/detect",
		},
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "healthy",
		"timestamp": s.now().Format("2006-01-02T15:04:05.000000"),
	})
}

func (s *Server) testDetection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	info, err := s.assistant.TestDetection(r.Context())
	if err != nil {
		monitoring.WithRequest(RequestID(r.Context())).WithError(err).Error("test detection failed")
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":     "success",
		"message":    "Detection backend is working",
		"model_info": info,
	})
}

func (s *Server) detectObjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req visionnav.FrameRequest
	if status, msg, ok := decodeBody(r, &req); !ok {
		httputil.WriteJSONError(w, status, msg)
		return
	}

	report, err := s.assistant.DetectFrame(r.Context(), req)
	if err != nil {
		status, msg := detectError(err)
		monitoring.WithRequest(RequestID(r.Context())).WithError(err).Warn("detection request failed")
		httputil.WriteJSONError(w, status, msg)
		return
	}

	httputil.WriteJSONOK(w, report)
}

// detectError maps detection failures to a status code and client message
func detectError(err error) (int, string) {
	switch {
	case errors.Is(err, processing.ErrNoImage):
		return http.StatusBadRequest, "No image provided"
	case errors.Is(err, processing.ErrUndecodable):
		return http.StatusBadRequest, "Failed to decode image"
	case errors.Is(err, processing.ErrInvalidImage):
		return http.StatusBadRequest, "Invalid image format: " + err.Error()
	default:
		return http.StatusInternalServerError, "Detection failed: " + err.Error()
	}
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var body map[string]json.RawMessage
	if status, msg, ok := decodeBody(r, &body); !ok {
		httputil.WriteJSONError(w, status, msg)
		return
	}

	var destination string
	if raw, ok := body["destination"]; ok {
		if err := json.Unmarshal(raw, &destination); err != nil {
			httputil.BadRequest(w, "destination must be a string")
			return
		}
	}
	if strings.TrimSpace(destination) == "" {
		httputil.BadRequest(w, "No destination provided")
		return
	}

	rawLat, hasLat := body["current_lat"]
	rawLon, hasLon := body["current_lon"]
	if !hasLat || !hasLon || isNull(rawLat) || isNull(rawLon) {
		httputil.BadRequest(w, "Current location is required")
		return
	}
	lat, errLat := parseCoordinate(rawLat)
	lon, errLon := parseCoordinate(rawLon)
	if errLat != nil || errLon != nil {
		httputil.BadRequest(w, "Invalid current location")
		return
	}

	res, err := s.assistant.Navigate(r.Context(), navigation.Request{
		Destination: destination,
		CurrentLat:  lat,
		CurrentLon:  lon,
	})
	if err != nil {
		status, msg := s.navigateError(err)
		monitoring.WithRequest(RequestID(r.Context())).WithError(err).Warn("navigation request failed")
		httputil.WriteJSONError(w, status, msg)
		return
	}

	httputil.WriteJSONOK(w, res)
}

func (s *Server) navigateError(err error) (int, string) {
	switch {
	case errors.Is(err, navigation.ErrInvalidRequest):
		return http.StatusBadRequest, "Invalid current location"
	case errors.Is(err, navigation.ErrDestinationNotFound):
		return http.StatusNotFound, "Destination not found in " + s.assistant.Country()
	case errors.Is(err, navigation.ErrGeocode):
		return http.StatusInternalServerError, "Failed to get destination coordinates"
	case errors.Is(err, navigation.ErrRouteRejected):
		return http.StatusInternalServerError, "Unable to calculate route. Please try again."
	case errors.Is(err, navigation.ErrNoRoute):
		return http.StatusNotFound, "No route found. The destination might be too far or unreachable."
	case errors.Is(err, navigation.ErrRoute):
		return http.StatusInternalServerError, "Failed to calculate route. Please try again."
	case errors.Is(err, visionnav.ErrNavigationDisabled):
		return http.StatusServiceUnavailable, "Navigation is not available"
	default:
		return http.StatusInternalServerError, "An unexpected error occurred. Please try again."
	}
}

// decodeBody reads a JSON request body into v
func decodeBody(r *http.Request, v interface{}) (int, string, bool) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), false
		}
		return http.StatusBadRequest, "Invalid JSON body: " + err.Error(), false
	}
	return 0, "", true
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// parseCoordinate accepts a JSON number or a numeric string
func parseCoordinate(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("coordinate is neither a number nor a string")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("coordinate %q is not finite", s)
	}
	return f, nil
}
