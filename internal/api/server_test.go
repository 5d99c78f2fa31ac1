package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	visionnav "github.com/menta2k/vision-nav"
	"github.com/menta2k/vision-nav/internal/config"
	"github.com/menta2k/vision-nav/internal/httputil"
	"github.com/menta2k/vision-nav/internal/monitoring"
	"github.com/menta2k/vision-nav/pkg/client"
	"github.com/menta2k/vision-nav/pkg/detection"
	"github.com/menta2k/vision-nav/pkg/navigation"
	"github.com/menta2k/vision-nav/pkg/processing"
	"github.com/menta2k/vision-nav/pkg/types"
)

func init() {
	monitoring.SetOutput(nil)
}

type stubBackend struct {
	detections []types.RawDetection
	err        error
}

func (s *stubBackend) Name() string                   { return "stub" }
func (s *stubBackend) Ping(ctx context.Context) error { return s.err }
func (s *stubBackend) Detect(ctx context.Context, f client.Frame) ([]types.RawDetection, error) {
	return s.detections, s.err
}

// fakeMaps serves canned Nominatim and OSRM answers
type fakeMaps struct {
	geoStatus   int
	geoBody     string
	routeStatus int
	routeBody   string
}

func defaultMaps() *fakeMaps {
	return &fakeMaps{
		geoStatus:   http.StatusOK,
		geoBody:     `[{"lat":"9.0300","lon":"38.7400"}]`,
		routeStatus: http.StatusOK,
		routeBody: `{"code":"Ok","routes":[{"distance":1500,"duration":90,
			"geometry":{"coordinates":[[38.75,9.01],[38.74,9.03]]},
			"legs":[{"steps":[{"distance":1500,"maneuver":{"type":"continue","modifier":"straight"}},
			{"distance":0,"maneuver":{"type":"arrive"}}]}]}]}`,
	}
}

func (f *fakeMaps) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/search" {
		w.WriteHeader(f.geoStatus)
		w.Write([]byte(f.geoBody))
		return
	}
	w.WriteHeader(f.routeStatus)
	w.Write([]byte(f.routeBody))
}

func newTestServer(t *testing.T, backend *stubBackend, maps *fakeMaps) *Server {
	t.Helper()
	return newTestServerWithClient(t, backend, maps, func(srv *httptest.Server) httputil.HTTPClient {
		return httputil.NewStandardClient(srv.Client())
	})
}

func newTestServerWithClient(t *testing.T, backend *stubBackend, maps *fakeMaps, newClient func(*httptest.Server) httputil.HTTPClient) *Server {
	t.Helper()
	mapsSrv := httptest.NewServer(maps)
	t.Cleanup(mapsSrv.Close)

	c := newClient(mapsSrv)
	nav := navigation.NewNavigator(
		navigation.NewGeocoder(c, navigation.GeocoderConfig{BaseURL: mapsSrv.URL + "/search"}),
		navigation.NewRouter(c, navigation.RouterConfig{BaseURL: mapsSrv.URL}),
	)

	opts := detection.DefaultOptions()
	opts.SendSize = 0
	a := visionnav.New(detection.NewDetector(backend, nil, opts), nav, visionnav.Options{})

	cfg := config.Default().Server
	s := NewServer(a, cfg)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) }
	return s
}

func frameBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	data, err := processing.NewProcessor().Encode(image.NewRGBA(image.Rect(0, 0, w, h)), "png", 0)
	require.NoError(t, err)
	return data
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHome(t *testing.T) {
	s := newTestServer(t, &stubBackend{}, defaultMaps())

	rec := do(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Object Detection API is running.", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/missing", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodPost, "/", "").Code)
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, &stubBackend{}, defaultMaps())
	rec := do(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "API is running", body["message"])
	assert.Equal(t, true, body["model_loaded"])
	assert.Equal(t, "stub", body["backend"])
	assert.Equal(t, visionnav.Version, body["version"])
	assert.Equal(t, map[string]interface{}{
		"detect_objects": "/detect_objects",
		"navigate":       "/navigate",
		"stream":         "/ws/detect",
	}, body["endpoints"])

	down := newTestServer(t, &stubBackend{err: errors.New("sidecar unreachable")}, defaultMaps())
	rec = do(t, down, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, false, body["model_loaded"])
	assert.Contains(t, body["message"], "sidecar unreachable")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &stubBackend{}, defaultMaps())
	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2024-05-01T12:30:00.000000", body["timestamp"])
}

func TestTestDetection(t *testing.T) {
	s := newTestServer(t, &stubBackend{}, defaultMaps())
	rec := do(t, s, http.MethodGet, "/test_detection", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	info, ok := body["model_info"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "stub", info["backend"])
	assert.Equal(t, "yolov8n.pt", info["model"])
	assert.NotEmpty(t, info["labels"])

	down := newTestServer(t, &stubBackend{err: errors.New("model crashed")}, defaultMaps())
	rec = do(t, down, http.MethodGet, "/test_detection", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "error", decode(t, rec)["status"])
}

func TestDetectObjects(t *testing.T) {
	backend := &stubBackend{detections: []types.RawDetection{
		{Label: "laptop", Confidence: 0.6, Box: types.Box{X1: 270, Y1: 100, X2: 370, Y2: 200}},
		{Label: "car", Confidence: 0.95, Box: types.Box{X1: 0, Y1: 0, X2: 180, Y2: 120}},
	}}
	s := newTestServer(t, backend, defaultMaps())

	payload, _ := json.Marshal(visionnav.FrameRequest{Image: base64.StdEncoding.EncodeToString(frameBytes(t, 640, 480))})
	rec := do(t, s, http.MethodPost, "/detect_objects", string(payload))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Detections []map[string]interface{} `json:"detections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Detections, 2)

	car := resp.Detections[0]
	assert.Equal(t, "car", car["label"])
	assert.Equal(t, 10.0, car["distance"])
	assert.Equal(t, "to your left", car["direction"])
	assert.EqualValues(t, 1, car["priority"])
	assert.NotContains(t, car, "box")

	laptop := resp.Detections[1]
	assert.Equal(t, "laptop", laptop["label"])
	assert.Equal(t, 3.0, laptop["distance"])
	assert.Equal(t, "in front of you", laptop["direction"])
	assert.NotContains(t, rec.Body.String(), "annotated_image")
}

func TestDetectObjectsAnnotated(t *testing.T) {
	s := newTestServer(t, &stubBackend{}, defaultMaps())

	payload, _ := json.Marshal(visionnav.FrameRequest{
		Image:          base64.StdEncoding.EncodeToString(frameBytes(t, 64, 64)),
		Annotate:       true,
		AnnotateFormat: "webp",
	})
	rec := do(t, s, http.MethodPost, "/detect_objects", string(payload))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, []interface{}{}, body["detections"])
	assert.NotEmpty(t, body["annotated_image"])
}

func TestDetectObjectsErrors(t *testing.T) {
	s := newTestServer(t, &stubBackend{}, defaultMaps())
	small := base64.StdEncoding.EncodeToString(frameBytes(t, 8, 8))
	junk := base64.StdEncoding.EncodeToString([]byte("definitely not an image"))

	tests := []struct {
		name   string
		body   string
		status int
		prefix string
	}{
		{"no image", `{}`, http.StatusBadRequest, "No image provided"},
		{"bad json", `{"image":`, http.StatusBadRequest, "Invalid JSON body"},
		{"undecodable", `{"image":"` + junk + `"}`, http.StatusBadRequest, "Failed to decode image"},
		{"bad base64", `{"image":"%%%"}`, http.StatusBadRequest, "Invalid image format: "},
		{"too small", `{"image":"` + small + `"}`, http.StatusBadRequest, "Invalid image format: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/detect_objects", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.True(t, strings.HasPrefix(decode(t, rec)["error"].(string), tt.prefix), rec.Body.String())
		})
	}

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodGet, "/detect_objects", "").Code)

	failing := newTestServer(t, &stubBackend{err: errors.New("cuda out of memory")}, defaultMaps())
	payload := `{"image":"` + base64.StdEncoding.EncodeToString(frameBytes(t, 64, 64)) + `"}`
	rec := do(t, failing, http.MethodPost, "/detect_objects", payload)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(decode(t, rec)["error"].(string), "Detection failed: "))
}

func TestDetectObjectsBodyLimit(t *testing.T) {
	s := newTestServer(t, &stubBackend{}, defaultMaps())
	s.cfg.MaxBodyBytes = 64

	rec := do(t, s, http.MethodPost, "/detect_objects", `{"image":"`+strings.Repeat("A", 256)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestNavigate(t *testing.T) {
	s := newTestServer(t, &stubBackend{}, defaultMaps())

	rec := do(t, s, http.MethodPost, "/navigate", `{"destination":"Meskel Square","current_lat":"9.01","current_lon":38.75}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res navigation.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "1.50 km", res.Distance)
	assert.Equal(t, "1.50 mins", res.Duration)
	assert.Equal(t, [][]float64{{38.75, 9.01}, {38.74, 9.03}}, res.Route)
	assert.Equal(t, []string{"Continue straight for 1.5 kilometers", "You have arrived at your destination"}, res.Instructions)
	assert.Equal(t, types.Coordinates{Lat: 9.03, Lon: 38.74}, res.DestinationCoords)
}

func TestNavigateErrors(t *testing.T) {
	valid := `{"destination":"Piassa","current_lat":9.01,"current_lon":38.75}`

	tests := []struct {
		name   string
		maps   func(m *fakeMaps)
		body   string
		status int
		msg    string
	}{
		{"no destination", nil, `{"current_lat":9,"current_lon":38}`, http.StatusBadRequest, "No destination provided"},
		{"blank destination", nil, `{"destination":" ","current_lat":9,"current_lon":38}`, http.StatusBadRequest, "No destination provided"},
		{"no location", nil, `{"destination":"Piassa","current_lat":9}`, http.StatusBadRequest, "Current location is required"},
		{"null location", nil, `{"destination":"Piassa","current_lat":null,"current_lon":38}`, http.StatusBadRequest, "Current location is required"},
		{"invalid location", nil, `{"destination":"Piassa","current_lat":"north","current_lon":38}`, http.StatusBadRequest, "Invalid current location"},
		{"out of range", nil, `{"destination":"Piassa","current_lat":95,"current_lon":38}`, http.StatusBadRequest, "Invalid current location"},
		{"not found", func(m *fakeMaps) { m.geoBody = `[]` }, valid, http.StatusNotFound, "Destination not found in Ethiopia"},
		{"geocode garbage", func(m *fakeMaps) { m.geoBody = `<html>` }, valid, http.StatusInternalServerError, "Failed to get destination coordinates"},
		{"route rejected", func(m *fakeMaps) { m.routeStatus = http.StatusBadRequest }, valid, http.StatusInternalServerError, "Unable to calculate route. Please try again."},
		{"no route", func(m *fakeMaps) { m.routeBody = `{"code":"NoRoute","routes":[]}` }, valid, http.StatusNotFound, "No route found. The destination might be too far or unreachable."},
		{"route garbage", func(m *fakeMaps) { m.routeBody = `{"routes":` }, valid, http.StatusInternalServerError, "Failed to calculate route. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maps := defaultMaps()
			if tt.maps != nil {
				tt.maps(maps)
			}
			s := newTestServer(t, &stubBackend{}, maps)
			rec := do(t, s, http.MethodPost, "/navigate", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, decode(t, rec)["error"])
		})
	}
}

func TestNavigateUpstreamOutage(t *testing.T) {
	policy := httputil.DefaultRetryPolicy()
	policy.BackoffBase = time.Millisecond
	policy.BackoffMax = 2 * time.Millisecond
	retrying := func(*httptest.Server) httputil.HTTPClient {
		return httputil.NewRetryClient(policy, time.Second)
	}

	tests := []struct {
		name string
		maps func(*fakeMaps)
		msg  string
	}{
		{"geocoder down", func(m *fakeMaps) { m.geoStatus = http.StatusServiceUnavailable }, "Failed to get destination coordinates"},
		{"router down", func(m *fakeMaps) { m.routeStatus = http.StatusServiceUnavailable }, "Failed to calculate route. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maps := defaultMaps()
			tt.maps(maps)
			s := newTestServerWithClient(t, &stubBackend{}, maps, retrying)

			rec := do(t, s, http.MethodPost, "/navigate", `{"destination":"Bole","current_lat":9.01,"current_lon":38.75}`)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, tt.msg, decode(t, rec)["error"])
		})
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	s := newTestServer(t, &stubBackend{}, defaultMaps())

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "client-42")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "client-42", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/detect_objects", bytes.NewReader(nil))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestParseCoordinate(t *testing.T) {
	for raw, want := range map[string]float64{`9.5`: 9.5, `"38.76"`: 38.76, `" -1 "`: -1} {
		got, err := parseCoordinate(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	for _, raw := range []string{`"abc"`, `true`, `"NaN"`, `"Inf"`, `[]`} {
		_, err := parseCoordinate(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}
