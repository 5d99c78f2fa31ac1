package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "VISION_NAV_"

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Detection  DetectionConfig  `json:"detection"`
	Spatial    SpatialConfig    `json:"spatial"`
	Navigation NavigationConfig `json:"navigation"`
	Retry      RetryConfig      `json:"retry"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig holds configuration for the HTTP listener
type ServerConfig struct {
	Listen          string   `json:"listen"`
	MaxBodyBytes    int64    `json:"max_body_bytes"`
	ReadTimeout     Duration `json:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	AllowedOrigin   string   `json:"allowed_origin"`
}

// DetectionConfig holds configuration for the detection backend
type DetectionConfig struct {
	Backend        string   `json:"backend"`
	URL            string   `json:"url"`
	Model          string   `json:"model"`
	Confidence     float64  `json:"confidence"`
	SendFormat     string   `json:"send_format"`
	SendSize       int      `json:"send_size"`
	SendQuality    int      `json:"send_quality"`
	MinFrameSize   int      `json:"min_frame_size"`
	AnnotateFormat string   `json:"annotate_format"`
	Timeout        Duration `json:"timeout"`
}

// SpatialConfig holds the distance and direction heuristics
type SpatialConfig struct {
	FocalLength  float64            `json:"focal_length"`
	DefaultWidth float64            `json:"default_width"`
	MinDistance  float64            `json:"min_distance"`
	MaxDistance  float64            `json:"max_distance"`
	LeftBound    float64            `json:"left_bound"`
	RightBound   float64            `json:"right_bound"`
	Widths       map[string]float64 `json:"widths,omitempty"`
	Priorities   map[string]int     `json:"priorities,omitempty"`
}

// NavigationConfig holds configuration for geocoding and routing
type NavigationConfig struct {
	NominatimURL   string   `json:"nominatim_url"`
	OSRMURL        string   `json:"osrm_url"`
	Profile        string   `json:"profile"`
	Country        string   `json:"country"`
	CountryCode    string   `json:"country_code"`
	AcceptLanguage string   `json:"accept_language"`
	UserAgent      string   `json:"user_agent"`
	GeocodeTimeout Duration `json:"geocode_timeout"`
	RouteTimeout   Duration `json:"route_timeout"`
}

// RetryConfig holds the retry policy for outbound public APIs
type RetryConfig struct {
	MaxRetries  int      `json:"max_retries"`
	Backoff     Duration `json:"backoff"`
	BackoffMax  Duration `json:"backoff_max"`
	StatusCodes []int    `json:"status_codes"`
}

// LoggingConfig holds configuration for the logger
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":5000",
			MaxBodyBytes:    20 << 20,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(2 * time.Minute),
			ShutdownTimeout: Duration(10 * time.Second),
			AllowedOrigin:   "*",
		},
		Detection: DetectionConfig{
			Backend:        "yolo",
			URL:            "",
			Model:          "",
			Confidence:     0.25,
			SendFormat:     "jpg",
			SendSize:       1280,
			SendQuality:    85,
			MinFrameSize:   32,
			AnnotateFormat: "jpg",
			Timeout:        Duration(2 * time.Minute),
		},
		Spatial: SpatialConfig{
			FocalLength:  1000,
			DefaultWidth: 0.5,
			MinDistance:  0.1,
			MaxDistance:  50,
			LeftBound:    0.3,
			RightBound:   0.7,
		},
		Navigation: NavigationConfig{
			NominatimURL:   "https://nominatim.openstreetmap.org/search",
			OSRMURL:        "https://router.project-osrm.org",
			Profile:        "driving",
			Country:        "Ethiopia",
			CountryCode:    "et",
			AcceptLanguage: "am,en",
			UserAgent:      "AssistiveNavigationApp/1.0",
			GeocodeTimeout: Duration(5 * time.Second),
			RouteTimeout:   Duration(10 * time.Second),
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			Backoff:     Duration(time.Second),
			BackoffMax:  Duration(8 * time.Second),
			StatusCodes: []int{500, 502, 503, 504},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultModel returns the model used by a backend when none is configured
func DefaultModel(backend string) string {
	switch backend {
	case "ollama":
		return "qwen2.5vl:7b"
	case "llamacpp":
		return "openbmb/minicpm-v4.5"
	default:
		return "yolov8n.pt"
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from
// the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from VISION_NAV_* environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := map[string]*string{
		"LISTEN":        &c.Server.Listen,
		"BACKEND":       &c.Detection.Backend,
		"BACKEND_URL":   &c.Detection.URL,
		"MODEL":         &c.Detection.Model,
		"NOMINATIM_URL": &c.Navigation.NominatimURL,
		"OSRM_URL":      &c.Navigation.OSRMURL,
		"COUNTRY":       &c.Navigation.Country,
		"COUNTRY_CODE":  &c.Navigation.CountryCode,
		"LOG_LEVEL":     &c.Logging.Level,
		"LOG_FORMAT":    &c.Logging.Format,
	}
	for key, dst := range str {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup(EnvPrefix + "CONFIDENCE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sCONFIDENCE: %w", EnvPrefix, err)
		}
		c.Detection.Confidence = f
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen cannot be empty")
	}

	if c.Server.MaxBodyBytes < 1 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}

	switch c.Detection.Backend {
	case "yolo", "ollama", "llamacpp":
	default:
		return fmt.Errorf("detection.backend must be yolo, ollama or llamacpp, got %q", c.Detection.Backend)
	}

	if c.Detection.Confidence <= 0 || c.Detection.Confidence > 1 {
		return fmt.Errorf("detection.confidence must be in (0, 1]")
	}

	switch strings.ToLower(c.Detection.SendFormat) {
	case "jpg", "jpeg", "png":
	default:
		return fmt.Errorf("detection.send_format must be jpg or png")
	}

	switch strings.ToLower(c.Detection.AnnotateFormat) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("detection.annotate_format must be jpg, png or webp")
	}

	if c.Detection.SendQuality < 1 || c.Detection.SendQuality > 100 {
		return fmt.Errorf("detection.send_quality must be between 1 and 100")
	}

	if c.Detection.SendSize < 0 {
		return fmt.Errorf("detection.send_size cannot be negative")
	}

	if c.Detection.MinFrameSize < 1 {
		return fmt.Errorf("detection.min_frame_size must be positive")
	}

	if c.Spatial.FocalLength <= 0 || c.Spatial.DefaultWidth <= 0 {
		return fmt.Errorf("spatial.focal_length and spatial.default_width must be positive")
	}

	if c.Spatial.MinDistance <= 0 || c.Spatial.MaxDistance <= c.Spatial.MinDistance {
		return fmt.Errorf("spatial distance range must satisfy 0 < min_distance < max_distance")
	}

	if c.Spatial.LeftBound < 0 || c.Spatial.RightBound > 1 || c.Spatial.LeftBound >= c.Spatial.RightBound {
		return fmt.Errorf("spatial bounds must satisfy 0 <= left_bound < right_bound <= 1")
	}

	for label, w := range c.Spatial.Widths {
		if w <= 0 {
			return fmt.Errorf("spatial.widths[%q] must be positive", label)
		}
	}

	if c.Navigation.Country == "" || c.Navigation.CountryCode == "" {
		return fmt.Errorf("navigation.country and navigation.country_code cannot be empty")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "vision-nav", "config.json")
}
