package main

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const defaultPointsPerCell = 10

// Detector backends selectable with DETECTOR.
const (
	DetectorHuggingFace = "huggingface"
	DetectorGemini      = "gemini"
	DetectorNone        = "none"
)

// Config is the server's runtime configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	Detector       string
	HFToken        string
	HFModelURL     string
	HFThreshold    float64
	GCPProjectID   string
	GCPRegion      string
	GeminiModel    string
	DetectTimeout  time.Duration
	MatchThreshold float64
	MatchTopK      int

	PointsPerCell      int
	CaptureMaxDim      int
	CaptureQuality     int
	KeepCaptureOnError bool
	TickInterval       time.Duration
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Port:               "8080",
		LogLevel:           "info",
		LogFormat:          "json",
		Detector:           DetectorHuggingFace,
		HFModelURL:         defaultHFModelURL,
		HFThreshold:        defaultHFThreshold,
		GCPRegion:          defaultGCPRegion,
		GeminiModel:        defaultGeminiModel,
		DetectTimeout:      defaultDetectTimeout,
		MatchThreshold:     defaultMatchThreshold,
		MatchTopK:          defaultMatchTopK,
		PointsPerCell:      defaultPointsPerCell,
		CaptureMaxDim:      defaultCaptureMaxDim,
		CaptureQuality:     defaultCaptureQuality,
		KeepCaptureOnError: true,
		TickInterval:       time.Second,
	}
}

// LoadConfig overlays environment variables on DefaultConfig.
func LoadConfig(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := DefaultConfig()
	env := envReader{getenv: getenv}

	env.stringVar("PORT", &cfg.Port)
	env.stringVar("LOG_LEVEL", &cfg.LogLevel)
	env.stringVar("LOG_FORMAT", &cfg.LogFormat)
	env.stringVar("DETECTOR", &cfg.Detector)
	env.stringVar("HF_API_TOKEN", &cfg.HFToken)
	env.stringVar("HF_MODEL_URL", &cfg.HFModelURL)
	env.floatVar("HF_THRESHOLD", &cfg.HFThreshold)
	env.stringVar("GCP_PROJECT_ID", &cfg.GCPProjectID)
	env.stringVar("GCP_REGION", &cfg.GCPRegion)
	env.stringVar("GEMINI_MODEL", &cfg.GeminiModel)
	env.durationVar("DETECT_TIMEOUT", &cfg.DetectTimeout)
	env.floatVar("MATCH_THRESHOLD", &cfg.MatchThreshold)
	env.intVar("MATCH_TOP_K", &cfg.MatchTopK)
	env.intVar("POINTS_PER_CELL", &cfg.PointsPerCell)
	env.intVar("CAPTURE_MAX_DIM", &cfg.CaptureMaxDim)
	env.intVar("CAPTURE_JPEG_QUALITY", &cfg.CaptureQuality)
	env.boolVar("KEEP_CAPTURE_ON_ERROR", &cfg.KeepCaptureOnError)

	if env.err != nil {
		return Config{}, env.err
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the game cannot run with.
func (c Config) Validate() error {
	switch c.Detector {
	case DetectorHuggingFace, DetectorGemini, DetectorNone:
	default:
		return fmt.Errorf("unknown detector %q", c.Detector)
	}
	if c.MatchThreshold < 0 || c.MatchThreshold >= 1 {
		return fmt.Errorf("match threshold must be in [0,1), got %v", c.MatchThreshold)
	}
	if c.MatchTopK < 1 {
		return fmt.Errorf("match top-k must be at least 1, got %d", c.MatchTopK)
	}
	if c.PointsPerCell < 1 {
		return fmt.Errorf("points per cell must be positive, got %d", c.PointsPerCell)
	}
	if c.CaptureQuality < 1 || c.CaptureQuality > 100 {
		return fmt.Errorf("capture quality must be in [1,100], got %d", c.CaptureQuality)
	}
	if c.DetectTimeout <= 0 {
		return fmt.Errorf("detect timeout must be positive, got %s", c.DetectTimeout)
	}
	return nil
}

// GameOptions derives per-game options for a board.
func (c Config) GameOptions(b Board) GameOptions {
	return GameOptions{
		Board:              b,
		PointsPerCell:      c.PointsPerCell,
		Resolver:           ResolverConfig{Threshold: c.MatchThreshold, TopK: c.MatchTopK},
		KeepCaptureOnError: c.KeepCaptureOnError,
		DetectTimeout:      c.DetectTimeout,
		TickInterval:       c.TickInterval,
	}
}

// envReader parses typed variables, keeping the first error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) stringVar(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) intVar(key string, dst *int) {
	v := e.getenv(key)
	if v == "" || e.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = n
}

func (e *envReader) floatVar(key string, dst *float64) {
	v := e.getenv(key)
	if v == "" || e.err != nil {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = f
}

func (e *envReader) boolVar(key string, dst *bool) {
	v := e.getenv(key)
	if v == "" || e.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = b
}

func (e *envReader) durationVar(key string, dst *time.Duration) {
	v := e.getenv(key)
	if v == "" || e.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = d
}
