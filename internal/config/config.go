package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sadopc/veresia/internal/ink"
)

// Recognizer names accepted in RECOGNIZER.
const (
	RecognizerNone      = "none"
	RecognizerTesseract = "tesseract"
	RecognizerAzure     = "azure"
)

// Database drivers accepted in DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all runtime settings. It is built once at startup and passed
// to the constructors that need it.
type Config struct {
	// Storage
	DataDir      string
	DatabasePath string
	PagesDir     string
	DBDriver     string
	DatabaseURL  string

	// Logging
	LogLevel string
	LogFile  string

	// HTTP server
	HTTPAddr string

	// Recognition
	Recognizer       string
	RecognizeTimeout time.Duration
	TesseractBin     string
	TesseractLang    string
	AzureEndpoint    string
	AzureKey         string
	AzureLanguage    string

	// Canvas and strike detection
	CanvasWidth       int
	CanvasHeight      int
	StrikeMinPoints   int
	StrikeWidthRatio  float64
	StrikeHeightRatio float64
	StrikeNoise       float64

	// Upload limits for POST /pages
	MaxCanvasPx     int
	MaxStrokes      int
	MaxStrokePoints int

	// EnvFile is the .env file that was loaded, if any.
	EnvFile string
}

// Load reads a .env file from the working directory (or its parent) and
// then the process environment.
func Load() (*Config, error) {
	envFile := ""
	for _, p := range []string{".env", "../.env"} {
		if err := godotenv.Load(p); err == nil {
			envFile = p
			break
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", p, err)
		}
	}

	dataDir := getEnv("DATA_DIR", "")
	if dataDir == "" {
		d, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}
		dataDir = d
	}

	cfg := &Config{
		DataDir:      dataDir,
		DatabasePath: getEnv("DATABASE_PATH", filepath.Join(dataDir, "veresia.db")),
		PagesDir:     getEnv("PAGES_DIR", filepath.Join(dataDir, "pages")),
		DBDriver:     strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", filepath.Join(dataDir, "veresia.log")),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		Recognizer:       strings.ToLower(getEnv("RECOGNIZER", RecognizerNone)),
		RecognizeTimeout: getEnvAsDuration("RECOGNIZE_TIMEOUT", 30*time.Second),
		TesseractBin:     getEnv("TESSERACT_BIN", "tesseract"),
		TesseractLang:    getEnv("TESSERACT_LANG", "bul"),
		AzureEndpoint:    getEnv("AZURE_VISION_ENDPOINT", ""),
		AzureKey:         getEnv("AZURE_VISION_KEY", ""),
		AzureLanguage:    getEnv("AZURE_OCR_LANGUAGE", "unk"),

		CanvasWidth:       getEnvAsInt("CANVAS_WIDTH", 1200),
		CanvasHeight:      getEnvAsInt("CANVAS_HEIGHT", 1600),
		StrikeMinPoints:   getEnvAsInt("STRIKE_MIN_POINTS", ink.DefaultMinPoints),
		StrikeWidthRatio:  getEnvAsFloat("STRIKE_WIDTH_RATIO", ink.DefaultMinWidthRatio),
		StrikeHeightRatio: getEnvAsFloat("STRIKE_HEIGHT_RATIO", ink.DefaultMaxHeightRatio),
		StrikeNoise:       getEnvAsFloat("STRIKE_NOISE", ink.DefaultNoise),

		MaxCanvasPx:     getEnvAsInt("MAX_CANVAS_PX", 4096),
		MaxStrokes:      getEnvAsInt("MAX_STROKES", 2000),
		MaxStrokePoints: getEnvAsInt("MAX_STROKE_POINTS", 10000),

		EnvFile: envFile,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	switch c.Recognizer {
	case RecognizerNone, RecognizerTesseract:
	case RecognizerAzure:
		if c.AzureEndpoint == "" || c.AzureKey == "" {
			errs = append(errs, errors.New("RECOGNIZER=azure requires AZURE_VISION_ENDPOINT and AZURE_VISION_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RECOGNIZER %q", c.Recognizer))
	}

	switch c.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DB_DRIVER=postgres requires DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}

	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		errs = append(errs, fmt.Errorf("canvas size must be positive, got %dx%d", c.CanvasWidth, c.CanvasHeight))
	}
	if c.MaxCanvasPx <= 0 || c.MaxStrokes <= 0 || c.MaxStrokePoints <= 0 {
		errs = append(errs, errors.New("MAX_CANVAS_PX, MAX_STROKES and MAX_STROKE_POINTS must be positive"))
	} else if c.CanvasWidth > c.MaxCanvasPx || c.CanvasHeight > c.MaxCanvasPx {
		errs = append(errs, fmt.Errorf("canvas size %dx%d exceeds MAX_CANVAS_PX %d", c.CanvasWidth, c.CanvasHeight, c.MaxCanvasPx))
	}
	return errors.Join(errs...)
}

// Classifier returns the strike-through classifier for the configured canvas.
func (c *Config) Classifier() ink.Classifier {
	return ink.Classifier{
		CanvasWidth:    float64(c.CanvasWidth),
		CanvasHeight:   float64(c.CanvasHeight),
		MinPoints:      c.StrikeMinPoints,
		MinWidthRatio:  c.StrikeWidthRatio,
		MaxHeightRatio: c.StrikeHeightRatio,
		Noise:          c.StrikeNoise,
	}
}

// DefaultDataDir returns ~/.config/veresia (or the platform equivalent).
func DefaultDataDir() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(cfg, "veresia"), nil
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
