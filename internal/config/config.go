package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all configuration for the NO2 map service.
type Config struct {
	// Server configuration
	Port string `env:"PORT,default=8982"`

	// Data source base locations. Supported schemes: http(s)://, gs://,
	// file:// or a bare directory path.
	GeotiffBaseURL     string `env:"GEOTIFF_BASE_URL,required"`
	CitiesDataURL      string `env:"CITIES_DATA_URL,required"`
	BaselineGeotiffURL string `env:"BASELINE_GEOTIFF_URL"`

	// Boundary dataset file name, resolved against CitiesDataURL.
	BoundaryFile string `env:"BOUNDARY_FILE,default=germany_outline.geojson"`

	// Sampling and rendering
	SampleStride  int     `env:"SAMPLE_STRIDE,default=2"`
	ClampPercent  float64 `env:"CLAMP_PERCENT,default=50"`
	OverlayWidth  int     `env:"OVERLAY_WIDTH,default=900"`
	OverlayHeight int     `env:"OVERLAY_HEIGHT,default=1100"`

	// Service configuration
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=auto"`
}

// Load loads configuration from environment variables. A missing required
// data-source setting fails here, and the caller treats that as fatal:
// the application cannot render without city and raster base paths.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SampleStride < 1 {
		return fmt.Errorf("SAMPLE_STRIDE must be >= 1, got %d", c.SampleStride)
	}
	if c.ClampPercent <= 0 {
		return fmt.Errorf("CLAMP_PERCENT must be positive, got %g", c.ClampPercent)
	}
	if c.OverlayWidth < 1 || c.OverlayHeight < 1 {
		return fmt.Errorf("invalid overlay size %dx%d", c.OverlayWidth, c.OverlayHeight)
	}
	return nil
}
