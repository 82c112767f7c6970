package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Imagery      ImageryConfig      `mapstructure:"imagery"`
	Segmentation SegmentationConfig `mapstructure:"segmentation"`
	Vegetation   VegetationConfig   `mapstructure:"vegetation"`
	Session      SessionConfig      `mapstructure:"session"`
	Output       OutputConfig       `mapstructure:"output"`
}

// ImageryConfig holds imagery provider parameters.
type ImageryConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	AccessKey    string        `mapstructure:"access_key"`
	Width        int           `mapstructure:"width"`
	Height       int           `mapstructure:"height"`
	FOV          int           `mapstructure:"fov"`
	Pitch        int           `mapstructure:"pitch"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// SegmentationConfig holds inference server parameters.
type SegmentationConfig struct {
	ServerURL       string        `mapstructure:"server_url"`
	Model           string        `mapstructure:"model"`
	Device          string        `mapstructure:"device"`
	Timeout         time.Duration `mapstructure:"timeout"`
	VegetationClass int           `mapstructure:"vegetation_class"`
}

// VegetationConfig holds overlay rendering parameters.
type VegetationConfig struct {
	HighlightColor [3]uint8 `mapstructure:"highlight_color"`
	DimFactor      float64  `mapstructure:"dim_factor"`
	OverlayAlpha   float64  `mapstructure:"overlay_alpha"`
}

// SessionConfig holds pipeline-wide parameters.
type SessionConfig struct {
	ImageDir       string `mapstructure:"image_dir"`
	AnalysisDir    string `mapstructure:"analysis_dir"`
	ProgressBuffer int    `mapstructure:"progress_buffer"`
}

// OutputConfig holds report export parameters.
type OutputConfig struct {
	ReportPath string `mapstructure:"report_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configuration from a YAML file, applying defaults for any
// unset keys.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with default values.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always unmarshal; a failure here is a defect.
		panic(fmt.Sprintf("config: default values do not unmarshal: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("imagery.endpoint", "https://api.map.baidu.com/panorama/v2")
	v.SetDefault("imagery.access_key", "")
	v.SetDefault("imagery.width", 1024)
	v.SetDefault("imagery.height", 512)
	v.SetDefault("imagery.fov", 180)
	v.SetDefault("imagery.pitch", 0)
	v.SetDefault("imagery.timeout", 30*time.Second)
	v.SetDefault("imagery.max_retries", 3)
	v.SetDefault("imagery.retry_backoff", 500*time.Millisecond)
	v.SetDefault("imagery.request_delay", 100*time.Millisecond)
	v.SetDefault("imagery.concurrency", 4)

	v.SetDefault("segmentation.server_url", "http://localhost:8093")
	v.SetDefault("segmentation.model", "segformer-b5-cityscapes-1024")
	v.SetDefault("segmentation.device", "auto")
	v.SetDefault("segmentation.timeout", 5*time.Minute)
	v.SetDefault("segmentation.vegetation_class", 8)

	v.SetDefault("vegetation.highlight_color", [3]uint8{0, 255, 0})
	v.SetDefault("vegetation.dim_factor", 0.6)
	v.SetDefault("vegetation.overlay_alpha", 0.6)

	v.SetDefault("session.image_dir", "./data/images")
	v.SetDefault("session.analysis_dir", "./data/analysis")
	v.SetDefault("session.progress_buffer", 64)

	v.SetDefault("output.report_path", "./output/green_view_report.xlsx")
	v.SetDefault("output.format", "xlsx")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Imagery.Endpoint == "" {
		return fmt.Errorf("imagery.endpoint cannot be empty")
	}

	// Baidu panorama static API limits: width [10,4096], height [10,512],
	// fov [10,360], pitch [-90,90].
	if c.Imagery.Width < 10 || c.Imagery.Width > 4096 {
		return fmt.Errorf("imagery.width must be between 10 and 4096")
	}

	if c.Imagery.Height < 10 || c.Imagery.Height > 512 {
		return fmt.Errorf("imagery.height must be between 10 and 512")
	}

	if c.Imagery.FOV < 10 || c.Imagery.FOV > 360 {
		return fmt.Errorf("imagery.fov must be between 10 and 360")
	}

	if c.Imagery.Pitch < -90 || c.Imagery.Pitch > 90 {
		return fmt.Errorf("imagery.pitch must be between -90 and 90")
	}

	if c.Imagery.MaxRetries < 0 {
		return fmt.Errorf("imagery.max_retries cannot be negative")
	}

	if c.Imagery.Concurrency < 1 {
		return fmt.Errorf("imagery.concurrency must be at least 1")
	}

	if c.Segmentation.ServerURL == "" {
		return fmt.Errorf("segmentation.server_url cannot be empty")
	}

	if c.Segmentation.VegetationClass < 0 || c.Segmentation.VegetationClass > 255 {
		return fmt.Errorf("segmentation.vegetation_class must fit in a class byte")
	}

	switch c.Segmentation.Device {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("segmentation.device must be one of auto, cpu, cuda")
	}

	if c.Vegetation.DimFactor < 0 || c.Vegetation.DimFactor > 1 {
		return fmt.Errorf("vegetation.dim_factor must be between 0 and 1")
	}

	if c.Vegetation.OverlayAlpha < 0 || c.Vegetation.OverlayAlpha > 1 {
		return fmt.Errorf("vegetation.overlay_alpha must be between 0 and 1")
	}

	switch c.Output.Format {
	case "xlsx", "csv":
	default:
		return fmt.Errorf("output.format must be xlsx or csv")
	}

	return nil
}
