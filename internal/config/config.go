package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/motion2video/internal/animation"
)

var ErrInvalid = errors.New("config: invalid value")

// Config holds export settings. Zero values for Quality and VideoEncoder
// mean "pick automatically".
type Config struct {
	ProjectPath string `yaml:"project"`
	OutputPath  string `yaml:"output"`
	AssetDir    string `yaml:"asset_dir"`

	Width    int     `yaml:"width"`
	Height   int     `yaml:"height"`
	FPS      float64 `yaml:"fps"`
	Duration float64 `yaml:"duration"`
	Preset   string  `yaml:"preset"`

	VideoEncoder  string `yaml:"encoder"`
	Quality       int    `yaml:"quality"`
	EncoderPreset string `yaml:"encoder_preset"`
	QueueDepth    int    `yaml:"queue_depth"`

	DPI               int    `yaml:"dpi"`
	MaxImageDimension int    `yaml:"max_image_dimension"`
	Background        string `yaml:"background"`
	Placeholder       string `yaml:"placeholder"`

	ProgressStep     float64       `yaml:"progress_step"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	FinalizeTimeout  time.Duration `yaml:"finalize_timeout"`

	ShowStats    bool   `yaml:"stats"`
	BuildVersion string `yaml:"-"`
}

// Default returns the settings used when nothing else is given.
func Default() *Config {
	return &Config{
		Width:             1280,
		Height:            720,
		FPS:               30,
		QueueDepth:        4,
		DPI:               150,
		MaxImageDimension: 4096,
		Background:        "#ffffff",
		Placeholder:       "Project Export",
		ProgressStep:      0.01,
		ProgressInterval:  100 * time.Millisecond,
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Preset != "" {
		if err := cfg.ApplyPreset(cfg.Preset); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Presets are the output formats selectable by name.
var Presets = map[string][2]int{
	"16:9": {1280, 720},
	"9:16": {720, 1280}, // Shorts/TikTok
	"4:5":  {1080, 1350}, // Instagram
	"1:1":  {1080, 1080},
	"4k":   {3840, 2160},
}

// ApplyPreset sets the output size from a named preset.
func (c *Config) ApplyPreset(name string) error {
	size, ok := Presets[name]
	if !ok {
		return fmt.Errorf("%w: unknown preset %q", ErrInvalid, name)
	}
	c.Preset = name
	c.Width, c.Height = size[0], size[1]
	return nil
}

// BackgroundColor parses Background.
func (c *Config) BackgroundColor() (animation.Color, error) {
	if c.Background == "" {
		return animation.RGBA(1, 1, 1, 1), nil
	}
	return animation.ParseHexColor(c.Background)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var problems []string
	if c.Width <= 0 || c.Height <= 0 {
		problems = append(problems, fmt.Sprintf("size %dx%d", c.Width, c.Height))
	}
	if c.FPS <= 0 {
		problems = append(problems, fmt.Sprintf("fps %v", c.FPS))
	}
	if c.Duration < 0 {
		problems = append(problems, fmt.Sprintf("duration %v", c.Duration))
	}
	if c.Quality < 0 {
		problems = append(problems, fmt.Sprintf("quality %d", c.Quality))
	}
	if c.ProgressStep < 0 || c.ProgressStep > 1 {
		problems = append(problems, fmt.Sprintf("progress_step %v", c.ProgressStep))
	}
	if c.QueueDepth < 0 {
		problems = append(problems, fmt.Sprintf("queue_depth %d", c.QueueDepth))
	}
	if _, err := c.BackgroundColor(); err != nil {
		problems = append(problems, fmt.Sprintf("background %q", c.Background))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, ", "))
	}
	return nil
}
