// Package config loads viewer settings from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/passes"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by Config.Backend.
const (
	BackendGL   = "gl"
	BackendWGPU = "wgpu"
)

// ErrUnknownFormat is returned by Load for files that are neither TOML nor YAML.
var ErrUnknownFormat = errors.New("config: unknown file format")

// Window holds the platform window settings.
type Window struct {
	Title  string `toml:"title" yaml:"title"`
	Width  int    `toml:"width" yaml:"width"`
	Height int    `toml:"height" yaml:"height"`
	VSync  bool   `toml:"vsync" yaml:"vsync"`
}

// Render holds the pass settings.
type Render struct {
	ColorType     string     `toml:"color_type" yaml:"color_type"`
	ColorFilter   string     `toml:"color_filter" yaml:"color_filter"`
	Transparency  string     `toml:"transparency" yaml:"transparency"`
	DpoitPasses   int        `toml:"dpoit_passes" yaml:"dpoit_passes"`
	MultiSample   string     `toml:"multi_sample" yaml:"multi_sample"`
	SampleLevel   int        `toml:"sample_level" yaml:"sample_level"`
	PickBaseScale float64    `toml:"pick_base_scale" yaml:"pick_base_scale"`
	PickPadding   int        `toml:"pick_padding" yaml:"pick_padding"`
	ClearColor    [4]float32 `toml:"clear_color" yaml:"clear_color"`
	Marking       bool       `toml:"marking" yaml:"marking"`
}

// Engine holds the loop settings.
type Engine struct {
	TickRate float64 `toml:"tick_rate" yaml:"tick_rate"`
	// FrameLimit caps render frames per second, 0 is uncapped.
	FrameLimit float64 `toml:"frame_limit" yaml:"frame_limit"`
	// CommitBudgetMs is the time each frame may spend on scene commits.
	CommitBudgetMs int `toml:"commit_budget_ms" yaml:"commit_budget_ms"`
	ComputeWorkers int `toml:"compute_workers" yaml:"compute_workers"`
}

// Profiler holds the profiler settings.
type Profiler struct {
	Enabled    bool `toml:"enabled" yaml:"enabled"`
	IntervalMs int  `toml:"interval_ms" yaml:"interval_ms"`
}

// Config is the complete viewer configuration.
type Config struct {
	Backend  string   `toml:"backend" yaml:"backend"`
	Debug    bool     `toml:"debug" yaml:"debug"`
	Window   Window   `toml:"window" yaml:"window"`
	Render   Render   `toml:"render" yaml:"render"`
	Engine   Engine   `toml:"engine" yaml:"engine"`
	Profiler Profiler `toml:"profiler" yaml:"profiler"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend: BackendGL,
		Window: Window{
			Title:  "oxy-render",
			Width:  1280,
			Height: 720,
			VSync:  true,
		},
		Render: Render{
			ColorType:     "uint8",
			ColorFilter:   "nearest",
			Transparency:  "blended",
			DpoitPasses:   passes.DefaultDpoitPasses,
			MultiSample:   "off",
			SampleLevel:   2,
			PickBaseScale: passes.DefaultPickBaseScale,
			PickPadding:   passes.DefaultPickPadding,
			ClearColor:    [4]float32{0, 0, 0, 1},
		},
		Engine: Engine{
			TickRate:       60,
			CommitBudgetMs: 8,
		},
		Profiler: Profiler{IntervalMs: 1000},
	}
}

// Load reads path on top of Default. The decoder is chosen by extension:
// .toml, .yaml or .yml.
//
// Parameters:
//   - path: the file to read
//
// Returns:
//   - Config: the validated configuration
//   - error: read, decode or validation error
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	if err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and enum names. Every problem is reported.
func (c Config) Validate() error {
	var errs []error
	if c.Backend != BackendGL && c.Backend != BackendWGPU {
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height))
	}
	if _, err := gpu.ParseTextureType(c.Render.ColorType); err != nil {
		errs = append(errs, err)
	}
	if _, err := gpu.ParseFilter(c.Render.ColorFilter); err != nil {
		errs = append(errs, err)
	}
	if _, err := passes.ParseTransparencyMode(c.Render.Transparency); err != nil {
		errs = append(errs, err)
	}
	if _, err := passes.ParseMultiSampleMode(c.Render.MultiSample); err != nil {
		errs = append(errs, err)
	}
	if c.Render.DpoitPasses < 1 {
		errs = append(errs, fmt.Errorf("dpoit_passes %d must be at least 1", c.Render.DpoitPasses))
	}
	if c.Render.SampleLevel < 0 || c.Render.SampleLevel > passes.MaxSampleLevel {
		errs = append(errs, fmt.Errorf("sample_level %d outside [0, %d]", c.Render.SampleLevel, passes.MaxSampleLevel))
	}
	if c.Render.PickBaseScale <= 0 || c.Render.PickBaseScale > 1 {
		errs = append(errs, fmt.Errorf("pick_base_scale %v outside (0, 1]", c.Render.PickBaseScale))
	}
	if c.Render.PickPadding < 0 {
		errs = append(errs, fmt.Errorf("pick_padding %d is negative", c.Render.PickPadding))
	}
	if c.Engine.CommitBudgetMs < 0 || c.Engine.FrameLimit < 0 || c.Engine.ComputeWorkers < 0 {
		errs = append(errs, errors.New("engine limits must not be negative"))
	}
	if c.Profiler.IntervalMs < 0 {
		errs = append(errs, fmt.Errorf("profiler interval_ms %d is negative", c.Profiler.IntervalMs))
	}
	return errors.Join(errs...)
}

// CommitBudget returns the per-frame scene commit budget.
func (c Config) CommitBudget() time.Duration {
	return time.Duration(c.Engine.CommitBudgetMs) * time.Millisecond
}

// ProfilerInterval returns the profiler reporting interval.
func (c Config) ProfilerInterval() time.Duration {
	return time.Duration(c.Profiler.IntervalMs) * time.Millisecond
}

// PassesOptions converts the render settings to pass options. Call it on a
// validated config; unparsable names fall back to the defaults.
func (c Config) PassesOptions() []passes.PassesBuilderOption {
	typ, _ := gpu.ParseTextureType(c.Render.ColorType)
	filter, _ := gpu.ParseFilter(c.Render.ColorFilter)
	transparency, _ := passes.ParseTransparencyMode(c.Render.Transparency)
	ms, _ := passes.ParseMultiSampleMode(c.Render.MultiSample)
	return []passes.PassesBuilderOption{
		passes.WithColorType(typ),
		passes.WithColorFilter(filter),
		passes.WithTransparency(transparency),
		passes.WithDpoitPasses(c.Render.DpoitPasses),
		passes.WithPickBaseScale(c.Render.PickBaseScale),
		passes.WithPickPadding(c.Render.PickPadding),
		passes.WithMultiSample(ms, c.Render.SampleLevel),
	}
}
