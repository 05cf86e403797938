package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/dragonfire/engine/core"
)

const (
	SettingsFile = "game_settings.toml"
	EnvPrefix    = "DRAGONFIRE_"
)

// GraphicsSettings are the user facing renderer options.
type GraphicsSettings struct {
	Resolution [2]uint32 `toml:"resolution"`
	// Vertical field of view in degrees.
	FOV   float32 `toml:"fov"`
	VSync bool    `toml:"vsync"`
	// Number of recording workers, 0 picks one per two cpus.
	RenderThreads int `toml:"render_threads"`
}

type Config struct {
	Graphics   GraphicsSettings `toml:"graphics"`
	LogLevel   string           `toml:"log_level"`
	Validation bool             `toml:"validation"`
	AppName    string           `toml:"app_name"`
}

func DefaultGraphicsSettings() GraphicsSettings {
	return GraphicsSettings{
		Resolution:    [2]uint32{800, 600},
		FOV:           45,
		VSync:         true,
		RenderThreads: 0,
	}
}

func Default() *Config {
	return &Config{
		Graphics:   DefaultGraphicsSettings(),
		LogLevel:   string(core.DebugLevel),
		Validation: false,
		AppName:    "Dragonfire",
	}
}

// Load layers the defaults, the settings file in the config directory and
// DRAGONFIRE_* environment variables, in that order.
func Load(dirs *Directories) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dirs.Config, SettingsFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		core.LogDebug("no settings file at %s, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		if err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the settings file.
func (c *Config) Save(dirs *Directories) error {
	if err := os.MkdirAll(dirs.Config, 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dirs.Config, SettingsFile), data, 0o644)
}

func (c *Config) Validate() error {
	if c.Graphics.Resolution[0] == 0 || c.Graphics.Resolution[1] == 0 {
		return fmt.Errorf("invalid resolution %dx%d", c.Graphics.Resolution[0], c.Graphics.Resolution[1])
	}
	if c.Graphics.FOV <= 0 || c.Graphics.FOV >= 180 {
		return fmt.Errorf("invalid fov %v", c.Graphics.FOV)
	}
	if c.Graphics.RenderThreads < 0 {
		return fmt.Errorf("invalid render_threads %d", c.Graphics.RenderThreads)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(c *Config, lookup lookupFunc) error {
	if v, ok := lookup(EnvPrefix + "RESOLUTION"); ok {
		res, err := ParseResolution(v)
		if err != nil {
			return err
		}
		c.Graphics.Resolution = res
	}
	if v, ok := lookup(EnvPrefix + "FOV"); ok {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("invalid %sFOV: %w", EnvPrefix, err)
		}
		c.Graphics.FOV = float32(f)
	}
	if v, ok := lookup(EnvPrefix + "VSYNC"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sVSYNC: %w", EnvPrefix, err)
		}
		c.Graphics.VSync = b
	}
	if v, ok := lookup(EnvPrefix + "RENDER_THREADS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sRENDER_THREADS: %w", EnvPrefix, err)
		}
		c.Graphics.RenderThreads = n
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvPrefix + "VALIDATION"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sVALIDATION: %w", EnvPrefix, err)
		}
		c.Validation = b
	}
	return nil
}

// ParseResolution reads "WIDTHxHEIGHT".
func ParseResolution(s string) ([2]uint32, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return [2]uint32{}, fmt.Errorf("invalid resolution %q, expected WIDTHxHEIGHT", s)
	}
	width, err := strconv.ParseUint(w, 10, 32)
	if err != nil {
		return [2]uint32{}, fmt.Errorf("invalid resolution width %q: %w", w, err)
	}
	height, err := strconv.ParseUint(h, 10, 32)
	if err != nil {
		return [2]uint32{}, fmt.Errorf("invalid resolution height %q: %w", h, err)
	}
	return [2]uint32{uint32(width), uint32(height)}, nil
}
