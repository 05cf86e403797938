package config

import (
	"os"
	"path/filepath"

	"github.com/spaghettifunk/dragonfire/engine/core"
)

// Directories are the per-user locations the engine reads from and writes to.
type Directories struct {
	Config string
	Cache  string
	Data   string
	Asset  string
}

const (
	defaultOrganization = "dragonfire"
	defaultApplication  = "test"
)

// NewDirectories resolves the directories from ORGANIZATION and APP_NAME.
// The asset directory sits next to the executable.
func NewDirectories() (*Directories, error) {
	org := envOr("ORGANIZATION", defaultOrganization)
	app := envOr("APP_NAME", defaultApplication)

	configRoot, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	dataRoot, err := userDataDir()
	if err != nil {
		return nil, err
	}

	return &Directories{
		Config: filepath.Join(configRoot, org, app),
		Cache:  filepath.Join(cacheRoot, org, app),
		Data:   filepath.Join(dataRoot, org, app),
		Asset:  assetDir(),
	}, nil
}

// Ensure creates every directory except the asset one, which ships with
// the binary.
func (d *Directories) Ensure() error {
	for _, dir := range []string{d.Config, d.Cache, d.Data} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func assetDir() string {
	exe, err := os.Executable()
	if err == nil {
		return filepath.Join(filepath.Dir(exe), "asset")
	}
	core.LogWarn("could not resolve executable path: %s", err)
	wd, err := os.Getwd()
	if err != nil {
		return "asset"
	}
	return filepath.Join(wd, "asset")
}

func userDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share"), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
