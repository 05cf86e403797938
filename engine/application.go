package engine

import (
	"github.com/spaghettifunk/dragonfire/engine/config"
)

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// The application name used in windowing, if applicable.
	Name string
	// Settings loaded from the config directory and the environment.
	Settings *config.Config
	// Per-user directories: settings, pipeline cache, logs and assets.
	Directories *config.Directories
}
