/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spaghettifunk/dragonfire/engine"
	"github.com/spaghettifunk/dragonfire/engine/config"
	"github.com/spaghettifunk/dragonfire/engine/core"
	"github.com/spaghettifunk/dragonfire/testbed"
)

const logFile = "dragonfire.log"

func main() {
	dirs, err := config.NewDirectories()
	if err != nil {
		core.LogFatal("failed to resolve directories: %s", err)
	}
	if err := dirs.Ensure(); err != nil {
		core.LogFatal("failed to create directories: %s", err)
	}

	f, err := os.OpenFile(filepath.Join(dirs.Data, logFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		core.LogWarn("logging to stderr only: %s", err)
	} else {
		defer f.Close()
		core.SetLogOutput(io.MultiWriter(os.Stderr, f))
	}

	settings, err := config.Load(dirs)
	if err != nil {
		core.LogFatal("failed to load settings: %s", err)
	}
	core.SetLogLevel(core.LogLevel(settings.LogLevel))
	if _, err := os.Stat(filepath.Join(dirs.Config, config.SettingsFile)); os.IsNotExist(err) {
		if err := settings.Save(dirs); err != nil {
			core.LogWarn("failed to write default settings: %s", err)
		}
	}

	tb := testbed.NewTestGame(settings, dirs)
	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("failed to initialize: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		core.LogInfo("%s received, shutting down", sig)
		e.Quit()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal(runErr.Error())
	}
}
