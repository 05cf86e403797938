//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const (
	shaderDir = "asset/shaders"
	demoBin   = "dragonfire"
)

// Shaders compiles every GLSL stage under asset/shaders to SPIR-V. Set
// RELEASE=1 to optimize.
func (Build) Shaders() error {
	return buildShaders()
}

// Demo builds the testbed binary next to the asset directory.
func (Build) Demo() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", demoBin, "."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}

func buildShaders() error {
	glslc, err := findGlslc()
	if err != nil {
		return err
	}
	sources, err := shaderSources(shaderDir)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shaders found in %s", shaderDir)
	}
	for _, src := range sources {
		args := []string{src, "-o", src + ".spv"}
		if os.Getenv("RELEASE") != "" {
			args = append([]string{"-O"}, args...)
		}
		if _, err := executeCmd(glslc, withArgs(args...), withStream()); err != nil {
			return err
		}
	}
	return nil
}

func shaderSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".vert", ".frag":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// findGlslc prefers the Vulkan SDK, then PATH.
func findGlslc() (string, error) {
	if sdk := os.Getenv("VULKAN_SDK"); sdk != "" {
		candidate := filepath.Join(sdk, "bin", "glslc")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	path, err := lookPath("glslc")
	if err != nil {
		return "", fmt.Errorf("glslc not found in VULKAN_SDK/bin or PATH: %w", err)
	}
	return path, nil
}
