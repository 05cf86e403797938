//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Demo builds the shaders and the testbed, then runs it.
func (Run) Demo() error {
	mg.Deps(Build.Demo)
	fmt.Println("Run demo...")
	if _, err := executeCmd("./"+demoBin, withStream()); err != nil {
		return err
	}
	return nil
}

// Test runs the unit tests. None of them needs a gpu.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}
