//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the test suite with the race detector.
func (Run) Tests() error {
	fmt.Println("Run tests...")
	if _, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withEnv("CGO_ENABLED=1"), withStream()); err != nil {
		return err
	}
	return nil
}

// Loads every preload group of a manifest against the given settings file.
func (Run) Preload(settings, manifest string) error {
	mg.Deps(Build.Binary)
	if _, err := executeCmd("bin/anima-rc", withArgs("--settings", settings, "preload", manifest), withStream()); err != nil {
		return err
	}
	return nil
}
