//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Tidies the module and builds the anima-rc binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.Tidy)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/anima-rc", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs go mod tidy and go vet.
func (Build) Tidy() error {
	if _, err := executeCmd("go", withArgs("mod", "tidy")); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("vet", "./...")); err != nil {
		return err
	}
	return nil
}
