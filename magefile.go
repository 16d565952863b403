//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

func Build() error {
	mg.Deps(BuildEventBuilder)
	fmt.Println("Compilation finished")
	return nil
}

// BuildEventBuilder builds bin/evbuilder. HDF5 and DuckDB need cgo, the
// HDF5 location is taken from CGO_CFLAGS and CGO_LDFLAGS.
func BuildEventBuilder() error {
	fmt.Println("Building evbuilder executable...")
	return goCommand("build", "-o", "./bin/evbuilder", "./evbuilder")
}

// Test runs the unit tests of every package.
func Test() error {
	fmt.Println("Running tests...")
	return goCommand("test", "./...")
}

func goCommand(args ...string) error {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
