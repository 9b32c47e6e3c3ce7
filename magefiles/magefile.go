//go:build mage

// Package main provides build targets for tombstone using Mage.
//
// Usage:
//
//	mage build      Compile tombstone and purger to bin/
//	mage test       Run unit tests
//	mage testE2E    Run end-to-end tests against local backends
//	mage lint       Run golangci-lint
//	mage clean      Remove build artifacts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo     = "go"
	binaryDir = "bin"
)

var commands = map[string]string{
	"tombstone": "./cmd/tombstone",
	"purger":    "./cmd/purger",
}

func ldflags() string {
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || version == "" {
		version = "dev"
	}
	return "-X main.version=" + version
}

// Build compiles the binaries to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	flags := ldflags()
	for name, dir := range commands {
		if err := sh.RunV(binGo, "build", "-ldflags", flags, "-o", filepath.Join(binaryDir, name), dir); err != nil {
			return err
		}
	}
	return nil
}

// Purger builds the stream purge Lambda for the provided.al2023 runtime.
func Purger() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	env := map[string]string{"GOOS": "linux", "GOARCH": "arm64", "CGO_ENABLED": "0"}
	return sh.RunWithV(env, binGo, "build", "-tags", "lambda.norpc", "-o", filepath.Join(binaryDir, "bootstrap"), "./cmd/purger")
}

// Test runs unit tests.
func Test() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// TestE2E runs the e2e suite. Backends are selected by environment:
// TOMBSTONE_E2E_DYNAMODB_ENDPOINT, TOMBSTONE_E2E_MONGO_URI and
// TOMBSTONE_E2E_POSTGRES_DSN.
func TestE2E() error {
	mg.Deps(Build)
	return sh.RunV(binGo, "test", "-tags", "e2e", "-v", "./e2e/...")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}
