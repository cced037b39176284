//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binary    = "bin/payflow"
	coverFile = "coverage.out"
)

var Default = Build

// Build compiles cmd/server into bin/payflow.
func Build() error {
	return sh.RunV("go", "build", "-trimpath", "-o", binary, "./cmd/server")
}

type Test mg.Namespace

// Unit runs the package tests. Redis-backed store tests skip themselves.
func (Test) Unit() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Redis runs the Redis adapter tests against REDIS_ADDR (default
// localhost:6379).
func (Test) Redis() error {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	env := map[string]string{"PAYFLOW_TEST_REDIS_ADDR": addr}
	return sh.RunWithV(env, "go", "test", "-race", "-count=1", "./internal/adapter/outbound/redis/...")
}

// Cover writes a coverage profile and prints the per-function summary.
func (Test) Cover() error {
	if err := sh.RunV("go", "test", "-race", "-coverprofile="+coverFile, "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func="+coverFile)
}

// Check is the pre-merge gate: vet, lint, unit tests.
func Check() {
	mg.SerialDeps(Vet, Lint, Test.Unit)
}

func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Dev runs the server with console logs. Without database.host every
// store is in memory.
func Dev() error {
	mg.Deps(Build)
	fmt.Println("payflow listening with memory stores")
	env := map[string]string{
		"PAYFLOW_LOG_FORMAT":        "console",
		"PAYFLOW_LOG_LEVEL":         "debug",
		"PAYFLOW_IDEMPOTENCY_STORE": "memory",
	}
	return sh.RunWithV(env, "./"+binary)
}

func Clean() error {
	if err := sh.Rm("bin"); err != nil {
		return err
	}
	return sh.Rm(coverFile)
}
