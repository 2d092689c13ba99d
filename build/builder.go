// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type System string

const (
	CMake System = "cmake"
	Meson System = "meson"

	buildDir = "build"
)

func ParseSystem(s string) (System, error) {
	switch System(s) {
	case CMake, Meson:
		return System(s), nil
	}
	return "", fmt.Errorf("unknown build system %q", s)
}

type Builder interface {
	// Build compiles the tree checked out at dir and returns the path of the
	// produced executable.
	Build(ctx context.Context, dir string) (string, error)
}

var _ Builder = &ToolBuilder{}

type Config struct {
	System     System
	Executable string
	Jobs       int
	Fs         afero.Fs
	Log        *zap.Logger
	// Stdout and Stderr receive tool output. Both default to the process
	// streams.
	Stdout io.Writer
	Stderr io.Writer
	// GOOS overrides the target platform used to name the executable.
	GOOS string
}

// ToolBuilder drives an external build system.
type ToolBuilder struct {
	system     System
	executable string
	jobs       int
	fs         afero.Fs
	log        *zap.Logger
	stdout     io.Writer
	stderr     io.Writer
	goos       string
}

func New(config Config) (*ToolBuilder, error) {
	if _, err := ParseSystem(string(config.System)); err != nil {
		return nil, err
	}
	if config.Executable == "" {
		return nil, fmt.Errorf("no executable name configured")
	}

	b := &ToolBuilder{
		system:     config.System,
		executable: config.Executable,
		jobs:       config.Jobs,
		fs:         config.Fs,
		log:        config.Log,
		stdout:     config.Stdout,
		stderr:     config.Stderr,
		goos:       config.GOOS,
	}
	if b.jobs <= 0 {
		b.jobs = runtime.NumCPU()
	}
	if b.fs == nil {
		b.fs = afero.NewOsFs()
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if b.stdout == nil {
		b.stdout = os.Stdout
	}
	if b.stderr == nil {
		b.stderr = os.Stderr
	}
	if b.goos == "" {
		b.goos = runtime.GOOS
	}
	return b, nil
}

func (b *ToolBuilder) Build(ctx context.Context, dir string) (string, error) {
	for _, step := range b.Steps(dir) {
		b.log.Info("running build step", zap.Strings("command", step), zap.String("dir", dir))

		cmd := exec.CommandContext(ctx, step[0], step[1:]...)
		cmd.Dir = dir
		cmd.Stdout = b.stdout
		cmd.Stderr = b.stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("%s failed: %w", step[0], err)
		}
	}

	executable := b.ExecutablePath(dir)
	if _, err := b.fs.Stat(executable); err != nil {
		return "", fmt.Errorf("build produced no executable at %s: %w", executable, err)
	}
	return executable, nil
}

// Steps are the commands Build runs in order.
func (b *ToolBuilder) Steps(dir string) [][]string {
	out := filepath.Join(dir, buildDir)
	jobs := strconv.Itoa(b.jobs)

	switch b.system {
	case Meson:
		setup := []string{"meson", "setup", "--buildtype=release", out}
		if _, err := b.fs.Stat(filepath.Join(out, "meson-private")); err == nil {
			setup = append(setup, "--reconfigure")
		}
		return [][]string{
			setup,
			{"meson", "compile", "-C", out, "-j", jobs},
		}
	default:
		return [][]string{
			{"cmake", "-S", dir, "-B", out, "-DCMAKE_BUILD_TYPE=Release", "-DCMAKE_RUNTIME_OUTPUT_DIRECTORY=" + filepath.Join(dir, "bin")},
			{"cmake", "--build", out, "--config", "Release", "--parallel", jobs},
		}
	}
}

// ExecutablePath is where the executable lands for this build system and
// platform.
func (b *ToolBuilder) ExecutablePath(dir string) string {
	name := b.executable
	if b.goos == "windows" {
		name += ".exe"
	}
	if b.system == Meson {
		return filepath.Join(dir, buildDir, name)
	}
	return filepath.Join(dir, "bin", name)
}
