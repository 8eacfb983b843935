// Package engine runs the external verification engine.
package engine

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
)

// DefaultVerifytaPath is where an UPPAAL installation on macOS keeps verifyta.
const DefaultVerifytaPath = "/Applications/UPPAAL.app/Contents/Resources/uppaal/bin/verifyta"

// Output of one successful engine invocation.
type Output struct {
	Stdout  string
	Stderr  string
	Elapsed time.Duration
}

// Engine verifies one property file against one model document.
// A completed analysis returns its output even if the property does not hold; an error means the engine itself
// failed and the campaign can't continue.
type Engine interface {
	Verify(ctx context.Context, modelPath string, propertyPath string) (*Output, error)
}

// Verifyta invokes an UPPAAL verifyta executable as `Path model property Args...`.
type Verifyta struct {
	Path string
	Args []string
}

func (v *Verifyta) Verify(ctx context.Context, modelPath string, propertyPath string) (*Output, error) {
	args := append([]string{modelPath, propertyPath}, v.Args...)
	cmd := exec.CommandContext(ctx, v.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		return nil, errors.WithStack(ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, errors.Wrapf(err, "failed to run %s", v.Path)
		}
		return nil, errors.WithStack(&campaignerrors.ErrEngineFailed{
			ModelPath:    modelPath,
			PropertyPath: propertyPath,
			ExitCode:     exitErr.ExitCode(),
			Stderr:       stderr.String(),
		})
	}
	return &Output{Stdout: stdout.String(), Stderr: stderr.String(), Elapsed: elapsed}, nil
}

// CheckExecutable returns an error unless path names an existing regular file.
func CheckExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WithStack(&campaignerrors.ErrNotFound{
				Type:    "verifyta executable",
				Value:   path,
				Message: "please provide a valid path with --verifyta PATH",
			})
		}
		return errors.WithStack(err)
	}
	if info.IsDir() {
		return errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: "verifyta", Value: path, Message: "expected an executable, found a directory"})
	}
	return nil
}
