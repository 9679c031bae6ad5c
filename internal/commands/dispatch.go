package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

// Dispatcher runs rendered commands through a shell.
type Dispatcher struct {
	Shell  string
	Region string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Env is the child environment. nil means the current process environment.
	Env []string

	logger *zap.Logger
}

// NewDispatcher creates a dispatcher wired to the process's standard streams.
func NewDispatcher(region string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		Shell:  "/bin/sh",
		Region: region,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		logger: logger,
	}
}

// Echo writes the command to Stderr in gray.
func (d *Dispatcher) Echo(command string) {
	color.New(color.FgHiBlack).Fprintf(d.Stderr, "> %s\n", command)
}

// Run echoes and executes command, streaming its output. AWS_REGION is added to the child
// environment when it is not already set.
func (d *Dispatcher) Run(ctx context.Context, command string) error {
	d.Echo(command)

	cmd := exec.CommandContext(ctx, d.Shell, "-c", command)
	cmd.Stdin = d.Stdin
	cmd.Stdout = d.Stdout
	cmd.Stderr = d.Stderr
	cmd.Env = d.environ()

	d.logger.Debug("Running command", zap.String("shell", d.Shell), zap.String("command", command))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("error when running %q: %w", command, err)
	}
	return nil
}

func (d *Dispatcher) environ() []string {
	env := d.Env
	if env == nil {
		env = os.Environ()
	}
	for _, kv := range env {
		if strings.HasPrefix(kv, "AWS_REGION=") {
			return env
		}
	}
	if d.Region == "" {
		return env
	}
	out := make([]string, 0, len(env)+1)
	out = append(out, env...)
	return append(out, "AWS_REGION="+d.Region)
}
