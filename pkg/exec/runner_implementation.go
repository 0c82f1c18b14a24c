/*
Copyright 2022 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package exec

import (
	"errors"
	"fmt"
	"io"
	"os"
	gexec "os/exec"

	"sigs.k8s.io/release-utils/command"
)

type RunnerImplementation interface {
	Execute(*Options, *Step) (*Result, error)
	Start(*Options, *Step) (Process, error)
	Available(...string) bool
}

type defaultRunnerImplementation struct{}

func (ri *defaultRunnerImplementation) Execute(opts *Options, step *Step) (*Result, error) {
	cmd := command.NewWithWorkDir(opts.CWD, opts.Shell, "-c", step.Command)
	if len(step.Environment) > 0 {
		cmd = cmd.Env(step.EnvList()...)
	}

	var status *command.Status
	var err error
	if opts.Verbose {
		status, err = cmd.Run()
	} else {
		status, err = cmd.RunSilent()
	}
	if err != nil {
		return nil, fmt.Errorf("running command: %w", err)
	}

	return &Result{
		ExitCode: status.ExitCode(),
		Output:   status.Output(),
		Stderr:   status.Error(),
	}, nil
}

// Start uses os/exec directly: release-utils/command only offers
// blocking execution.
func (ri *defaultRunnerImplementation) Start(opts *Options, step *Step) (Process, error) {
	cmd := gexec.Command(opts.Shell, "-c", step.Command)
	cmd.Dir = opts.CWD
	cmd.Stdin = nil
	if len(step.Environment) > 0 {
		cmd.Env = append(os.Environ(), step.EnvList()...)
	}

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating output pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning process: %w", err)
	}
	return &osProcess{cmd: cmd, cmdline: step.Command, output: out}, nil
}

func (ri *defaultRunnerImplementation) Available(binaries ...string) bool {
	return command.Available(binaries...)
}

type osProcess struct {
	cmd     *gexec.Cmd
	cmdline string
	output  io.ReadCloser
}

func (p *osProcess) Output() io.Reader {
	return p.output
}

func (p *osProcess) Wait() error {
	// Drain whatever the caller did not read so Wait does not block
	// on a full pipe.
	_, _ = io.Copy(io.Discard, p.output)

	err := p.cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *gexec.ExitError
	if errors.As(err, &exitErr) {
		return &ProcessError{Command: p.cmdline, ExitCode: exitErr.ExitCode()}
	}
	return fmt.Errorf("waiting for %q: %w", p.cmdline, err)
}
