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
	"fmt"

	"github.com/sirupsen/logrus"
)

const defaultShell = "/bin/sh"

func NewRunner() *Runner {
	return NewRunnerWithImplementation(&defaultRunnerImplementation{})
}

// NewRunnerWithImplementation returns a runner backed by impl. Tests use
// it to plug in a fake process backend.
func NewRunnerWithImplementation(impl RunnerImplementation) *Runner {
	return &Runner{
		Options: Options{
			Shell:  defaultShell,
			Logger: logrus.StandardLogger(),
		},
		implementation: impl,
	}
}

type Runner struct {
	Options        Options
	implementation RunnerImplementation
}

type Options struct {
	Verbose bool
	CWD     string
	Shell   string
	Logger  *logrus.Logger
}

// Run executes a shell command line and waits for it to finish. A non
// zero exit code is not an error, callers inspect the result.
func (r *Runner) Run(cmdline string) (*Result, error) {
	return r.RunStep(&Step{Command: cmdline})
}

// RunStep executes a step
func (r *Runner) RunStep(step *Step) (*Result, error) {
	r.Options.Logger.Debugf("Executing command: %s", step.Command)
	res, err := r.implementation.Execute(&r.Options, step)
	if err != nil {
		return nil, fmt.Errorf("executing %q: %w", step.Command, err)
	}
	return res, nil
}

// RunSuccess runs the command line and turns a non zero exit into
// a *ProcessError
func (r *Runner) RunSuccess(cmdline string) (*Result, error) {
	return r.RunStepSuccess(&Step{Command: cmdline})
}

func (r *Runner) RunStepSuccess(step *Step) (*Result, error) {
	res, err := r.RunStep(step)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return res, &ProcessError{
			Command:  step.Command,
			ExitCode: res.ExitCode,
			Output:   res.Combined(),
		}
	}
	return res, nil
}

// Start spawns the command line without waiting for it. Standard error
// is merged into the output stream of the returned process.
func (r *Runner) Start(cmdline string) (Process, error) {
	r.Options.Logger.Debugf("Starting command: %s", cmdline)
	p, err := r.implementation.Start(&r.Options, &Step{Command: cmdline})
	if err != nil {
		return nil, fmt.Errorf("starting %q: %w", cmdline, err)
	}
	return p, nil
}

// Available returns true if all the binaries are found in $PATH
func (r *Runner) Available(binaries ...string) bool {
	return r.implementation.Available(binaries...)
}
