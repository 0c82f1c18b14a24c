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

// Package exectest provides a process backend that records command lines
// instead of spawning them.
package exectest

import (
	"io"
	"strings"
	"sync"

	"sigs.k8s.io/cvdctl/pkg/exec"
)

// Fake implements exec.RunnerImplementation. Handler decides the outcome
// of every command; when nil all commands succeed with empty output.
type Fake struct {
	Handler func(step *exec.Step) (*exec.Result, error)
	Missing []string
	mu      sync.Mutex
	Steps   []exec.Step
}

// NewRunner returns a runner wired to a new fake and the fake itself
func NewRunner(handler func(step *exec.Step) (*exec.Result, error)) (*exec.Runner, *Fake) {
	f := &Fake{Handler: handler}
	return exec.NewRunnerWithImplementation(f), f
}

func (f *Fake) Execute(_ *exec.Options, step *exec.Step) (*exec.Result, error) {
	f.mu.Lock()
	f.Steps = append(f.Steps, *step)
	f.mu.Unlock()
	if f.Handler == nil {
		return &exec.Result{}, nil
	}
	return f.Handler(step)
}

func (f *Fake) Start(opts *exec.Options, step *exec.Step) (exec.Process, error) {
	res, err := f.Execute(opts, step)
	if err != nil {
		return nil, err
	}
	return &process{cmdline: step.Command, result: res}, nil
}

func (f *Fake) Available(binaries ...string) bool {
	for _, b := range binaries {
		for _, m := range f.Missing {
			if b == m {
				return false
			}
		}
	}
	return true
}

// Commands returns the recorded command lines in order
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := []string{}
	for _, s := range f.Steps {
		ret = append(ret, s.Command)
	}
	return ret
}

type process struct {
	cmdline string
	result  *exec.Result
}

func (p *process) Output() io.Reader {
	return strings.NewReader(p.result.Combined())
}

func (p *process) Wait() error {
	if p.result.ExitCode != 0 {
		return &exec.ProcessError{
			Command:  p.cmdline,
			ExitCode: p.result.ExitCode,
			Output:   p.result.Combined(),
		}
	}
	return nil
}
