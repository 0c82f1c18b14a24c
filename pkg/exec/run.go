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
	"io"
	"strings"
)

// Step is a single shell command line the runner executes
type Step struct {
	Command     string
	Environment map[string]string
}

// EnvList returns the step environment as KEY=value pairs
func (s *Step) EnvList() []string {
	env := []string{}
	for k, v := range s.Environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// Result captures the outcome of a finished command
type Result struct {
	ExitCode int
	Output   string
	Stderr   string
}

func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Combined returns stdout and stderr joined, trimmed of trailing newlines
func (r *Result) Combined() string {
	parts := []string{}
	for _, s := range []string{r.Output, r.Stderr} {
		if s = strings.TrimRight(s, "\n"); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// Process is a handle to a command that is still running
type Process interface {
	// Output is the merged stdout and stderr stream of the process
	Output() io.Reader
	// Wait blocks until the process exits. Non zero exits return a *ProcessError.
	Wait() error
}

// ProcessError is returned when an external command exits with a non
// zero status
type ProcessError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ProcessError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q exited with status %d: %s", e.Command, e.ExitCode, e.Output)
}
