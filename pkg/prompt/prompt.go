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

// Package prompt abstracts the interactive questions cvdctl asks while
// provisioning so the pipeline can run unattended in automation and tests.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ErrUserExit is returned when the user chooses to leave the program.
// It is not a failure: the CLI exits cleanly when it sees it.
var ErrUserExit = errors.New("user requested exit")

// ErrNotInteractive is returned by the terminal prompter when there is no
// terminal to ask on.
var ErrNotInteractive = errors.New("input is not a terminal, cannot prompt")

type Prompter interface {
	// Confirm asks a yes/no question. Only "y" or "yes" count as yes.
	Confirm(question string) (bool, error)
	// Ask returns the trimmed line the user typed
	Ask(question string) (string, error)
	// Choose asks the user to pick one of options. Picking 0 returns ErrUserExit.
	Choose(question string, options []string) (string, error)
}

// Terminal prompts on a pair of streams, normally stdin and stdout
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal returns a prompter bound to the process standard streams.
// It fails when stdin is not a terminal unless force is set.
func NewTerminal(force bool) (*Terminal, error) {
	if !force && !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, ErrNotInteractive
	}
	return NewTerminalWithStreams(os.Stdin, os.Stdout), nil
}

func NewTerminalWithStreams(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) Ask(question string) (string, error) {
	fmt.Fprint(t.out, question)
	return t.readLine()
}

func (t *Terminal) Confirm(question string) (bool, error) {
	answer, err := t.Ask(question)
	if err != nil {
		return false, err
	}
	return isYes(answer), nil
}

func (t *Terminal) Choose(question string, options []string) (string, error) {
	if question != "" {
		fmt.Fprintln(t.out, question)
	}
	fmt.Fprintln(t.out, "[0] to exit.")
	for i, o := range options {
		fmt.Fprintf(t.out, "[%d] %s\n", i+1, o)
	}
	for {
		answer, err := t.Ask(fmt.Sprintf("Enter your choice[0-%d]: ", len(options)))
		if err != nil {
			return "", err
		}
		choice, err := strconv.Atoi(answer)
		if err != nil {
			fmt.Fprintf(t.out, "'%s' is not a valid integer.\n", answer)
			continue
		}
		if choice == 0 {
			return "", ErrUserExit
		}
		if choice < 0 || choice > len(options) {
			fmt.Fprintf(t.out, "please choose between 0 and %d\n", len(options))
			continue
		}
		return options[choice-1], nil
	}
}

func isYes(answer string) bool {
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}
