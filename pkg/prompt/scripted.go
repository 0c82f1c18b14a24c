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

package prompt

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrNoAnswer is returned by Scripted when it runs out of answers
var ErrNoAnswer = errors.New("no scripted answer left")

// Scripted replays a fixed list of answers. Choose answers are parsed as
// the option number, like on a terminal.
type Scripted struct {
	Answers   []string
	Questions []string
}

func NewScripted(answers ...string) *Scripted {
	return &Scripted{Answers: answers}
}

func (s *Scripted) next(question string) (string, error) {
	s.Questions = append(s.Questions, question)
	if len(s.Answers) == 0 {
		return "", fmt.Errorf("%w for %q", ErrNoAnswer, question)
	}
	a := s.Answers[0]
	s.Answers = s.Answers[1:]
	return a, nil
}

func (s *Scripted) Ask(question string) (string, error) {
	return s.next(question)
}

func (s *Scripted) Confirm(question string) (bool, error) {
	a, err := s.next(question)
	if err != nil {
		return false, err
	}
	return isYes(a), nil
}

func (s *Scripted) Choose(question string, options []string) (string, error) {
	a, err := s.next(question)
	if err != nil {
		return "", err
	}
	choice, err := strconv.Atoi(a)
	if err != nil {
		return "", fmt.Errorf("scripted choice %q is not a number: %w", a, err)
	}
	if choice == 0 {
		return "", ErrUserExit
	}
	if choice < 0 || choice > len(options) {
		return "", fmt.Errorf("scripted choice %d out of range", choice)
	}
	return options[choice-1], nil
}
