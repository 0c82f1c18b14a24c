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

package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFail    = "FAIL"
)

// Deleted resource types
const (
	TypeInstance = "instance"
)

type Entry struct {
	Type string `json:"type" yaml:"type"`
	Name string `json:"name" yaml:"name"`
}

// Report collects the outcome of a command touching several resources.
// A failure on one resource does not stop the others, errors pile up
// here instead.
type Report struct {
	Command string
	Deleted []Entry
	Errors  []string
	errs    *multierror.Error
}

func New(command string) *Report {
	return &Report{
		Command: command,
		Deleted: []Entry{},
		Errors:  []string{},
	}
}

func (r *Report) AddDeleted(resourceType, name string) {
	r.Deleted = append(r.Deleted, Entry{Type: resourceType, Name: name})
}

// AddError records a failure message
func (r *Report) AddError(msg string) {
	r.AddErr(errors.New(msg))
}

// AddErr records err, keeping it for errors.Is checks on Err()
func (r *Report) AddErr(err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, err.Error())
	r.errs = multierror.Append(r.errs, err)
}

// Status is FAIL as soon as one error was recorded
func (r *Report) Status() string {
	if len(r.Errors) > 0 {
		return StatusFail
	}
	return StatusSuccess
}

// Err returns all the recorded errors as one, or nil
func (r *Report) Err() error {
	return r.errs.ErrorOrNil()
}

type document struct {
	Command string   `json:"command" yaml:"command"`
	Status  string   `json:"status" yaml:"status"`
	Deleted []Entry  `json:"deleted" yaml:"deleted"`
	Errors  []string `json:"errors" yaml:"errors"`
}

func (r *Report) document() document {
	return document{
		Command: r.Command,
		Status:  r.Status(),
		Deleted: r.Deleted,
		Errors:  r.Errors,
	}
}

func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.document())
}

func (r *Report) MarshalYAML() (any, error) {
	return r.document(), nil
}

// WriteFile dumps the report to path, as YAML when the extension says so
// and as JSON otherwise
func (r *Report) WriteFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
	default:
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, os.FileMode(0o644)); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
