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

package avd

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedInput is returned when a structured command line value
// cannot be parsed
var ErrMalformedInput = errors.New("malformed input")

// BuildCoordinate identifies one set of build artifacts
type BuildCoordinate struct {
	Branch      string `json:"branch"`
	BuildID     string `json:"build_id"`
	BuildTarget string `json:"build_target"`
}

func (b BuildCoordinate) String() string {
	return fmt.Sprintf("%s/%s (%s)", b.Branch, b.BuildID, b.BuildTarget)
}

// TargetPrefix returns the build target up to its first dash, eg
// aosp_cf_x86_phone for aosp_cf_x86_phone-userdebug
func (b BuildCoordinate) TargetPrefix() string {
	prefix, _, _ := strings.Cut(b.BuildTarget, "-")
	return prefix
}

// FetchReference is the branch/build form the host image understands
func (b BuildCoordinate) FetchReference() string {
	return b.Branch + "/" + b.BuildID
}

func (b BuildCoordinate) Validate() error {
	errs := []error{}
	if b.BuildID == "" {
		errs = append(errs, errors.New("build id is missing"))
	}
	if b.BuildTarget == "" {
		errs = append(errs, errors.New("build target is missing"))
	}
	return errors.Join(errs...)
}

// ParseHWPropertyArgs parses a key:value list such as
// "cpu:2,dpi:240,resolution:1280x800"
func ParseHWPropertyArgs(dictStr string) (map[string]string, error) {
	return ParseDictString(dictStr, ",", ":")
}

// ParseDictString splits dictStr into items and each item into a key and
// a value. Both must be non empty.
func ParseDictString(dictStr, itemSeparator, keyValueSeparator string) (map[string]string, error) {
	ret := map[string]string{}
	if dictStr == "" {
		return ret, nil
	}
	for _, item := range strings.Split(dictStr, itemSeparator) {
		parts := strings.Split(item, keyValueSeparator)
		if len(parts) == 1 {
			return nil, fmt.Errorf(
				"%w: expecting '%s' in '%s' to make a key-val pair", ErrMalformedInput, keyValueSeparator, item,
			)
		}
		if len(parts) != 2 {
			return nil, fmt.Errorf(
				"%w: too many '%s' in '%s', expecting form of 'a%sb'", ErrMalformedInput, keyValueSeparator, item, keyValueSeparator,
			)
		}
		key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			return nil, fmt.Errorf(
				"%w: missing key or value in %s, expecting form of 'a%sb'", ErrMalformedInput, item, keyValueSeparator,
			)
		}
		ret[key] = value
	}
	return ret, nil
}
