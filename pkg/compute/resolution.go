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

package compute

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedResolution = errors.New("malformed resolution")

// Resolution is a device display described as <x>x<y>x<depth>x<dpi>
type Resolution struct {
	X     int
	Y     int
	Depth int
	DPI   int
}

// ParseResolution parses strings like 720x1280x32x320. All four fields
// are required.
func ParseResolution(s string) (Resolution, error) {
	parts := strings.Split(s, "x")
	if len(parts) != 4 {
		return Resolution{}, fmt.Errorf("%w: %q does not have the form <x>x<y>x<depth>x<dpi>", ErrMalformedResolution, s)
	}
	values := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v <= 0 {
			return Resolution{}, fmt.Errorf("%w: %q is not a positive integer in %q", ErrMalformedResolution, p, s)
		}
		values[i] = v
	}
	return Resolution{X: values[0], Y: values[1], Depth: values[2], DPI: values[3]}, nil
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%dx%dx%d", r.X, r.Y, r.Depth, r.DPI)
}

// WithHWProperties overrides the display size and density with the
// "resolution" (<x>x<y>) and "dpi" hardware properties when present
func (r Resolution) WithHWProperties(props map[string]string) (Resolution, error) {
	if res, ok := props["resolution"]; ok {
		x, y, found := strings.Cut(res, "x")
		if !found {
			return r, fmt.Errorf("%w: hw property resolution %q is not <x>x<y>", ErrMalformedResolution, res)
		}
		xv, xerr := strconv.Atoi(x)
		yv, yerr := strconv.Atoi(y)
		if xerr != nil || yerr != nil || xv <= 0 || yv <= 0 {
			return r, fmt.Errorf("%w: hw property resolution %q is not <x>x<y>", ErrMalformedResolution, res)
		}
		r.X, r.Y = xv, yv
	}
	if dpi, ok := props["dpi"]; ok {
		v, err := strconv.Atoi(dpi)
		if err != nil || v <= 0 {
			return r, fmt.Errorf("%w: hw property dpi %q is not a positive integer", ErrMalformedResolution, dpi)
		}
		r.DPI = v
	}
	return r, nil
}
