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

package instance

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	// LocalInstancePrefix names local cuttlefish devices
	LocalInstancePrefix = "local-instance"
	// LocalGoldfishPrefix names local emulator devices
	LocalGoldfishPrefix = "local-goldfish-instance"

	cvdAdbPortBase          = 6520
	goldfishConsolePortBase = 5554
	vncPortBase             = 6444

	creationTimestampFile = "creation_timestamp.txt"
)

var (
	ErrStopCvdNotFound = errors.New("could not find stop_cvd")
	ErrEmulatorKill    = errors.New("cannot kill emulator")
	ErrNoBackend       = errors.New("no compute backend configured")

	localInstanceRe = regexp.MustCompile(`^` + LocalInstancePrefix + `(?:-(\d+))?$`)
	localGoldfishRe = regexp.MustCompile(`^` + LocalGoldfishPrefix + `(?:-(\d+))?$`)
)

// Handle locates a device instance running on this machine
type Handle struct {
	Name         string
	InstanceDir  string
	AdbPort      int
	DeviceSerial string
	VncPort      int
}

// ParseLocalInstanceName returns the id in local-instance[-N], 1 when
// the suffix is missing
func ParseLocalInstanceName(name string) (int, bool) {
	return parseID(localInstanceRe, name)
}

// ParseLocalGoldfishName returns the id in local-goldfish-instance[-N]
func ParseLocalGoldfishName(name string) (int, bool) {
	return parseID(localGoldfishRe, name)
}

func parseID(re *regexp.Regexp, name string) (int, bool) {
	m := re.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	if m[1] == "" {
		return 1, true
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// LocalInstance returns the handle of local cuttlefish instance id
func LocalInstance(root, name string, id int) Handle {
	return Handle{
		Name:         name,
		InstanceDir:  filepath.Join(root, fmt.Sprintf("%s-%d", LocalInstancePrefix, id)),
		AdbPort:      cvdAdbPortBase + id - 1,
		DeviceSerial: fmt.Sprintf("127.0.0.1:%d", cvdAdbPortBase+id-1),
		VncPort:      vncPortBase + id - 1,
	}
}

// LocalGoldfishInstance returns the handle of emulator id. Each emulator
// takes a console port and the adb port right after it.
func LocalGoldfishInstance(root, name string, id int) Handle {
	console := goldfishConsolePortBase + 2*(id-1)
	return Handle{
		Name:         name,
		InstanceDir:  filepath.Join(root, fmt.Sprintf("%s-%d", LocalGoldfishPrefix, id)),
		AdbPort:      console + 1,
		DeviceSerial: fmt.Sprintf("emulator-%d", console),
	}
}

// vncViewerPattern matches the command line of the ssvnc viewer
// attached to port. It is written as an escaped regular expression so
// it never matches the shell running pgrep or pkill with it.
func vncViewerPattern(port int) string {
	return strings.ReplaceAll(fmt.Sprintf("vnc://127.0.0.1:%d", port), ".", `\.`)
}
