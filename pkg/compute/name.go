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
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"sigs.k8s.io/cvdctl/pkg/avd"
)

// maxInstanceNameLength is the longest name compute engine accepts
const maxInstanceNameLength = 63

var invalidNameChars = regexp.MustCompile(`[^a-z0-9-]`)

// GenerateInstanceName returns a unique instance name for build:
// ins-<uuid8>-<buildID>-<target>
func GenerateInstanceName(build avd.BuildCoordinate) string {
	name := fmt.Sprintf("ins-%s-%s-%s", uuid.NewString()[:8], build.BuildID, build.BuildTarget)
	name = strings.ReplaceAll(strings.ToLower(name), "_", "-")
	name = invalidNameChars.ReplaceAllString(name, "-")
	if len(name) > maxInstanceNameLength {
		name = name[:maxInstanceNameLength]
	}
	return strings.TrimRight(name, "-")
}
