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

package artifact

import (
	"errors"
	"fmt"
	"path/filepath"

	"sigs.k8s.io/cvdctl/pkg/prompt"
)

var ErrNoLocalImage = errors.New("no local image found")

// VerifyLocalImageArtifactsExist looks for an image zip in dir. When
// several are found the user picks one.
func VerifyLocalImageArtifactsExist(dir string, p prompt.Prompter) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*img*.zip"))
	if err != nil {
		return "", fmt.Errorf("searching image zip: %w", err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no image zip (*img*.zip) in %s", ErrNoLocalImage, dir)
	case 1:
		return matches[0], nil
	}
	choice, err := p.Choose("Multiple image zips found, please choose one:", matches)
	if err != nil {
		return "", err
	}
	return choice, nil
}
