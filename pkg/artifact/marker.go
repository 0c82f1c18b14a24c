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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/release-utils/hash"

	"sigs.k8s.io/cvdctl/pkg/avd"
	"sigs.k8s.io/cvdctl/pkg/image"
)

// MarkerFile is written into an extraction directory once every
// processing step finished
const MarkerFile = ".cvdctl-complete"

var ErrIncomplete = errors.New("extraction directory is incomplete")

type Marker struct {
	Build     avd.BuildCoordinate   `json:"build"`
	Completed time.Time             `json:"completed"`
	Files     map[string]FileRecord `json:"files"`
}

type FileRecord struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// WriteMarker hashes the required image files of dir and records them
// with the build in the completion marker
func WriteMarker(dir string, build avd.BuildCoordinate, now time.Time) error {
	marker := Marker{
		Build:     build,
		Completed: now.UTC(),
		Files:     map[string]FileRecord{},
	}

	var mtx sync.Mutex
	var wg errgroup.Group
	for _, name := range image.RequiredImageFiles {
		wg.Go(func() error {
			path := filepath.Join(dir, name)
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("checking %s: %w", name, err)
			}
			sha, err := hash.SHA256ForFile(path)
			if err != nil {
				return fmt.Errorf("hashing %s: %w", name, err)
			}
			mtx.Lock()
			marker.Files[name] = FileRecord{SHA256: sha, Size: info.Size()}
			mtx.Unlock()
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return fmt.Errorf("hashing image files: %w", err)
	}

	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling completion marker: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MarkerFile), data, os.FileMode(0o644)); err != nil {
		return fmt.Errorf("writing completion marker: %w", err)
	}
	return nil
}

// ReadMarker parses the completion marker of dir
func ReadMarker(dir string) (*Marker, error) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	if err != nil {
		return nil, fmt.Errorf("%w: reading marker: %w", ErrIncomplete, err)
	}
	marker := &Marker{}
	if err := json.Unmarshal(data, marker); err != nil {
		return nil, fmt.Errorf("%w: parsing marker: %w", ErrIncomplete, err)
	}
	return marker, nil
}

// VerifyMarker checks that dir holds a finished extraction of build: the
// marker must name the same build and every recorded file must still be
// there with its recorded size, next to the host package launcher.
func VerifyMarker(dir string, build avd.BuildCoordinate) error {
	marker, err := ReadMarker(dir)
	if err != nil {
		return err
	}
	if err := checkLaunchCvd(dir); err != nil {
		return fmt.Errorf("%w: %w", ErrIncomplete, err)
	}
	if marker.Build.BuildID != build.BuildID || marker.Build.BuildTarget != build.BuildTarget {
		return fmt.Errorf("%w: marker belongs to build %s", ErrIncomplete, marker.Build)
	}
	for _, name := range image.RequiredImageFiles {
		rec, ok := marker.Files[name]
		if !ok {
			return fmt.Errorf("%w: %s not recorded", ErrIncomplete, name)
		}
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIncomplete, err)
		}
		if info.Size() != rec.Size {
			return fmt.Errorf("%w: %s changed size", ErrIncomplete, name)
		}
	}
	return nil
}
