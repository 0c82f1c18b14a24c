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

package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"sigs.k8s.io/release-utils/helpers"
)

var ErrNoBuilds = errors.New("no numeric build ids found")

// NewDirectory returns a driver for a local mirror laid out like the
// bucket: file:///path/<target>/<buildID>/<artifact>
func NewDirectory(specURL string) (*Directory, error) {
	u, err := url.Parse(specURL)
	if err != nil {
		return nil, fmt.Errorf("parsing SpecURL %s: %w", specURL, err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("%s is not a file URL", specURL)
	}
	if u.Path == "" {
		return nil, fmt.Errorf("directory repository %s has no path defined", specURL)
	}
	return &Directory{
		Path: u.Path,
	}, nil
}

type Directory struct {
	Path string
}

func (d *Directory) DownloadArtifact(_ context.Context, target, buildID, name string, w io.Writer) error {
	src := filepath.Join(d.Path, target, buildID, name)
	if !helpers.Exists(src) {
		return fmt.Errorf("artifact %s not found in %s", name, filepath.Dir(src))
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer f.Close()

	b, err := io.Copy(w, f)
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	logrus.WithField("driver", "directory").Debugf("Copied %d bytes from %s", b, src)
	return nil
}

func (d *Directory) LatestBuildID(_ context.Context, target string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(d.Path, target))
	if err != nil {
		return "", fmt.Errorf("listing builds of %s: %w", target, err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return latestBuildID(names)
}

// latestBuildID returns the highest numeric id. Non numeric entries
// (release tags, pending builds) are ignored.
func latestBuildID(names []string) (string, error) {
	var (
		latest   string
		latestID uint64
	)
	for _, n := range names {
		id, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			continue
		}
		if latest == "" || id > latestID {
			latest, latestID = n, id
		}
	}
	if latest == "" {
		return "", ErrNoBuilds
	}
	return latest, nil
}
