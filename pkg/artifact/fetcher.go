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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"sigs.k8s.io/release-utils/helpers"

	"sigs.k8s.io/cvdctl/pkg/avd"
)

const (
	// HostPackage holds the host side binaries of a cuttlefish build
	HostPackage = "cvd-host_package.tar.gz"

	ImageArtifactsDir = "acloud_image_artifacts"

	// LocalBuildTarget is recorded for images that were not downloaded
	LocalBuildTarget = "local"

	// LaunchCvd is the launcher the host package must provide
	LaunchCvd = "bin/launch_cvd"
)

var ErrHostPackageMissing = errors.New("host package is missing launch_cvd")

type BootImageUnpacker interface {
	Unpack(dir string) error
}

type PermissionFixer interface {
	FixACL(dir string) error
}

// ArtifactSet returns the artifacts needed to boot build, in download order
func ArtifactSet(build avd.BuildCoordinate) []string {
	return []string{
		HostPackage,
		fmt.Sprintf("%s-img-%s.zip", build.TargetPrefix(), build.BuildID),
	}
}

// ExtractionDir returns where the artifacts of buildID are extracted
func ExtractionDir(downloadDir, buildID string) string {
	return filepath.Join(downloadDir, ImageArtifactsDir, buildID)
}

type Fetcher struct {
	Repository Repository
	Unpacker   BootImageUnpacker
	Fixer      PermissionFixer
	now        func() time.Time
}

func NewFetcher(repo Repository, unpacker BootImageUnpacker, fixer PermissionFixer) *Fetcher {
	return &Fetcher{
		Repository: repo,
		Unpacker:   unpacker,
		Fixer:      fixer,
		now:        time.Now,
	}
}

// DownloadAndProcess downloads the artifacts of build, extracts them
// under downloadDir, unpacks the boot image and fixes the image file
// permissions. It returns the extraction directory. A directory that
// was completely processed before is returned as is.
func (f *Fetcher) DownloadAndProcess(ctx context.Context, build avd.BuildCoordinate, downloadDir string) (string, error) {
	if err := build.Validate(); err != nil {
		return "", fmt.Errorf("invalid build: %w", err)
	}
	extractDir := ExtractionDir(downloadDir, build.BuildID)
	done, err := prepareExtractionDir(extractDir, build)
	if err != nil {
		return "", err
	}
	if done {
		return extractDir, nil
	}

	for _, name := range ArtifactSet(build) {
		if err := f.fetch(ctx, build, name, extractDir); err != nil {
			return "", err
		}
	}
	if err := f.process(extractDir, build); err != nil {
		return "", err
	}
	return extractDir, nil
}

// ProcessLocalImage extracts a local image zip and host package under
// downloadDir and processes them like downloaded artifacts
func (f *Fetcher) ProcessLocalImage(imageZip, hostPackage, downloadDir string) (string, error) {
	build := LocalBuild(imageZip)
	extractDir := ExtractionDir(downloadDir, build.BuildID)
	done, err := prepareExtractionDir(extractDir, build)
	if err != nil {
		return "", err
	}
	if done {
		return extractDir, nil
	}

	for _, archive := range []string{hostPackage, imageZip} {
		if err := Decompress(archive, extractDir); err != nil {
			return "", fmt.Errorf("extracting %s: %w", filepath.Base(archive), err)
		}
	}
	if err := f.process(extractDir, build); err != nil {
		return "", err
	}
	return extractDir, nil
}

// LocalBuild identifies the build held in a local image zip
func LocalBuild(imageZip string) avd.BuildCoordinate {
	return avd.BuildCoordinate{
		BuildID:     "local-" + strings.TrimSuffix(filepath.Base(imageZip), ".zip"),
		BuildTarget: LocalBuildTarget,
	}
}

// prepareExtractionDir returns true when dir already holds a complete
// extraction of build. Otherwise it leaves an empty dir behind.
func prepareExtractionDir(dir string, build avd.BuildCoordinate) (bool, error) {
	log := logrus.WithField("build", build.BuildID)
	if helpers.Exists(dir) {
		err := VerifyMarker(dir, build)
		if err == nil {
			log.Infof("Artifacts already processed in %s", dir)
			return true, nil
		}
		log.Warnf("Discarding partial extraction in %s: %v", dir, err)
		if err := os.RemoveAll(dir); err != nil {
			return false, fmt.Errorf("removing partial extraction: %w", err)
		}
	}

	if err := os.MkdirAll(dir, os.FileMode(0o755)); err != nil {
		return false, fmt.Errorf("creating extraction directory: %w", err)
	}
	return false, nil
}

// process runs the steps following extraction and marks dir complete
func (f *Fetcher) process(dir string, build avd.BuildCoordinate) error {
	if err := checkLaunchCvd(dir); err != nil {
		return err
	}
	if err := f.Unpacker.Unpack(dir); err != nil {
		return fmt.Errorf("unpacking boot image: %w", err)
	}
	if err := f.Fixer.FixACL(dir); err != nil {
		return fmt.Errorf("fixing image permissions: %w", err)
	}
	if err := WriteMarker(dir, build, f.now()); err != nil {
		return err
	}
	logrus.WithField("build", build.BuildID).Infof("Artifacts ready in %s", dir)
	return nil
}

// fetch downloads one artifact to a temporary file in dir and extracts it
func (f *Fetcher) fetch(ctx context.Context, build avd.BuildCoordinate, name, dir string) error {
	tmp, err := os.CreateTemp(dir, "*-"+name)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("Unable to delete %s: %v", tmp.Name(), err)
		}
	}()

	err = f.Repository.DownloadArtifact(ctx, build.BuildTarget, build.BuildID, name, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("downloading %s: %w", name, err)
	}

	if err := Decompress(tmp.Name(), dir); err != nil {
		return fmt.Errorf("extracting %s: %w", name, err)
	}
	return nil
}

func checkLaunchCvd(dir string) error {
	if !helpers.Exists(filepath.Join(dir, LaunchCvd)) {
		return fmt.Errorf("%w: %s not found in %s", ErrHostPackageMissing, LaunchCvd, dir)
	}
	return nil
}
