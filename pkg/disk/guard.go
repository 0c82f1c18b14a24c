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

package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"sigs.k8s.io/cvdctl/pkg/prompt"
)

// RequiredSpaceGB is the free space a download directory needs. The
// image zip is ~0.5G and expands to ~7.5G, the rest is headroom.
const RequiredSpaceGB = 10

// ErrInsufficientSpace is returned by CheckSpace
var ErrInsufficientSpace = errors.New("not enough free disk space")

// Guard validates download directories before artifacts are fetched
// into them. Questions go through the Prompter.
type Guard struct {
	Prompter prompt.Prompter
	// AvailableGB reports the free space of path in GiB. Defaults to statfs.
	AvailableGB func(path string) (float64, error)
}

func NewGuard(p prompt.Prompter) *Guard {
	return &Guard{Prompter: p, AvailableGB: AvailableGB}
}

// ConfirmDownloadDir returns a directory with at least RequiredSpaceGB
// free, creating it or asking for another one as needed. If the user
// declines, prompt.ErrUserExit is returned.
func (g *Guard) ConfirmDownloadDir(downloadDir string) (string, error) {
	for {
		downloadDir = ExpandPath(downloadDir)
		if _, err := os.Stat(downloadDir); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("checking download dir %s: %w", downloadDir, err)
			}
			create, err := g.Prompter.Confirm(fmt.Sprintf(
				"No such directory %s.\nEnter 'y' to create it, enter anything else to exit out[y/N]: ",
				downloadDir,
			))
			if err != nil {
				return "", fmt.Errorf("confirming directory creation: %w", err)
			}
			if !create {
				return "", prompt.ErrUserExit
			}
			if err := os.MkdirAll(downloadDir, os.FileMode(0o755)); err != nil {
				return "", fmt.Errorf("creating download dir %s: %w", downloadDir, err)
			}
			logrus.Infof("Created download directory %s", downloadDir)
			continue
		}

		available, err := g.availableGB(downloadDir)
		if err != nil {
			return "", err
		}
		if available >= RequiredSpaceGB {
			return downloadDir, nil
		}

		answer, err := g.Prompter.Ask(fmt.Sprintf(
			"Download dir %s does not have enough space (available space %.2fGB, "+
				"require %dGB).\nPlease enter alternate path or 'q' to exit: ",
			downloadDir, available, RequiredSpaceGB,
		))
		if err != nil {
			return "", fmt.Errorf("asking for alternate download dir: %w", err)
		}
		if strings.EqualFold(answer, "q") {
			return "", prompt.ErrUserExit
		}
		downloadDir = answer
	}
}

// CheckSpace fails with ErrInsufficientSpace when path has less than
// RequiredSpaceGB available. It never prompts.
func (g *Guard) CheckSpace(path string) error {
	available, err := g.availableGB(path)
	if err != nil {
		return err
	}
	if available < RequiredSpaceGB {
		return fmt.Errorf(
			"%w: %s has %.2fGB, %dGB required", ErrInsufficientSpace, path, available, RequiredSpaceGB,
		)
	}
	return nil
}

func (g *Guard) availableGB(path string) (float64, error) {
	fn := g.AvailableGB
	if fn == nil {
		fn = AvailableGB
	}
	available, err := fn(path)
	if err != nil {
		return 0, fmt.Errorf("reading free space of %s: %w", path, err)
	}
	return available, nil
}

// AvailableGB returns the space available to unprivileged users on the
// filesystem holding path, in GiB
func AvailableGB(path string) (float64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return float64(stat.Bavail) * float64(stat.Bsize) / (1024 * 1024 * 1024), nil
}

// ExpandPath expands environment variables and a leading ~
func ExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
