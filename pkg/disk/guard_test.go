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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sigs.k8s.io/cvdctl/pkg/prompt"
)

func fixedSpace(space map[string]float64) func(string) (float64, error) {
	return func(path string) (float64, error) {
		return space[path], nil
	}
}

func TestConfirmDownloadDirEnoughSpace(t *testing.T) {
	dir := t.TempDir()
	p := prompt.NewScripted()
	g := &Guard{Prompter: p, AvailableGB: fixedSpace(map[string]float64{dir: 10})}

	got, err := g.ConfirmDownloadDir(dir)
	require.NoError(t, err)
	require.Equal(t, dir, got)
	require.Empty(t, p.Questions)
}

func TestConfirmDownloadDirLowSpace(t *testing.T) {
	small := t.TempDir()
	smaller := t.TempDir()
	big := t.TempDir()
	space := fixedSpace(map[string]float64{small: 2, smaller: 9.99, big: 100})

	// Keeps asking until a directory with enough space is given
	p := prompt.NewScripted(smaller, big)
	g := &Guard{Prompter: p, AvailableGB: space}
	got, err := g.ConfirmDownloadDir(small)
	require.NoError(t, err)
	require.Equal(t, big, got)
	require.Len(t, p.Questions, 2)

	// q exits
	g.Prompter = prompt.NewScripted("q")
	_, err = g.ConfirmDownloadDir(small)
	require.ErrorIs(t, err, prompt.ErrUserExit)

	g.Prompter = prompt.NewScripted("Q")
	_, err = g.ConfirmDownloadDir(small)
	require.ErrorIs(t, err, prompt.ErrUserExit)
}

func TestConfirmDownloadDirMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nested", "downloads")
	g := &Guard{
		Prompter:    prompt.NewScripted("y"),
		AvailableGB: fixedSpace(map[string]float64{missing: 50}),
	}
	got, err := g.ConfirmDownloadDir(missing)
	require.NoError(t, err)
	require.Equal(t, missing, got)
	require.DirExists(t, missing)

	other := filepath.Join(t.TempDir(), "other")
	g.Prompter = prompt.NewScripted("n")
	_, err = g.ConfirmDownloadDir(other)
	require.ErrorIs(t, err, prompt.ErrUserExit)
	require.NoDirExists(t, other)
}

func TestCheckSpace(t *testing.T) {
	g := &Guard{AvailableGB: fixedSpace(map[string]float64{"/a": 3, "/b": 12})}
	require.ErrorIs(t, g.CheckSpace("/a"), ErrInsufficientSpace)
	require.NoError(t, g.CheckSpace("/b"))
}

func TestAvailableGB(t *testing.T) {
	gb, err := AvailableGB(t.TempDir())
	require.NoError(t, err)
	require.Greater(t, gb, 0.0)

	_, err = AvailableGB(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("CVDCTL_TEST_DIR", "/srv/images")

	require.Equal(t, filepath.Join(home, "downloads"), ExpandPath("~/downloads"))
	require.Equal(t, "/srv/images/x", ExpandPath("$CVDCTL_TEST_DIR/x"))
	require.Equal(t, "/abs/path", ExpandPath("/abs/path"))
}
