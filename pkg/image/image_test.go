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

package image

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sigs.k8s.io/cvdctl/pkg/exec"
	"sigs.k8s.io/cvdctl/pkg/exec/exectest"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), os.FileMode(0o644)))
	}
}

func TestUnpack(t *testing.T) {
	dir := t.TempDir()
	runner, fake := exectest.NewRunner(nil)
	u := NewUnpacker(runner, "")

	// No boot.img
	err := u.Unpack(dir)
	require.ErrorIs(t, err, ErrBootImageMissing)
	require.Empty(t, fake.Commands())

	writeFiles(t, dir, BootImage)
	require.NoError(t, u.Unpack(dir))
	require.Equal(t, []string{
		DefaultUnpackTool + " -boot_img " + filepath.Join(dir, BootImage) + " -dest " + dir,
	}, fake.Commands())
}

func TestUnpackToolFailure(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, BootImage)
	runner, _ := exectest.NewRunner(func(*exec.Step) (*exec.Result, error) {
		return &exec.Result{ExitCode: 2, Stderr: "bad magic"}, nil
	})
	err := NewUnpacker(runner, "/opt/unpack").Unpack(dir)
	require.ErrorIs(t, err, ErrUnpackFailed)
	var perr *exec.ProcessError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, 2, perr.ExitCode)
	require.Contains(t, err.Error(), "bad magic")
}

func TestFixACL(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, RequiredImageFiles...)
	runner, fake := exectest.NewRunner(nil)

	require.NoError(t, NewACLFixer(runner, "").FixACL(dir))
	cmds := fake.Commands()
	require.Len(t, cmds, len(RequiredImageFiles))
	for i, name := range RequiredImageFiles {
		require.Equal(t, "setfacl -m g:libvirt-qemu:rw "+filepath.Join(dir, name), cmds[i])
	}
}

func TestFixACLMissingFile(t *testing.T) {
	dir := t.TempDir()
	// kernel is the third file, the first two get fixed before failing
	writeFiles(t, dir, "cache.img", "cmdline")
	runner, fake := exectest.NewRunner(nil)

	err := NewACLFixer(runner, "kvm").FixACL(dir)
	require.ErrorIs(t, err, ErrPathMissing)
	require.Contains(t, err.Error(), filepath.Join(dir, "kernel"))
	require.Len(t, fake.Commands(), 2)
	require.True(t, strings.HasPrefix(fake.Commands()[0], "setfacl -m g:kvm:rw "))
}

func TestFixACLCommandFailureAborts(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, RequiredImageFiles...)
	runner, fake := exectest.NewRunner(func(s *exec.Step) (*exec.Result, error) {
		if strings.HasSuffix(s.Command, "kernel") {
			return &exec.Result{ExitCode: 1, Stderr: "Operation not supported"}, nil
		}
		return &exec.Result{}, nil
	})
	err := NewACLFixer(runner, "").FixACL(dir)
	require.ErrorIs(t, err, ErrACLFailed)
	require.Len(t, fake.Commands(), 3)
}
