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

package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"sigs.k8s.io/cvdctl/pkg/config"
	"sigs.k8s.io/cvdctl/pkg/disk"
	"sigs.k8s.io/cvdctl/pkg/prompt"
)

func TestCreateRemoteOptionsValidate(t *testing.T) {
	valid := func() *createRemoteOptions {
		return &createRemoteOptions{buildOptions: &buildOptions{
			Branch: "aosp-main", BuildID: "1234", BuildTarget: "aosp_cf_x86_phone-userdebug",
		}}
	}
	for _, tc := range []struct {
		name       string
		mutate     func(*createRemoteOptions)
		shouldFail bool
	}{
		{"valid", func(*createRemoteOptions) {}, false},
		{"no branch", func(o *createRemoteOptions) { o.Branch = "" }, true},
		{"latest", func(o *createRemoteOptions) { o.BuildID = latestBuild }, true},
		{"no target", func(o *createRemoteOptions) { o.BuildTarget = "" }, true},
		{"negative disk", func(o *createRemoteOptions) { o.blankDataDiskSize = -1 }, true},
		{"kernel id only", func(o *createRemoteOptions) { o.kernelBuildID = "77" }, true},
		{"kernel", func(o *createRemoteOptions) { o.kernelBranch, o.kernelBuildID = "k", "77" }, false},
	} {
		opts := valid()
		tc.mutate(opts)
		err := opts.Validate()
		if tc.shouldFail {
			require.Error(t, err, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
	}
}

func TestCreateRemoteKernel(t *testing.T) {
	opts := &createRemoteOptions{buildOptions: &buildOptions{}, kernelBuildTarget: "kernel"}
	require.Nil(t, opts.kernel())

	opts.kernelBranch, opts.kernelBuildID = "kernel-main", "77"
	k := opts.kernel()
	require.NotNil(t, k)
	require.Equal(t, "kernel-main/77", k.FetchReference())
}

func TestDeleteOptionsVerify(t *testing.T) {
	opts := &deleteOptions{hostOptions: &hostOptions{}}
	require.Error(t, opts.Verify(nil))
	require.NoError(t, opts.Verify([]string{"local-instance-1"}))
	opts.Host = "203.0.113.7"
	require.NoError(t, opts.Verify(nil))
}

func TestHasRemoteNames(t *testing.T) {
	require.False(t, hasRemoteNames(nil))
	require.False(t, hasRemoteNames([]string{"local-instance", "local-goldfish-instance-2"}))
	require.True(t, hasRemoteNames([]string{"local-instance", "ins-1234-aosp-cf-x86-phone-userdebug"}))
}

func TestCreateLocalOptionsValidate(t *testing.T) {
	for _, tc := range []struct {
		name       string
		opts       createLocalOptions
		shouldFail bool
	}{
		{"build", createLocalOptions{buildOptions: &buildOptions{BuildID: latestBuild, BuildTarget: "aosp_cf_x86_phone-userdebug"}}, false},
		{"no target", createLocalOptions{buildOptions: &buildOptions{BuildID: latestBuild}}, true},
		{"local image", createLocalOptions{buildOptions: &buildOptions{BuildID: latestBuild}, localImageDir: "/tmp/img"}, false},
		{"host package alone", createLocalOptions{buildOptions: &buildOptions{BuildID: "1", BuildTarget: "t"}, localHostPackage: "/tmp/h.tar.gz"}, true},
	} {
		err := tc.opts.Validate()
		if tc.shouldFail {
			require.Error(t, err, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
	}
}

func TestPrepareDownloadDirNonInteractive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	guard := disk.NewGuard(prompt.NewScripted())
	guard.AvailableGB = func(string) (float64, error) { return 50, nil }

	got, err := prepareDownloadDir(guard, dir, false)
	require.NoError(t, err)
	require.Equal(t, dir, got)
	require.DirExists(t, dir)

	guard.AvailableGB = func(string) (float64, error) { return 2, nil }
	_, err = prepareDownloadDir(guard, dir, false)
	require.ErrorIs(t, err, disk.ErrInsufficientSpace)
}

func TestPrepareDownloadDirInteractive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	p := prompt.NewScripted("n")
	guard := disk.NewGuard(p)
	guard.AvailableGB = func(string) (float64, error) { return 50, nil }

	_, err := prepareDownloadDir(guard, dir, true)
	require.ErrorIs(t, err, prompt.ErrUserExit)
	require.Len(t, p.Questions, 1)
	require.NoDirExists(t, dir)
}

func TestDeleteDependencies(t *testing.T) {
	cfg := &config.Config{SSH: config.SSH{Bin: "/usr/bin/ssh"}}
	require.Empty(t, deleteDependencies(cfg, []string{"ins-1234-aosp-cf-x86-phone-userdebug"}, ""))
	require.Equal(t,
		[]string{"pgrep", "pkill", "readlink"},
		deleteDependencies(cfg, []string{"local-instance-2"}, ""),
	)
	require.Equal(t,
		[]string{"pgrep", "pkill", "readlink", "adb", "/usr/bin/ssh"},
		deleteDependencies(cfg, []string{"local-goldfish-instance", "local-instance"}, "203.0.113.7"),
	)
}
