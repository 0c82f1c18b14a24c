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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseGCSObjectURL(t *testing.T) {
	for _, tc := range []struct {
		url        string
		bucket     string
		path       string
		shouldFail bool
	}{
		{"gs://android-build/builds/aosp_cf_x86_phone-userdebug/1234/boot.img", "android-build", "/builds/aosp_cf_x86_phone-userdebug/1234/boot.img", false},
		{"gs://bucket", "bucket", "", false},
		{"file:///tmp/builds", "", "", true},
		{"https://storage.googleapis.com/bucket/x", "", "", true},
	} {
		bucket, path, err := parseGCSObjectURL(tc.url)
		if tc.shouldFail {
			require.Error(t, err, tc.url)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.bucket, bucket)
		require.Equal(t, tc.path, path)
	}
}

func TestGCSObjectURL(t *testing.T) {
	gcs := &GCS{Bucket: "android-build", Path: "builds"}
	require.Equal(t,
		"gs://android-build/builds/aosp_cf_x86_phone-userdebug/1234/cvd-host_package.tar.gz",
		gcs.ObjectURL("aosp_cf_x86_phone-userdebug", "1234", "cvd-host_package.tar.gz"),
	)
	gcs.Path = ""
	require.Equal(t, "gs://android-build/t/1/a.zip", gcs.ObjectURL("t", "1", "a.zip"))
}

func TestLatestBuildID(t *testing.T) {
	for _, tc := range []struct {
		names      []string
		expected   string
		shouldFail bool
	}{
		{[]string{"100", "99", "1000"}, "1000", false},
		{[]string{"P1234", "42", "latest"}, "42", false},
		{[]string{"7"}, "7", false},
		{[]string{"latest", "P1"}, "", true},
		{nil, "", true},
	} {
		id, err := latestBuildID(tc.names)
		if tc.shouldFail {
			require.ErrorIs(t, err, ErrNoBuilds)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.expected, id)
	}
}

func TestDirectory(t *testing.T) {
	root := t.TempDir()
	target := "aosp_cf_x86_phone-userdebug"
	for _, id := range []string{"5", "12", "tmp"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, target, id), os.FileMode(0o755)))
	}
	require.NoError(t, os.WriteFile(
		filepath.Join(root, target, "12", "aosp_cf_x86_phone-img-12.zip"), []byte("zipdata"), os.FileMode(0o644),
	))

	d, err := NewDirectory("file://" + root)
	require.NoError(t, err)

	id, err := d.LatestBuildID(context.Background(), target)
	require.NoError(t, err)
	require.Equal(t, "12", id)

	var b bytes.Buffer
	require.NoError(t, d.DownloadArtifact(context.Background(), target, "12", "aosp_cf_x86_phone-img-12.zip", &b))
	require.Equal(t, "zipdata", b.String())

	require.Error(t, d.DownloadArtifact(context.Background(), target, "5", "missing.zip", &b))

	_, err = NewDirectory("gs://bucket")
	require.Error(t, err)
}
