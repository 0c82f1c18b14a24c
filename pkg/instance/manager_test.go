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

package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"sigs.k8s.io/cvdctl/pkg/exec"
	"sigs.k8s.io/cvdctl/pkg/exec/exectest"
	"sigs.k8s.io/cvdctl/pkg/report"
	"sigs.k8s.io/cvdctl/pkg/ssh"
)

type fakeDeleter struct {
	deleted []string
	errs    map[string]error
}

func (d *fakeDeleter) DeleteInstance(_ context.Context, name, zone string) error {
	if err, ok := d.errs[name]; ok {
		return err
	}
	d.deleted = append(d.deleted, zone+"/"+name)
	return nil
}

// runCvdHandler answers the stop_cvd lookup with a run_cvd living in binDir
func runCvdHandler(binDir string, stopExit int) func(*exec.Step) (*exec.Result, error) {
	return func(s *exec.Step) (*exec.Result, error) {
		switch {
		case s.Command == "pgrep run_cvd":
			return &exec.Result{Output: "fake_id\n"}, nil
		case s.Command == "readlink -f /proc/fake_id/exe":
			return &exec.Result{Output: filepath.Join(binDir, "run_cvd") + "\n"}, nil
		case strings.HasSuffix(s.Command, "stop_cvd"):
			return &exec.Result{ExitCode: stopExit, Stderr: "stop failed"}, nil
		case strings.HasPrefix(s.Command, "pgrep -f"):
			return &exec.Result{ExitCode: 1}, nil
		}
		return &exec.Result{}, nil
	}
}

func newStopCvd(t *testing.T) string {
	binDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "stop_cvd"), []byte("#!/bin/sh"), os.FileMode(0o755)))
	return binDir
}

func TestGetStopCvd(t *testing.T) {
	binDir := newStopCvd(t)
	runner, _ := exectest.NewRunner(runCvdHandler(binDir, 0))
	m := NewManager(runner, nil, "", t.TempDir())

	stopCvd, err := m.GetStopCvd()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(binDir, "stop_cvd"), stopCvd)

	// run_cvd found, but no stop_cvd next to it
	runner, _ = exectest.NewRunner(runCvdHandler(t.TempDir(), 0))
	_, err = NewManager(runner, nil, "", "").GetStopCvd()
	require.ErrorIs(t, err, ErrStopCvdNotFound)

	// run_cvd not running
	runner, _ = exectest.NewRunner(func(*exec.Step) (*exec.Result, error) {
		return &exec.Result{ExitCode: 1}, nil
	})
	_, err = NewManager(runner, nil, "", "").GetStopCvd()
	require.ErrorIs(t, err, ErrStopCvdNotFound)
}

func TestDeleteLocalInstance(t *testing.T) {
	binDir := newStopCvd(t)
	runner, fake := exectest.NewRunner(runCvdHandler(binDir, 0))
	m := NewManager(runner, nil, "", "/tmp/acloud_cvd_temp")

	h := LocalInstance(m.LocalRoot, "local-instance", 1)
	rep := m.DeleteLocalInstance(h, report.New("delete"))
	require.Equal(t, report.StatusSuccess, rep.Status())
	require.Equal(t, []report.Entry{{Type: "instance", Name: "local-instance"}}, rep.Deleted)

	var stopStep *exec.Step
	for i := range fake.Steps {
		if strings.HasSuffix(fake.Steps[i].Command, "stop_cvd") {
			stopStep = &fake.Steps[i]
		}
	}
	require.NotNil(t, stopStep)
	require.Equal(t, map[string]string{"HOME": "/tmp/acloud_cvd_temp/local-instance-1"}, stopStep.Environment)
	require.Contains(t, fake.Commands(), `pgrep -f 'vnc://127\.0\.0\.1:6444'`)
}

func TestDeleteLocalInstanceFailure(t *testing.T) {
	binDir := newStopCvd(t)
	runner, _ := exectest.NewRunner(runCvdHandler(binDir, 1))
	m := NewManager(runner, nil, "", t.TempDir())

	rep := m.DeleteLocalInstance(LocalInstance(m.LocalRoot, "local-instance-2", 2), report.New("delete"))
	require.Equal(t, report.StatusFail, rep.Status())
	require.Empty(t, rep.Deleted)
	require.Contains(t, rep.Errors[0], "stop failed")
}

func TestDeleteLocalGoldfishInstance(t *testing.T) {
	for _, tc := range []struct {
		exitCode int
		status   string
	}{
		{0, report.StatusSuccess},
		{1, report.StatusFail},
	} {
		instanceDir := t.TempDir()
		ts := filepath.Join(instanceDir, "creation_timestamp.txt")
		require.NoError(t, os.WriteFile(ts, []byte("1663000000"), os.FileMode(0o644)))

		runner, fake := exectest.NewRunner(func(*exec.Step) (*exec.Result, error) {
			return &exec.Result{ExitCode: tc.exitCode}, nil
		})
		m := NewManager(runner, nil, "", "")
		h := Handle{Name: "unittest", InstanceDir: instanceDir, AdbPort: 5555, DeviceSerial: "serial"}

		rep := m.DeleteLocalGoldfishInstance(h, report.New("delete"))
		require.Equal(t, []string{"adb -s serial emu kill"}, fake.Commands())
		require.Equal(t, tc.status, rep.Status())
		require.NoFileExists(t, ts)
		if tc.exitCode == 0 {
			require.Equal(t, []report.Entry{{Type: "instance", Name: "unittest"}}, rep.Deleted)
		} else {
			require.NotEmpty(t, rep.Errors)
			require.ErrorIs(t, rep.Err(), ErrEmulatorKill)
		}
	}
}

func TestCleanupSsVncViewer(t *testing.T) {
	for _, tc := range []struct {
		running  bool
		expected []string
	}{
		{true, []string{
			`pgrep -f 'vnc://127\.0\.0\.1:9999'`,
			`pkill -9 -f 'vnc://127\.0\.0\.1:9999'`,
		}},
		{false, []string{`pgrep -f 'vnc://127\.0\.0\.1:9999'`}},
	} {
		runner, fake := exectest.NewRunner(func(s *exec.Step) (*exec.Result, error) {
			if strings.HasPrefix(s.Command, "pgrep") && !tc.running {
				return &exec.Result{ExitCode: 1}, nil
			}
			return &exec.Result{}, nil
		})
		require.NoError(t, NewManager(runner, nil, "", "").CleanupSsVncViewer(9999))
		require.Equal(t, tc.expected, fake.Commands())
	}
}

func TestDeleteRemoteInstances(t *testing.T) {
	runner, _ := exectest.NewRunner(nil)
	backend := &fakeDeleter{errs: map[string]error{"ins-2": errors.New("instance ins-2 not found")}}
	m := NewManager(runner, backend, "us-central1-b", "")

	rep := m.DeleteRemoteInstances(context.Background(), []string{"ins-1", "ins-2", "ins-3"}, report.New("delete"))
	require.Equal(t, []string{"us-central1-b/ins-1", "us-central1-b/ins-3"}, backend.deleted)
	require.Len(t, rep.Deleted, 2)
	require.Equal(t, []string{"instance ins-2 not found"}, rep.Errors)
	require.Equal(t, report.StatusFail, rep.Status())

	rep = NewManager(runner, nil, "", "").DeleteRemoteInstances(context.Background(), []string{"ins-1"}, report.New("delete"))
	require.ErrorIs(t, rep.Err(), ErrNoBackend)
}

func TestDeleteRemoteHostInstance(t *testing.T) {
	runner, fake := exectest.NewRunner(nil)
	client := ssh.New(ssh.RemoteHost{ExternalIP: "1.1.1.1", User: "vsoc-01", PrivateKeyPath: "/fake_key"}, runner)

	rep := NewManager(runner, nil, "", "").DeleteRemoteHostInstance(context.Background(), client, report.New("delete"))
	require.Equal(t, report.StatusSuccess, rep.Status())
	require.Equal(t, []report.Entry{{Type: "instance", Name: "1.1.1.1"}}, rep.Deleted)
	require.Equal(t, []string{
		"/usr/bin/ssh -i /fake_key -q -o UserKnownHostsFile=/dev/null -o StrictHostKeyChecking=no " +
			"-l vsoc-01 1.1.1.1 './bin/stop_cvd; rm -rf ./*'",
	}, fake.Commands())
}

func TestDeleteInstanceByNames(t *testing.T) {
	binDir := newStopCvd(t)
	runner, fake := exectest.NewRunner(runCvdHandler(binDir, 0))
	backend := &fakeDeleter{}
	m := NewManager(runner, backend, "zone-a", "/tmp/acloud_cvd_temp")

	rep := m.DeleteInstanceByNames(context.Background(), []string{"local-instance-1", "local-instance-2"})
	require.Equal(t, report.StatusSuccess, rep.Status())
	require.Len(t, rep.Deleted, 2)
	require.Empty(t, backend.deleted)

	rep = m.DeleteInstanceByNames(context.Background(), []string{
		"ins-id1-cf-x86-phone-userdebug", "ins-id2-cf-x86-phone-userdebug",
	})
	require.Equal(t, report.StatusSuccess, rep.Status())
	require.Equal(t, []string{"zone-a/ins-id1-cf-x86-phone-userdebug", "zone-a/ins-id2-cf-x86-phone-userdebug"}, backend.deleted)

	before := len(fake.Commands())
	rep = m.DeleteInstanceByNames(context.Background(), []string{"local-goldfish-instance-2"})
	require.Equal(t, report.StatusSuccess, rep.Status())
	require.Equal(t, "adb -s emulator-5556 emu kill", fake.Commands()[before])
}

func TestInstanceNames(t *testing.T) {
	for _, tc := range []struct {
		name     string
		local    int
		goldfish int
	}{
		{"local-instance", 1, 0},
		{"local-instance-3", 3, 0},
		{"local-goldfish-instance", 0, 1},
		{"local-goldfish-instance-4", 0, 4},
		{"local-instance-0", 0, 0},
		{"local-instance-x", 0, 0},
		{"ins-1234-aosp-cf-x86-phone-userdebug", 0, 0},
	} {
		id, ok := ParseLocalInstanceName(tc.name)
		require.Equal(t, tc.local != 0, ok, tc.name)
		require.Equal(t, tc.local, id, tc.name)
		id, ok = ParseLocalGoldfishName(tc.name)
		require.Equal(t, tc.goldfish != 0, ok, tc.name)
		require.Equal(t, tc.goldfish, id, tc.name)
	}

	h := LocalGoldfishInstance("/tmp/gf", "local-goldfish-instance-3", 3)
	require.Equal(t, "emulator-5558", h.DeviceSerial)
	require.Equal(t, 5559, h.AdbPort)
	require.Equal(t, "/tmp/gf/local-goldfish-instance-3", h.InstanceDir)

	h = LocalInstance("/tmp/cvd", "local-instance-2", 2)
	require.Equal(t, 6445, h.VncPort)
	require.Equal(t, fmt.Sprintf("127.0.0.1:%d", 6521), h.DeviceSerial)
}
