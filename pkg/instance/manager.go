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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"sigs.k8s.io/release-utils/helpers"

	"sigs.k8s.io/cvdctl/pkg/exec"
	"sigs.k8s.io/cvdctl/pkg/report"
	"sigs.k8s.io/cvdctl/pkg/ssh"
)

// RemoteDeleter removes instances from a compute backend
type RemoteDeleter interface {
	DeleteInstance(ctx context.Context, name, zone string) error
}

// Manager tears down local and remote device instances
type Manager struct {
	Runner    *exec.Runner
	Backend   RemoteDeleter
	Zone      string
	LocalRoot string
}

func NewManager(runner *exec.Runner, backend RemoteDeleter, zone, localRoot string) *Manager {
	return &Manager{
		Runner:    runner,
		Backend:   backend,
		Zone:      zone,
		LocalRoot: localRoot,
	}
}

// GetStopCvd finds stop_cvd next to the binary of the running run_cvd
func (m *Manager) GetStopCvd() (string, error) {
	res, err := m.Runner.RunSuccess("pgrep run_cvd")
	if err != nil {
		return "", fmt.Errorf("%w: run_cvd is not running: %w", ErrStopCvdNotFound, err)
	}
	pid, _, _ := strings.Cut(strings.TrimSpace(res.Output), "\n")

	res, err = m.Runner.RunSuccess(fmt.Sprintf("readlink -f /proc/%s/exe", pid))
	if err != nil {
		return "", fmt.Errorf("%w: resolving run_cvd path: %w", ErrStopCvdNotFound, err)
	}
	stopCvd := filepath.Join(filepath.Dir(strings.TrimSpace(res.Output)), "stop_cvd")
	if !helpers.Exists(stopCvd) {
		return "", fmt.Errorf("%w: %s does not exist", ErrStopCvdNotFound, stopCvd)
	}
	return stopCvd, nil
}

// DeleteLocalInstance stops a local cuttlefish instance and records the
// outcome in rep
func (m *Manager) DeleteLocalInstance(h Handle, rep *report.Report) *report.Report {
	log := logrus.WithField("instance", h.Name)
	stopCvd, err := m.GetStopCvd()
	if err != nil {
		rep.AddErr(err)
		return rep
	}

	log.Infof("Stopping instance with %s", stopCvd)
	if _, err := m.Runner.RunStepSuccess(&exec.Step{
		Command:     stopCvd,
		Environment: map[string]string{"HOME": h.InstanceDir},
	}); err != nil {
		rep.AddErr(fmt.Errorf("stopping %s: %w", h.Name, err))
		return rep
	}
	rep.AddDeleted(report.TypeInstance, h.Name)

	if h.VncPort > 0 {
		if err := m.CleanupSsVncViewer(h.VncPort); err != nil {
			log.Warnf("Unable to stop vnc viewer: %v", err)
		}
	}
	return rep
}

// DeleteLocalGoldfishInstance kills an emulator through its console.
// The creation timestamp is removed whether the emulator died or not.
func (m *Manager) DeleteLocalGoldfishInstance(h Handle, rep *report.Report) *report.Report {
	defer func() {
		ts := filepath.Join(h.InstanceDir, creationTimestampFile)
		if err := os.Remove(ts); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("Unable to remove %s: %v", ts, err)
		}
	}()

	res, err := m.Runner.Run(fmt.Sprintf("adb -s %s emu kill", h.DeviceSerial))
	if err != nil {
		rep.AddErr(err)
		return rep
	}
	if !res.Success() {
		rep.AddErr(fmt.Errorf("%w %s: %s", ErrEmulatorKill, h.DeviceSerial, res.Combined()))
		return rep
	}
	rep.AddDeleted(report.TypeInstance, h.Name)
	return rep
}

// CleanupSsVncViewer kills the vnc viewer attached to port, if any
func (m *Manager) CleanupSsVncViewer(port int) error {
	pattern := vncViewerPattern(port)
	res, err := m.Runner.Run(fmt.Sprintf("pgrep -f '%s'", pattern))
	if err != nil {
		return err
	}
	if !res.Success() {
		logrus.Debugf("No vnc viewer running on port %d", port)
		return nil
	}
	if _, err := m.Runner.RunSuccess(fmt.Sprintf("pkill -9 -f '%s'", pattern)); err != nil {
		return fmt.Errorf("killing vnc viewer: %w", err)
	}
	return nil
}

// DeleteRemoteInstances deletes every named instance from the backend.
// A failed deletion does not stop the others.
func (m *Manager) DeleteRemoteInstances(ctx context.Context, names []string, rep *report.Report) *report.Report {
	if len(names) == 0 {
		return rep
	}
	if m.Backend == nil {
		rep.AddErr(fmt.Errorf("%w: cannot delete %s", ErrNoBackend, strings.Join(names, ", ")))
		return rep
	}
	for _, name := range names {
		if err := m.Backend.DeleteInstance(ctx, name, m.Zone); err != nil {
			rep.AddErr(err)
			continue
		}
		rep.AddDeleted(report.TypeInstance, name)
	}
	return rep
}

// DeleteRemoteHostInstance stops the device on a host reachable over ssh
// and wipes its working directory
func (m *Manager) DeleteRemoteHostInstance(ctx context.Context, client *ssh.Client, rep *report.Report) *report.Report {
	host := client.Host.Address()
	logrus.WithField("host", host).Info("Stopping remote device")
	if err := client.RunWithRetry(ctx, `'./bin/stop_cvd; rm -rf ./*'`); err != nil {
		rep.AddErr(fmt.Errorf("cleaning up host %s: %w", host, err))
		return rep
	}
	rep.AddDeleted(report.TypeInstance, host)
	return rep
}

// DeleteInstanceByNames routes each name to the right deletion flow:
// local cuttlefish, local emulator or remote
func (m *Manager) DeleteInstanceByNames(ctx context.Context, names []string) *report.Report {
	rep := report.New("delete")
	remote := []string{}
	for _, name := range names {
		if id, ok := ParseLocalInstanceName(name); ok {
			m.DeleteLocalInstance(LocalInstance(m.LocalRoot, name, id), rep)
			continue
		}
		if id, ok := ParseLocalGoldfishName(name); ok {
			m.DeleteLocalGoldfishInstance(LocalGoldfishInstance(m.LocalRoot, name, id), rep)
			continue
		}
		remote = append(remote, name)
	}
	return m.DeleteRemoteInstances(ctx, remote, rep)
}
