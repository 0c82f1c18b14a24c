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

package ssh

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sigs.k8s.io/cvdctl/pkg/exec"
	"sigs.k8s.io/cvdctl/pkg/retry"
)

const (
	SSHBin = "/usr/bin/ssh"
	SCPBin = "/usr/bin/scp"

	// ssh exits with 255 when the failure is its own, not the remote
	// command's. With -q it prints nothing, so the code is all there is.
	connectionFailureExitCode = 255
)

// ErrDeviceConnection marks ssh failures caused by the transport, which
// are worth retrying
var ErrDeviceConnection = errors.New("device connection error")

// RemoteHost is the machine commands are sent to
type RemoteHost struct {
	ExternalIP       string
	InternalIP       string
	User             string
	PrivateKeyPath   string
	ExtraArgs        string
	ReportInternalIP bool
}

// Address returns the IP ssh should connect to
func (h *RemoteHost) Address() string {
	if h.ReportInternalIP {
		return h.InternalIP
	}
	return h.ExternalIP
}

type Client struct {
	Host   RemoteHost
	SSHBin string
	SCPBin string
	Retry  retry.Policy
	runner *exec.Runner
}

func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:    5,
		Delay:       3 * time.Second,
		MaxDelay:    30 * time.Second,
		RetryIf:     IsRetryable,
		Description: "ssh",
	}
}

func New(host RemoteHost, runner *exec.Runner) *Client {
	return &Client{
		Host:   host,
		SSHBin: SSHBin,
		SCPBin: SCPBin,
		Retry:  DefaultRetryPolicy(),
		runner: runner,
	}
}

// GetBaseCmd returns the command line prefix for bin. For ssh it ends
// with the login user and target address, scp callers append
// user@host:path themselves.
func (c *Client) GetBaseCmd(bin string) string {
	parts := []string{
		bin, "-i", c.Host.PrivateKeyPath, "-q",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "StrictHostKeyChecking=no",
	}
	if c.Host.ExtraArgs != "" {
		parts = append(parts, c.Host.ExtraArgs)
	}
	if bin == c.SSHBin {
		parts = append(parts, "-l", c.Host.User, c.Host.Address())
	}
	return strings.Join(parts, " ")
}

func (c *Client) remotePath(path string) string {
	return fmt.Sprintf("%s@%s:%s", c.Host.User, c.Host.Address(), path)
}

// Run starts command on the remote host and returns without waiting
// for it to finish
func (c *Client) Run(command string) (exec.Process, error) {
	return c.runner.Start(c.GetBaseCmd(c.SSHBin) + " " + command)
}

// ScpPullFile copies remotePath from the host to localPath
func (c *Client) ScpPullFile(remotePath, localPath string) error {
	return c.execute(fmt.Sprintf(
		"%s %s %s", c.GetBaseCmd(c.SCPBin), c.remotePath(remotePath), localPath,
	))
}

// ScpPushFile copies localPath to remotePath on the host
func (c *Client) ScpPushFile(localPath, remotePath string) error {
	return c.execute(fmt.Sprintf(
		"%s %s %s", c.GetBaseCmd(c.SCPBin), localPath, c.remotePath(remotePath),
	))
}

func (c *Client) execute(cmdline string) error {
	p, err := c.runner.Start(cmdline)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(p.Output())
	for scanner.Scan() {
		logrus.WithField("host", c.Host.Address()).Debug(scanner.Text())
	}
	return p.Wait()
}

// RunWithRetry runs command on the remote host through ShellCmdWithRetry
func (c *Client) RunWithRetry(ctx context.Context, command string) error {
	return c.ShellCmdWithRetry(ctx, c.GetBaseCmd(c.SSHBin)+" "+command)
}

// ShellCmdWithRetry runs a full ssh/scp command line, retrying while the
// failure looks like a connectivity problem. Any other failure, or the
// last connectivity failure, is returned as an *exec.ProcessError.
func (c *Client) ShellCmdWithRetry(ctx context.Context, cmdline string) error {
	err := c.Retry.Do(ctx, func() error {
		res, err := c.runner.Run(cmdline)
		if err != nil {
			return err
		}
		return classify(cmdline, res)
	})
	if err == nil {
		return nil
	}
	var perr *exec.ProcessError
	if errors.As(err, &perr) {
		return perr
	}
	return err
}

// WaitForSSH polls the host until it accepts ssh connections or the
// timeout expires
func (c *Client) WaitForSSH(ctx context.Context, timeout time.Duration) error {
	const interval = 5 * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	policy := retry.Policy{
		Attempts:    uint(timeout/interval) + 1,
		Delay:       interval,
		MaxDelay:    interval,
		Description: "wait for ssh",
	}
	cmdline := c.GetBaseCmd(c.SSHBin) + " uptime"
	if err := policy.Do(ctx, func() error {
		res, err := c.runner.Run(cmdline)
		if err != nil {
			return err
		}
		return classify(cmdline, res)
	}); err != nil {
		return fmt.Errorf("waiting for ssh on %s: %w", c.Host.Address(), err)
	}
	logrus.Infof("Host %s is accepting ssh connections", c.Host.Address())
	return nil
}

func classify(cmdline string, res *exec.Result) error {
	if res.Success() {
		return nil
	}
	perr := &exec.ProcessError{
		Command:  cmdline,
		ExitCode: res.ExitCode,
		Output:   res.Combined(),
	}
	if res.ExitCode == connectionFailureExitCode {
		return fmt.Errorf("%w: %w", ErrDeviceConnection, perr)
	}
	return perr
}

// IsRetryable reports whether err is a transport failure
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDeviceConnection)
}
