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
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sigs.k8s.io/cvdctl/pkg/avd"
	"sigs.k8s.io/cvdctl/pkg/config"
	"sigs.k8s.io/cvdctl/pkg/exec"
	"sigs.k8s.io/cvdctl/pkg/prompt"
	"sigs.k8s.io/cvdctl/pkg/ssh"
)

// latestBuild is the build id asking to resolve the newest build
const latestBuild = "latest"

type buildOptions struct {
	Branch      string
	BuildID     string
	BuildTarget string
}

func (bo *buildOptions) Validate() error {
	if bo.BuildTarget == "" {
		return errors.New("build target is required")
	}
	if bo.BuildID == "" {
		return errors.New("build id is required")
	}
	return nil
}

// Build returns the build coordinate selected in the command line
func (bo *buildOptions) Build() avd.BuildCoordinate {
	return avd.BuildCoordinate{
		Branch:      bo.Branch,
		BuildID:     bo.BuildID,
		BuildTarget: bo.BuildTarget,
	}
}

func addBuildFlags(command *cobra.Command) *buildOptions {
	opts := &buildOptions{}
	command.PersistentFlags().StringVar(
		&opts.Branch,
		"branch",
		"",
		"branch the build was produced from",
	)
	command.PersistentFlags().StringVar(
		&opts.BuildID,
		"build-id",
		latestBuild,
		"build id to fetch, 'latest' resolves the newest build in the repository",
	)
	command.PersistentFlags().StringVar(
		&opts.BuildTarget,
		"build-target",
		"",
		"build target, eg aosp_cf_x86_phone-userdebug",
	)
	return opts
}

type hostOptions struct {
	Host       string
	InternalIP string
}

func (ho *hostOptions) Validate() error {
	if ho.Host == "" {
		return errors.New("remote host address is required")
	}
	return nil
}

func addHostFlags(command *cobra.Command) *hostOptions {
	opts := &hostOptions{}
	command.PersistentFlags().StringVar(
		&opts.Host,
		"host",
		"",
		"external IP address of the remote host",
	)
	command.PersistentFlags().StringVar(
		&opts.InternalIP,
		"internal-ip",
		"",
		"internal IP address of the remote host, used when ssh.report_internal_ip is set",
	)
	return opts
}

// newSSHClient returns an ssh client for a host configured from cfg
func newSSHClient(cfg *config.Config, externalIP, internalIP string, runner *exec.Runner) *ssh.Client {
	if internalIP == "" {
		internalIP = externalIP
	}
	client := ssh.New(cfg.RemoteHost(externalIP, internalIP), runner)
	client.SSHBin = cfg.SSH.Bin
	client.SCPBin = cfg.SSH.SCPBin
	return client
}

// newPrompter returns a terminal prompter and true. Without a terminal
// every question fails instead of blocking and false is returned.
func newPrompter() (prompt.Prompter, bool) {
	t, err := prompt.NewTerminal(false)
	if err != nil {
		logrus.Debugf("Not prompting: %v", err)
		return prompt.NewScripted(), false
	}
	return t, true
}
