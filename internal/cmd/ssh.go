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
	"fmt"

	"github.com/spf13/cobra"

	"sigs.k8s.io/cvdctl/pkg/exec"
)

func addSSH(parentCmd *cobra.Command) {
	// Verb
	sshCmd := &cobra.Command{
		Short:             "Copy files to and from a remote device host",
		Use:               "ssh",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
	}
	opts := addHostFlags(sshCmd)

	pullCmd := &cobra.Command{
		Short:             "Copy a file from the remote host",
		Use:               "pull REMOTE_PATH LOCAL_PATH",
		Args:              cobra.ExactArgs(2),
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
		RunE: func(_ *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return fmt.Errorf("validating options: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := newSSHClient(cfg, opts.Host, opts.InternalIP, exec.NewRunner())
			if err := client.ScpPullFile(args[0], args[1]); err != nil {
				return fmt.Errorf("pulling %s: %w", args[0], err)
			}
			return nil
		},
	}

	pushCmd := &cobra.Command{
		Short:             "Copy a file to the remote host",
		Use:               "push LOCAL_PATH REMOTE_PATH",
		Args:              cobra.ExactArgs(2),
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
		RunE: func(_ *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return fmt.Errorf("validating options: %w", err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := newSSHClient(cfg, opts.Host, opts.InternalIP, exec.NewRunner())
			if err := client.ScpPushFile(args[0], args[1]); err != nil {
				return fmt.Errorf("pushing %s: %w", args[0], err)
			}
			return nil
		},
	}

	sshCmd.AddCommand(pullCmd, pushCmd)
	parentCmd.AddCommand(sshCmd)
}
