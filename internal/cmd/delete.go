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
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sigs.k8s.io/cvdctl/pkg/compute"
	"sigs.k8s.io/cvdctl/pkg/config"
	"sigs.k8s.io/cvdctl/pkg/exec"
	"sigs.k8s.io/cvdctl/pkg/instance"
	"sigs.k8s.io/cvdctl/pkg/report"
)

type deleteOptions struct {
	*hostOptions
	reportFile string
}

func (o *deleteOptions) Verify(names []string) error {
	if len(names) == 0 && o.Host == "" {
		return errors.New("nothing to delete, pass instance names or --host")
	}
	return nil
}

func addDelete(parentCmd *cobra.Command) {
	deleteCmd := &cobra.Command{
		Short: "Delete virtual devices",
		Long: `cvdctl delete [instance names]

Deletes devices by name. local-instance[-N] names stop local cuttlefish
devices, local-goldfish-instance[-N] names kill local emulators and any
other name is deleted from the compute backend. With --host the device
running on that host is stopped over ssh.

Every device is attempted, failures are collected in the report.

	`,
		Use:               "delete",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
	}
	opts := deleteOptions{hostOptions: addHostFlags(deleteCmd)}

	deleteCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := opts.Verify(args); err != nil {
			return fmt.Errorf("validating options: %w", err)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rep, err := deleteInstances(cmd.Context(), cfg, &opts, args)
		if err != nil {
			return err
		}
		for _, d := range rep.Deleted {
			logrus.Infof("Deleted %s %s", d.Type, d.Name)
		}
		if opts.reportFile != "" {
			if err := rep.WriteFile(opts.reportFile); err != nil {
				return err
			}
		}
		if err := rep.Err(); err != nil {
			return fmt.Errorf("deleting instances: %w", err)
		}
		return nil
	}

	deleteCmd.PersistentFlags().StringVar(
		&opts.reportFile,
		"report-file",
		"",
		"write the deletion report to this file (.json, .yaml)",
	)

	parentCmd.AddCommand(deleteCmd)
}

func deleteInstances(ctx context.Context, cfg *config.Config, opts *deleteOptions, names []string) (*report.Report, error) {
	runner := exec.NewRunner()
	if err := config.CheckHostDependencies(runner, deleteDependencies(cfg, names, opts.Host)...); err != nil {
		return nil, err
	}

	var backend instance.RemoteDeleter
	if hasRemoteNames(names) && cfg.Project != "" {
		gce, err := compute.NewGCE(ctx, cfg.Project)
		if err != nil {
			return nil, err
		}
		backend = gce
	}

	m := instance.NewManager(runner, backend, cfg.Zone, cfg.LocalInstanceRoot)
	rep := m.DeleteInstanceByNames(ctx, names)
	if opts.Host != "" {
		m.DeleteRemoteHostInstance(ctx, newSSHClient(cfg, opts.Host, opts.InternalIP, runner), rep)
	}
	return rep, nil
}

func hasRemoteNames(names []string) bool {
	for _, n := range names {
		_, local := instance.ParseLocalInstanceName(n)
		_, goldfish := instance.ParseLocalGoldfishName(n)
		if !local && !goldfish {
			return true
		}
	}
	return false
}

// deleteDependencies lists the host tools deleting names, and the device
// on host when set, will run
func deleteDependencies(cfg *config.Config, names []string, host string) []string {
	var local, goldfish bool
	for _, n := range names {
		if _, ok := instance.ParseLocalInstanceName(n); ok {
			local = true
		}
		if _, ok := instance.ParseLocalGoldfishName(n); ok {
			goldfish = true
		}
	}
	deps := []string{}
	if local {
		deps = append(deps, config.LocalInstanceDependencies...)
	}
	if goldfish {
		deps = append(deps, config.GoldfishDependencies...)
	}
	if host != "" {
		deps = append(deps, cfg.SSH.Bin)
	}
	return deps
}
