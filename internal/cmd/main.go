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
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sigs.k8s.io/release-utils/log"
	"sigs.k8s.io/release-utils/version"

	"sigs.k8s.io/cvdctl/pkg/config"
	"sigs.k8s.io/cvdctl/pkg/prompt"
)

func Execute() error {
	rootCmd := &cobra.Command{
		Short: "Create and delete virtual Android devices",
		Long: `cvdctl (cuttlefish virtual device control)

cvdctl provisions virtual Android devices from a remote build. It can
download and prepare the images of a build to run a cuttlefish device
on this machine, or create a device instance on Google Compute Engine.

	Prepare a local device from a build:
	cvdctl create local --build-target aosp_cf_x86_phone-userdebug --build-id 1234

	Create a remote device:
	cvdctl create remote --branch aosp-main --build-target aosp_cf_x86_phone-userdebug --build-id 1234

	Delete devices by name:
	cvdctl delete local-instance-1 ins-1a2b3c4d-1234-aosp-cf-x86-phone-userdebug

	`,
		Use:               "cvdctl",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
	}

	rootCmd.PersistentFlags().StringVar(
		&commandLineOpts.logLevel,
		"log-level",
		"info",
		fmt.Sprintf("the logging verbosity, either %s", log.LevelNames()),
	)

	rootCmd.PersistentFlags().StringVar(
		&commandLineOpts.configFile,
		"config",
		"",
		"configuration file (default: $HOME/.config/cvdctl/config.yaml or /etc/cvdctl/config.yaml)",
	)

	addCreate(rootCmd)
	addDelete(rootCmd)
	addSSH(rootCmd)
	rootCmd.AddCommand(version.WithFont("larry3d"))

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, prompt.ErrUserExit) {
			logrus.Info("Exiting cvdctl!")
			return nil
		}
		logrus.Fatal(err)
		return err
	}
	return nil
}

type commandLineOptions struct {
	logLevel   string
	configFile string
}

var commandLineOpts = &commandLineOptions{}

func initLogging(*cobra.Command, []string) error {
	return log.SetupGlobalLogger(commandLineOpts.logLevel)
}

// loadConfig reads the configuration file named in the command line
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(commandLineOpts.configFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}
