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
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sigs.k8s.io/cvdctl/pkg/artifact"
	"sigs.k8s.io/cvdctl/pkg/avd"
	"sigs.k8s.io/cvdctl/pkg/compute"
	"sigs.k8s.io/cvdctl/pkg/config"
	"sigs.k8s.io/cvdctl/pkg/disk"
	"sigs.k8s.io/cvdctl/pkg/exec"
	"sigs.k8s.io/cvdctl/pkg/image"
)

type createLocalOptions struct {
	*buildOptions
	downloadDir      string
	repository       string
	localImageDir    string
	localHostPackage string
}

func (o *createLocalOptions) Validate() error {
	if o.localImageDir != "" {
		return nil
	}
	if o.localHostPackage != "" {
		return errors.New("--local-host-package requires --local-image-dir")
	}
	return o.buildOptions.Validate()
}

type createRemoteOptions struct {
	*buildOptions
	kernelBranch      string
	kernelBuildID     string
	kernelBuildTarget string
	blankDataDiskSize int64
	hwProperty        string
	name              string
	waitSSH           time.Duration
}

func (o *createRemoteOptions) Validate() error {
	errs := []error{o.buildOptions.Validate()}
	if o.Branch == "" {
		errs = append(errs, errors.New("branch is required to create a remote instance"))
	}
	if o.BuildID == latestBuild {
		errs = append(errs, errors.New("remote instances need an explicit build id"))
	}
	if o.blankDataDiskSize < 0 {
		errs = append(errs, errors.New("blank data disk size cannot be negative"))
	}
	if (o.kernelBranch == "") != (o.kernelBuildID == "") {
		errs = append(errs, errors.New("kernel branch and kernel build id must be set together"))
	}
	return errors.Join(errs...)
}

// kernel returns the kernel build to boot, nil when none was requested
func (o *createRemoteOptions) kernel() *avd.BuildCoordinate {
	if o.kernelBranch == "" && o.kernelBuildID == "" {
		return nil
	}
	return &avd.BuildCoordinate{
		Branch:      o.kernelBranch,
		BuildID:     o.kernelBuildID,
		BuildTarget: o.kernelBuildTarget,
	}
}

func addCreate(parentCmd *cobra.Command) {
	// Verb
	createCmd := &cobra.Command{
		Short:             "Create a virtual device",
		Use:               "create",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
	}

	addCreateLocal(createCmd)
	addCreateRemote(createCmd)
	parentCmd.AddCommand(createCmd)
}

func addCreateLocal(parentCmd *cobra.Command) {
	createLocalCmd := &cobra.Command{
		Short: "Prepare the images of a remote build to run a device locally",
		Long: `cvdctl create local

Downloads the host package and the device images of a build,
extracts them, unpacks the boot image and grants the libvirt group
access to the images. Builds already prepared are not downloaded
again. With --local-image-dir an image zip already on disk is used.

	`,
		Use:               "local",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
	}
	opts := createLocalOptions{buildOptions: addBuildFlags(createLocalCmd)}

	createLocalCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := opts.Validate(); err != nil {
			return fmt.Errorf("validating options: %w", err)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if opts.downloadDir == "" {
			opts.downloadDir = cfg.DownloadDir
		}
		if opts.repository == "" {
			opts.repository = cfg.ArtifactRepository
		}

		extractDir, err := createLocal(cmd.Context(), cfg, &opts)
		if err != nil {
			return err
		}
		fmt.Println(extractDir)
		return nil
	}

	createLocalCmd.PersistentFlags().StringVar(
		&opts.downloadDir,
		"download-dir",
		"",
		"directory to download and extract the artifacts to (default from configuration)",
	)

	createLocalCmd.PersistentFlags().StringVar(
		&opts.repository,
		"repository",
		"",
		"artifact repository URL, gs://bucket/path or file:///path (default from configuration)",
	)

	createLocalCmd.PersistentFlags().StringVar(
		&opts.localImageDir,
		"local-image-dir",
		"",
		"use the image zip (*img*.zip) in this directory instead of downloading a build",
	)

	createLocalCmd.PersistentFlags().StringVar(
		&opts.localHostPackage,
		"local-host-package",
		"",
		"host package to use with --local-image-dir (default: "+artifact.HostPackage+" in the image dir)",
	)

	parentCmd.AddCommand(createLocalCmd)
}

func createLocal(ctx context.Context, cfg *config.Config, opts *createLocalOptions) (string, error) {
	runner := exec.NewRunner()
	deps := append([]string{cfg.UnpackTool}, config.LocalCreateDependencies...)
	if err := config.CheckHostDependencies(runner, deps...); err != nil {
		return "", err
	}

	prompter, interactive := newPrompter()
	downloadDir, err := prepareDownloadDir(disk.NewGuard(prompter), opts.downloadDir, interactive)
	if err != nil {
		return "", err
	}

	fetcher := artifact.NewFetcher(
		nil,
		image.NewUnpacker(runner, cfg.UnpackTool),
		image.NewACLFixer(runner, cfg.ACLGroup),
	)

	if opts.localImageDir != "" {
		imageZip, err := artifact.VerifyLocalImageArtifactsExist(opts.localImageDir, prompter)
		if err != nil {
			return "", err
		}
		hostPackage := opts.localHostPackage
		if hostPackage == "" {
			hostPackage = filepath.Join(opts.localImageDir, artifact.HostPackage)
		}
		return fetcher.ProcessLocalImage(imageZip, hostPackage, downloadDir)
	}

	repo, err := artifact.NewRepository(ctx, opts.repository)
	if err != nil {
		return "", err
	}
	fetcher.Repository = repo

	build := opts.Build()
	if build.BuildID == latestBuild {
		id, err := repo.LatestBuildID(ctx, build.BuildTarget)
		if err != nil {
			return "", fmt.Errorf("resolving latest build: %w", err)
		}
		logrus.Infof("Latest build of %s is %s", build.BuildTarget, id)
		build.BuildID = id
	}
	return fetcher.DownloadAndProcess(ctx, build, downloadDir)
}

// prepareDownloadDir confirms the download directory with the user. When
// nobody can answer, the directory is created and its free space checked.
func prepareDownloadDir(guard *disk.Guard, dir string, interactive bool) (string, error) {
	if interactive {
		return guard.ConfirmDownloadDir(dir)
	}
	dir = disk.ExpandPath(dir)
	if err := os.MkdirAll(dir, os.FileMode(0o755)); err != nil {
		return "", fmt.Errorf("creating download dir %s: %w", dir, err)
	}
	if err := guard.CheckSpace(dir); err != nil {
		return "", err
	}
	return dir, nil
}

func addCreateRemote(parentCmd *cobra.Command) {
	createRemoteCmd := &cobra.Command{
		Short: "Create a device instance on Google Compute Engine",
		Long: `cvdctl create remote

Creates a compute instance from the cuttlefish host image. The
instance fetches and launches the requested build when it boots.

	`,
		Use:               "remote",
		SilenceUsage:      false,
		PersistentPreRunE: initLogging,
	}
	opts := createRemoteOptions{buildOptions: addBuildFlags(createRemoteCmd)}

	createRemoteCmd.RunE = func(cmd *cobra.Command, _ []string) error {
		if err := opts.Validate(); err != nil {
			return fmt.Errorf("validating options: %w", err)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateRemote(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		spec, err := createRemote(cmd.Context(), cfg, &opts)
		if err != nil {
			return err
		}
		fmt.Println(spec.Name)
		return nil
	}

	createRemoteCmd.PersistentFlags().StringVar(
		&opts.kernelBranch,
		"kernel-branch",
		"",
		"branch of the kernel build to boot the device with",
	)
	createRemoteCmd.PersistentFlags().StringVar(
		&opts.kernelBuildID,
		"kernel-build-id",
		"",
		"kernel build id, requires --kernel-branch",
	)
	createRemoteCmd.PersistentFlags().StringVar(
		&opts.kernelBuildTarget,
		"kernel-build-target",
		"kernel",
		"kernel build target",
	)
	createRemoteCmd.PersistentFlags().Int64Var(
		&opts.blankDataDiskSize,
		"blank-data-disk-size",
		0,
		"size in GB of an extra blank data disk, 0 for none",
	)
	createRemoteCmd.PersistentFlags().StringVar(
		&opts.hwProperty,
		"hw-property",
		"",
		"hardware properties as key:value pairs, eg resolution:1080x1920,dpi:480",
	)
	createRemoteCmd.PersistentFlags().StringVar(
		&opts.name,
		"name",
		"",
		"instance name (default: generated from the build)",
	)
	createRemoteCmd.PersistentFlags().DurationVar(
		&opts.waitSSH,
		"wait-ssh",
		0,
		"wait up to this long for the instance to accept ssh connections, 0 to not wait",
	)

	parentCmd.AddCommand(createRemoteCmd)
}

func createRemote(ctx context.Context, cfg *config.Config, opts *createRemoteOptions) (*compute.InstanceSpec, error) {
	props, err := avd.ParseHWPropertyArgs(opts.hwProperty)
	if err != nil {
		return nil, fmt.Errorf("parsing hardware properties: %w", err)
	}
	resolution, err := compute.ParseResolution(cfg.Resolution)
	if err != nil {
		return nil, err
	}
	if resolution, err = resolution.WithHWProperties(props); err != nil {
		return nil, err
	}

	metadata, err := cfg.MetadataMap()
	if err != nil {
		return nil, err
	}

	backend, err := compute.NewGCE(ctx, cfg.Project)
	if err != nil {
		return nil, err
	}

	build := opts.Build()
	name := opts.name
	if name == "" {
		name = compute.GenerateInstanceName(build)
	}
	spec := compute.InstanceSpec{
		Name:         name,
		Image:        cfg.Image,
		ImageProject: cfg.ImageProject,
		MachineType:  cfg.MachineType,
		Network:      cfg.Network,
		Zone:         cfg.Zone,
		Metadata:     metadata,
	}
	if cfg.SSH.PublicKeyPath != "" {
		spec.SSHPublicKeyPath = disk.ExpandPath(cfg.SSH.PublicKeyPath)
	}

	created, err := compute.NewProvisioner(backend, resolution).CreateInstance(
		ctx, spec, build, opts.kernel(), opts.blankDataDiskSize,
	)
	if err != nil {
		return nil, err
	}

	if opts.waitSSH > 0 {
		ip, err := backend.GetInstanceIP(ctx, created.Name, created.Zone)
		if err != nil {
			return nil, err
		}
		client := newSSHClient(cfg, ip.External, ip.Internal, exec.NewRunner())
		if err := client.WaitForSSH(ctx, opts.waitSSH); err != nil {
			return nil, err
		}
	}
	return created, nil
}
