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

package compute

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"sigs.k8s.io/cvdctl/pkg/avd"
)

// Metadata keys read by the cuttlefish host image on boot
const (
	MetadataXRes              = "cvd_01_x_res"
	MetadataYRes              = "cvd_01_y_res"
	MetadataDPI               = "cvd_01_dpi"
	MetadataBuildTarget       = "cvd_01_fetch_android_build_target"
	MetadataBuildID           = "cvd_01_fetch_android_bid"
	MetadataKernelBuildID     = "cvd_01_fetch_kernel_bid"
	MetadataLaunch            = "cvd_01_launch"
	MetadataDataPolicy        = "cvd_01_data_policy"
	MetadataBlankDataDiskSize = "cvd_01_blank_data_disk_size"
	MetadataSSHKeys           = "sshKeys"

	DataPolicyCreateIfMissing = "create_if_missing"
)

// InstanceSpec describes the instance to create
type InstanceSpec struct {
	Name             string
	Image            string
	ImageProject     string
	BootDiskSizeGb   int64
	MachineType      string
	Network          string
	Zone             string
	Metadata         map[string]string
	SSHPublicKeyPath string
}

// Provisioner turns an instance spec and a build into a device
// instance on a compute backend
type Provisioner struct {
	Backend    Backend
	Resolution Resolution
	localUser  func() (string, error)
}

func NewProvisioner(backend Backend, resolution Resolution) *Provisioner {
	return &Provisioner{
		Backend:    backend,
		Resolution: resolution,
		localUser:  currentUser,
	}
}

func currentUser() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("getting current user: %w", err)
	}
	return u.Username, nil
}

// CreateInstance creates the instance and returns the spec as submitted,
// with the disk size and metadata filled in. kernel is optional.
func (p *Provisioner) CreateInstance(
	ctx context.Context, spec InstanceSpec, build avd.BuildCoordinate, kernel *avd.BuildCoordinate, blankDataDiskSizeGb int64,
) (*InstanceSpec, error) {
	if err := p.Backend.CheckMachineSize(ctx, spec.MachineType, spec.Zone); err != nil {
		return nil, fmt.Errorf("checking machine size: %w", err)
	}

	img, err := p.Backend.GetImage(ctx, spec.Image, spec.ImageProject)
	if err != nil {
		return nil, fmt.Errorf("getting image: %w", err)
	}
	spec.BootDiskSizeGb = img.DiskSizeGb + blankDataDiskSizeGb

	metadata, err := p.buildMetadata(spec, build, kernel, blankDataDiskSizeGb)
	if err != nil {
		return nil, err
	}
	spec.Metadata = metadata

	req := &InstanceRequest{
		Name:        spec.Name,
		Zone:        spec.Zone,
		MachineType: spec.MachineType,
		Network:     spec.Network,
		Disks: []Disk{{
			Type:        DiskTypePersistent,
			Mode:        DiskModeReadWrite,
			Boot:        true,
			AutoDelete:  true,
			DiskName:    spec.Name,
			SourceImage: img.SelfLink,
			DiskSizeGb:  spec.BootDiskSizeGb,
		}},
		Metadata: metadata,
	}
	if err := p.Backend.CreateInstance(ctx, req); err != nil {
		return nil, fmt.Errorf("creating instance: %w", err)
	}
	logrus.WithField("instance", spec.Name).Info("Instance created")
	return &spec, nil
}

func (p *Provisioner) buildMetadata(
	spec InstanceSpec, build avd.BuildCoordinate, kernel *avd.BuildCoordinate, blankDataDiskSizeGb int64,
) (map[string]string, error) {
	metadata := map[string]string{}
	for k, v := range spec.Metadata {
		metadata[k] = v
	}

	metadata[MetadataXRes] = strconv.Itoa(p.Resolution.X)
	metadata[MetadataYRes] = strconv.Itoa(p.Resolution.Y)
	metadata[MetadataDPI] = strconv.Itoa(p.Resolution.DPI)
	metadata[MetadataBuildTarget] = build.BuildTarget
	metadata[MetadataBuildID] = build.FetchReference()
	if kernel != nil && kernel.Branch != "" && kernel.BuildID != "" {
		metadata[MetadataKernelBuildID] = kernel.FetchReference()
	}
	metadata[MetadataLaunch] = "1"

	if blankDataDiskSizeGb > 0 {
		metadata[MetadataDataPolicy] = DataPolicyCreateIfMissing
		metadata[MetadataBlankDataDiskSize] = strconv.FormatInt(blankDataDiskSizeGb*1024, 10)
	}

	if spec.SSHPublicKeyPath == "" {
		logrus.Warn(
			"No ssh public key configured, only the project-wide ssh key will be able to log into the instance",
		)
		return metadata, nil
	}
	entry, err := p.sshKeyEntry(spec.SSHPublicKeyPath)
	if err != nil {
		return nil, err
	}
	metadata[MetadataSSHKeys] = entry
	return metadata, nil
}

// sshKeyEntry reads and validates a public key and returns it in the
// user:key form the metadata server expects
func (p *Provisioner) sshKeyEntry(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading ssh public key: %w", err)
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey(data); err != nil {
		return "", fmt.Errorf("parsing ssh public key %s: %w", path, err)
	}
	username, err := p.localUser()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", username, strings.TrimSpace(string(data))), nil
}
