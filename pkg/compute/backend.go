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
	"errors"
)

var (
	ErrMachineTooSmall  = errors.New("machine type does not meet the minimum requirements")
	ErrQuotaExceeded    = errors.New("not enough quota")
	ErrInstanceNotFound = errors.New("instance not found")
)

// Backend is a cloud compute provider able to host a device
type Backend interface {
	GetImage(ctx context.Context, name, project string) (*Image, error)
	CheckMachineSize(ctx context.Context, machineType, zone string) error
	CreateInstance(ctx context.Context, req *InstanceRequest) error
	DeleteInstance(ctx context.Context, name, zone string) error
	GetInstanceIP(ctx context.Context, name, zone string) (*IP, error)
}

// Image is a disk image instances boot from
type Image struct {
	Name       string
	Project    string
	SelfLink   string
	DiskSizeGb int64
}

// MachineSize is the minimum shape an instance needs to run a device
type MachineSize struct {
	CPUs     int64
	MemoryMb int64
}

const (
	DiskTypePersistent = "PERSISTENT"
	DiskModeReadWrite  = "READ_WRITE"
)

type Disk struct {
	Type        string
	Mode        string
	Boot        bool
	AutoDelete  bool
	DiskName    string
	SourceImage string
	DiskSizeGb  int64
}

// InstanceRequest is what the provisioner submits to the backend
type InstanceRequest struct {
	Name        string
	Zone        string
	MachineType string
	Network     string
	Disks       []Disk
	Metadata    map[string]string
}

type IP struct {
	External string
	Internal string
}
