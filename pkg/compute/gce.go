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
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	gce "google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultMinimumSize is the smallest machine able to run a cuttlefish device
var DefaultMinimumSize = MachineSize{CPUs: 4, MemoryMb: 6144}

// NewGCE returns a backend creating instances in a Google Compute
// Engine project
func NewGCE(ctx context.Context, project string, opts ...option.ClientOption) (*GCE, error) {
	if project == "" {
		return nil, errors.New("compute engine backend needs a project")
	}
	service, err := gce.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating compute service: %w", err)
	}
	return &GCE{
		Project:     project,
		MinimumSize: DefaultMinimumSize,
		service:     service,
	}, nil
}

type GCE struct {
	Project     string
	MinimumSize MachineSize
	service     *gce.Service
}

func (g *GCE) GetImage(ctx context.Context, name, project string) (*Image, error) {
	if project == "" {
		project = g.Project
	}
	img, err := g.service.Images.Get(project, name).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting image %s/%s: %w", project, name, err)
	}
	return &Image{
		Name:       img.Name,
		Project:    project,
		SelfLink:   img.SelfLink,
		DiskSizeGb: img.DiskSizeGb,
	}, nil
}

// CheckMachineSize verifies the machine type is big enough for a device
// and that the region has CPU quota left for it
func (g *GCE) CheckMachineSize(ctx context.Context, machineType, zone string) error {
	mt, err := g.service.MachineTypes.Get(g.Project, zone, machineType).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting machine type %s: %w", machineType, err)
	}
	if mt.GuestCpus < g.MinimumSize.CPUs || mt.MemoryMb < g.MinimumSize.MemoryMb {
		return fmt.Errorf(
			"%w: %s has %d CPUs and %d MB, need %d CPUs and %d MB", ErrMachineTooSmall,
			machineType, mt.GuestCpus, mt.MemoryMb, g.MinimumSize.CPUs, g.MinimumSize.MemoryMb,
		)
	}

	region := regionFromZone(zone)
	r, err := g.service.Regions.Get(g.Project, region).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("getting region %s: %w", region, err)
	}
	for _, q := range r.Quotas {
		if q.Metric != "CPUS" {
			continue
		}
		if available := q.Limit - q.Usage; available < float64(mt.GuestCpus) {
			return fmt.Errorf(
				"%w: %s needs %d CPUs, %.0f available in %s", ErrQuotaExceeded,
				machineType, mt.GuestCpus, available, region,
			)
		}
	}
	return nil
}

func (g *GCE) CreateInstance(ctx context.Context, req *InstanceRequest) error {
	inst := &gce.Instance{
		Name:        req.Name,
		MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", req.Zone, req.MachineType),
		NetworkInterfaces: []*gce.NetworkInterface{{
			Network: "global/networks/" + req.Network,
			AccessConfigs: []*gce.AccessConfig{{
				Name: "External NAT",
				Type: "ONE_TO_ONE_NAT",
			}},
		}},
		Metadata: &gce.Metadata{},
	}
	for _, d := range req.Disks {
		inst.Disks = append(inst.Disks, &gce.AttachedDisk{
			Type:       d.Type,
			Mode:       d.Mode,
			Boot:       d.Boot,
			AutoDelete: d.AutoDelete,
			InitializeParams: &gce.AttachedDiskInitializeParams{
				DiskName:    d.DiskName,
				SourceImage: d.SourceImage,
				DiskSizeGb:  d.DiskSizeGb,
			},
		})
	}

	keys := []string{}
	for k := range req.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := req.Metadata[k]
		inst.Metadata.Items = append(inst.Metadata.Items, &gce.MetadataItems{Key: k, Value: &v})
	}

	logrus.WithField("backend", "gce").Infof("Creating instance %s in %s", req.Name, req.Zone)
	op, err := g.service.Instances.Insert(g.Project, req.Zone, inst).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("inserting instance %s: %w", req.Name, err)
	}
	if err := g.waitForOperation(ctx, req.Zone, op); err != nil {
		return fmt.Errorf("creating instance %s: %w", req.Name, err)
	}
	return nil
}

func (g *GCE) DeleteInstance(ctx context.Context, name, zone string) error {
	logrus.WithField("backend", "gce").Infof("Deleting instance %s in %s", name, zone)
	op, err := g.service.Instances.Delete(g.Project, zone, name).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s: %w", ErrInstanceNotFound, name, err)
		}
		return fmt.Errorf("deleting instance %s: %w", name, err)
	}
	if err := g.waitForOperation(ctx, zone, op); err != nil {
		return fmt.Errorf("deleting instance %s: %w", name, err)
	}
	return nil
}

func (g *GCE) GetInstanceIP(ctx context.Context, name, zone string) (*IP, error) {
	inst, err := g.service.Instances.Get(g.Project, zone, name).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrInstanceNotFound, name, err)
		}
		return nil, fmt.Errorf("getting instance %s: %w", name, err)
	}
	ip := &IP{}
	if len(inst.NetworkInterfaces) > 0 {
		nic := inst.NetworkInterfaces[0]
		ip.Internal = nic.NetworkIP
		if len(nic.AccessConfigs) > 0 {
			ip.External = nic.AccessConfigs[0].NatIP
		}
	}
	return ip, nil
}

// waitForOperation blocks until a zone operation is done and returns the
// errors it recorded
func (g *GCE) waitForOperation(ctx context.Context, zone string, op *gce.Operation) error {
	for op.Status != "DONE" {
		logrus.WithField("backend", "gce").Debugf("Waiting for operation %s (%s)", op.Name, op.Status)
		var err error
		op, err = g.service.ZoneOperations.Wait(g.Project, zone, op.Name).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("waiting for operation: %w", err)
		}
	}
	if op.Error != nil && len(op.Error.Errors) > 0 {
		msgs := []string{}
		for _, e := range op.Error.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Code, e.Message))
		}
		return fmt.Errorf("operation %s failed: %s", op.Name, strings.Join(msgs, "; "))
	}
	return nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// regionFromZone turns us-central1-b into us-central1
func regionFromZone(zone string) string {
	if i := strings.LastIndex(zone, "-"); i > 0 {
		return zone[:i]
	}
	return zone
}
