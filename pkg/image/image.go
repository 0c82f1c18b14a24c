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

package image

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"sigs.k8s.io/release-utils/helpers"

	"sigs.k8s.io/cvdctl/pkg/exec"
)

const (
	BootImage = "boot.img"

	DefaultUnpackTool = "/usr/lib/cuttlefish-common/bin/unpack_boot_image.py"
	DefaultACLGroup   = "libvirt-qemu"
)

// RequiredImageFiles must exist in an extraction directory before a
// device can boot from it. Order matters: it is the order files are
// checked and permission fixed.
var RequiredImageFiles = []string{
	"cache.img", "cmdline", "kernel", "ramdisk.img", "system.img", "userdata.img", "vendor.img",
}

var (
	ErrBootImageMissing = errors.New("boot image missing")
	ErrUnpackFailed     = errors.New("unpack failed")
	ErrPathMissing      = errors.New("path missing")
	ErrACLFailed        = errors.New("setting file ACL failed")
)

// Unpacker splits boot.img into kernel and ramdisk using the cuttlefish
// unpack tool
type Unpacker struct {
	Tool   string
	runner *exec.Runner
}

func NewUnpacker(runner *exec.Runner, tool string) *Unpacker {
	if tool == "" {
		tool = DefaultUnpackTool
	}
	return &Unpacker{Tool: tool, runner: runner}
}

// Unpack unpacks extractDir/boot.img into extractDir
func (u *Unpacker) Unpack(extractDir string) error {
	bootImg := filepath.Join(extractDir, BootImage)
	if !helpers.Exists(bootImg) {
		return fmt.Errorf("%w: %s does not exist in %s", ErrBootImageMissing, BootImage, extractDir)
	}

	logrus.Info("Start to unpack boot.img.")
	if _, err := u.runner.RunSuccess(
		fmt.Sprintf("%s -boot_img %s -dest %s", u.Tool, bootImg, extractDir),
	); err != nil {
		return fmt.Errorf("%w: %w", ErrUnpackFailed, err)
	}
	logrus.Info("Unpack boot.img complete!")
	return nil
}

// ACLFixer grants a group read/write access to the image files so
// libvirt keeps access to them whatever the user does later
type ACLFixer struct {
	Group  string
	runner *exec.Runner
}

func NewACLFixer(runner *exec.Runner, group string) *ACLFixer {
	if group == "" {
		group = DefaultACLGroup
	}
	return &ACLFixer{Group: group, runner: runner}
}

// FixACL sets the ACL of every required image file. The first missing
// file or failed setfacl call aborts the run.
func (f *ACLFixer) FixACL(extractDir string) error {
	logrus.Infof("Start to acl files: %v", RequiredImageFiles)
	for _, name := range RequiredImageFiles {
		path := filepath.Join(extractDir, name)
		if !helpers.Exists(path) {
			return fmt.Errorf("%w: %s", ErrPathMissing, path)
		}
		if _, err := f.runner.RunSuccess(
			fmt.Sprintf("setfacl -m g:%s:rw %s", f.Group, path),
		); err != nil {
			return fmt.Errorf("%w: %w", ErrACLFailed, err)
		}
	}
	logrus.Info("ACL files completed!")
	return nil
}
