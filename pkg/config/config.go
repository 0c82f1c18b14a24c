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

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"sigs.k8s.io/cvdctl/pkg/compute"
	"sigs.k8s.io/cvdctl/pkg/disk"
	"sigs.k8s.io/cvdctl/pkg/exec"
	"sigs.k8s.io/cvdctl/pkg/image"
	"sigs.k8s.io/cvdctl/pkg/ssh"
)

const (
	EnvPrefix  = "CVDCTL"
	configName = "config"
)

// ErrMissingDependency is returned when a host tool needed by a command
// is not installed
var ErrMissingDependency = errors.New("missing host dependency")

var ErrMalformedMetadata = errors.New("malformed metadata entry")

// Default search path of the configuration file
var SearchPaths = []string{
	"$HOME/.config/cvdctl",
	"/etc/cvdctl",
}

// Host tools each local operation runs
var (
	LocalCreateDependencies   = []string{"setfacl"}
	LocalInstanceDependencies = []string{"pgrep", "pkill", "readlink"}
	GoldfishDependencies      = []string{"adb"}
)

var remediation = map[string]string{
	"setfacl":  "install the acl package",
	"pgrep":    "install the procps package",
	"pkill":    "install the procps package",
	"readlink": "install coreutils",
	"adb":      "install the android platform tools",
	"ssh":      "install the openssh client",
	"scp":      "install the openssh client",
}

type Config struct {
	Project            string   `mapstructure:"project"`
	Zone               string   `mapstructure:"zone"`
	MachineType        string   `mapstructure:"machine_type"`
	Network            string   `mapstructure:"network"`
	Image              string   `mapstructure:"image"`
	ImageProject       string   `mapstructure:"image_project"`
	Resolution         string   `mapstructure:"resolution"`
	ArtifactRepository string   `mapstructure:"artifact_repository"`
	DownloadDir        string   `mapstructure:"download_dir"`
	LocalInstanceRoot  string   `mapstructure:"local_instance_root"`
	ACLGroup           string   `mapstructure:"acl_group"`
	UnpackTool         string   `mapstructure:"unpack_tool"`
	Metadata           []string `mapstructure:"metadata"`
	SSH                SSH      `mapstructure:"ssh"`
}

type SSH struct {
	User             string `mapstructure:"user"`
	PrivateKeyPath   string `mapstructure:"private_key_path"`
	PublicKeyPath    string `mapstructure:"public_key_path"`
	ExtraArgs        string `mapstructure:"extra_args"`
	Bin              string `mapstructure:"bin"`
	SCPBin           string `mapstructure:"scp_bin"`
	ReportInternalIP bool   `mapstructure:"report_internal_ip"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project", "")
	v.SetDefault("zone", "us-central1-b")
	v.SetDefault("machine_type", "n1-standard-4")
	v.SetDefault("network", "default")
	v.SetDefault("image", "")
	v.SetDefault("image_project", "")
	v.SetDefault("resolution", "720x1280x32x320")
	v.SetDefault("artifact_repository", "gs://android-build/builds")
	v.SetDefault("download_dir", filepath.Join("$HOME", "Downloads"))
	v.SetDefault("local_instance_root", "/tmp/acloud_cvd_temp")
	v.SetDefault("acl_group", image.DefaultACLGroup)
	v.SetDefault("unpack_tool", image.DefaultUnpackTool)
	v.SetDefault("metadata", []string{})
	v.SetDefault("ssh.user", "vsoc-01")
	v.SetDefault("ssh.private_key_path", filepath.Join("$HOME", ".ssh", "id_rsa"))
	v.SetDefault("ssh.public_key_path", "")
	v.SetDefault("ssh.extra_args", "")
	v.SetDefault("ssh.bin", ssh.SSHBin)
	v.SetDefault("ssh.scp_bin", ssh.SCPBin)
	v.SetDefault("ssh.report_internal_ip", false)
}

// Load reads the configuration. When configFile is empty the default
// search path is used and a missing file is not an error. Environment
// variables (CVDCTL_ZONE, CVDCTL_SSH_USER...) override the file.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		for _, p := range SearchPaths {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every command relies on
func (c *Config) Validate() error {
	errs := []error{}
	if c.Zone == "" {
		errs = append(errs, errors.New("zone is not set"))
	}
	if c.MachineType == "" {
		errs = append(errs, errors.New("machine type is not set"))
	}
	if c.DownloadDir == "" {
		errs = append(errs, errors.New("download dir is not set"))
	}
	if _, err := compute.ParseResolution(c.Resolution); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.MetadataMap(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MetadataMap parses the KEY=value metadata entries. They are a list
// because viper lowercases map keys and instance metadata keys are case
// sensitive.
func (c *Config) MetadataMap() (map[string]string, error) {
	md := map[string]string{}
	for _, entry := range c.Metadata {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q, expected KEY=value", ErrMalformedMetadata, entry)
		}
		md[key] = value
	}
	return md, nil
}

// ValidateRemote checks the settings needed to create remote instances
func (c *Config) ValidateRemote() error {
	errs := []error{c.Validate()}
	if c.Project == "" {
		errs = append(errs, errors.New("project is not set"))
	}
	if c.Image == "" {
		errs = append(errs, errors.New("host image is not set"))
	}
	return errors.Join(errs...)
}

// RemoteHost returns the ssh settings for a host at ip
func (c *Config) RemoteHost(externalIP, internalIP string) ssh.RemoteHost {
	return ssh.RemoteHost{
		ExternalIP:       externalIP,
		InternalIP:       internalIP,
		User:             c.SSH.User,
		PrivateKeyPath:   disk.ExpandPath(c.SSH.PrivateKeyPath),
		ExtraArgs:        c.SSH.ExtraArgs,
		ReportInternalIP: c.SSH.ReportInternalIP,
	}
}

// CheckHostDependencies returns an ErrMissingDependency for every binary
// not found in $PATH
func CheckHostDependencies(runner *exec.Runner, binaries ...string) error {
	errs := []error{}
	for _, b := range binaries {
		if runner.Available(b) {
			continue
		}
		hint := remediation[filepath.Base(b)]
		if hint == "" {
			hint = "install it and make sure it is in $PATH"
		}
		errs = append(errs, fmt.Errorf("%w: %s not found, %s", ErrMissingDependency, b, hint))
	}
	return errors.Join(errs...)
}
