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

package artifact

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"sigs.k8s.io/cvdctl/pkg/artifact/driver"
)

// Repository is a remote build store the fetcher downloads artifacts from
type Repository interface {
	DownloadArtifact(ctx context.Context, target, buildID, name string, w io.Writer) error
	LatestBuildID(ctx context.Context, target string) (string, error)
}

// NewRepository returns the repository driver matching the scheme of
// specURL (gs:// or file://)
func NewRepository(ctx context.Context, specURL string) (Repository, error) {
	u, err := url.Parse(specURL)
	if err != nil {
		return nil, fmt.Errorf("parsing repository URL %s: %w", specURL, err)
	}
	var repo Repository
	switch u.Scheme {
	case "gs":
		repo, err = driver.NewGCS(ctx, specURL)
		if err != nil {
			return nil, fmt.Errorf("creating gcs repository: %w", err)
		}
	case "file":
		repo, err = driver.NewDirectory(specURL)
		if err != nil {
			return nil, fmt.Errorf("creating directory repository: %w", err)
		}
	default:
		return nil, fmt.Errorf("%s is not a supported repository URL", specURL)
	}
	return repo, nil
}
