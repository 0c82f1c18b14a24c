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

package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// NewGCS returns a driver reading builds from a cloud storage bucket.
// specURL is gs://bucket[/prefix]; builds are expected under
// <prefix>/<target>/<buildID>/.
func NewGCS(ctx context.Context, specURL string, opts ...option.ClientOption) (*GCS, error) {
	bucket, prefix, err := parseGCSObjectURL(specURL)
	if err != nil {
		return nil, fmt.Errorf("parsing SpecURL %s: %w", specURL, err)
	}
	if bucket == "" {
		return nil, fmt.Errorf("gcs repository %s has no bucket defined", specURL)
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	logrus.WithField("driver", "gcs").Debugf("GCS driver init: Bucket: %s Path: %s", bucket, prefix)
	return &GCS{
		Bucket: bucket,
		Path:   strings.Trim(prefix, "/"),
		client: client,
	}, nil
}

type GCS struct {
	Bucket string
	Path   string
	client *storage.Client
}

// ObjectURL returns the gs:// URL of an artifact of a build
func (gcs *GCS) ObjectURL(target, buildID, name string) string {
	return fmt.Sprintf("gs://%s/%s", gcs.Bucket, path.Join(gcs.Path, target, buildID, name))
}

// DownloadArtifact copies an artifact of a build into w
func (gcs *GCS) DownloadArtifact(ctx context.Context, target, buildID, name string, w io.Writer) error {
	objectURL := gcs.ObjectURL(target, buildID, name)
	logrus.WithField("driver", "gcs").Infof("Downloading %s", objectURL)
	if err := downloadGCSObject(ctx, gcs.client, objectURL, w); err != nil {
		return fmt.Errorf("downloading %s: %w", name, err)
	}
	return nil
}

// LatestBuildID lists the build prefixes of a target and returns the
// highest numeric build id
func (gcs *GCS) LatestBuildID(ctx context.Context, target string) (string, error) {
	prefix := path.Join(gcs.Path, target) + "/"
	it := gcs.client.Bucket(gcs.Bucket).Objects(ctx, &storage.Query{
		Delimiter: "/",
		Prefix:    prefix,
	})

	names := []string{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("listing builds of %s: %w", target, err)
		}
		// Only prefixes ("directories") are builds
		if attrs.Name != "" {
			continue
		}
		names = append(names, path.Base(strings.TrimSuffix(attrs.Prefix, "/")))
	}

	id, err := latestBuildID(names)
	if err != nil {
		return "", fmt.Errorf("gs://%s/%s: %w", gcs.Bucket, prefix, err)
	}
	return id, nil
}

func parseGCSObjectURL(objectURL string) (bucket, objectPath string, err error) {
	u, err := url.Parse(objectURL)
	if err != nil {
		return bucket, objectPath, fmt.Errorf("parsing GCS object URL: %w", err)
	}
	if u.Scheme != "gs" {
		return bucket, objectPath, errors.New("url is not a cloud storage URL")
	}
	return u.Hostname(), u.Path, nil
}

func downloadGCSObject(ctx context.Context, client *storage.Client, objectURL string, w io.Writer) error {
	bucket, objectPath, err := parseGCSObjectURL(objectURL)
	if err != nil {
		return fmt.Errorf("parsing GCS url: %w", err)
	}

	rc, err := client.Bucket(bucket).Object(strings.TrimPrefix(objectPath, "/")).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("creating bucket reader: %w", err)
	}
	defer rc.Close()
	var b int64
	if b, err = io.Copy(w, rc); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	logrus.Debugf("Wrote %d bytes from %s", b, objectURL)
	return nil
}
