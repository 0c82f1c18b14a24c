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

package report

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStatus(t *testing.T) {
	r := New("delete")
	require.Equal(t, StatusSuccess, r.Status())
	require.NoError(t, r.Err())

	r.AddDeleted(TypeInstance, "local-instance-1")
	require.Equal(t, StatusSuccess, r.Status())
	require.NoError(t, r.Err())

	notFound := errors.New("instance not found")
	r.AddErr(notFound)
	r.AddError("Could not find stop_cvd")
	r.AddErr(nil)
	require.Equal(t, StatusFail, r.Status())
	require.Equal(t, []string{"instance not found", "Could not find stop_cvd"}, r.Errors)
	require.ErrorIs(t, r.Err(), notFound)
	require.Contains(t, r.Err().Error(), "Could not find stop_cvd")
	require.Len(t, r.Deleted, 1)
}

func TestWriteFile(t *testing.T) {
	r := New("delete")
	r.AddDeleted(TypeInstance, "ins-1")
	r.AddError("boom")
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "report.json")
	require.NoError(t, r.WriteFile(jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	doc := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, "delete", doc["command"])
	require.Equal(t, "FAIL", doc["status"])
	require.Equal(t, []any{"boom"}, doc["errors"])
	require.Equal(t, []any{map[string]any{"type": "instance", "name": "ins-1"}}, doc["deleted"])

	yamlPath := filepath.Join(dir, "report.yaml")
	require.NoError(t, r.WriteFile(yamlPath))
	data, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	ydoc := document{}
	require.NoError(t, yaml.Unmarshal(data, &ydoc))
	require.Equal(t, r.document(), ydoc)
}
