package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const roadLayer = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"GID":1,"BLOCK_NAME":"LANJA","RATNAGIRI_FINAL_TOTAL_LENGTH":"7.5","RATNAGIRI_FINAL_CURRENT_STATUS":"Work done"},
  "geometry":{"type":"LineString","coordinates":[[73.50,16.85],[73.52,16.86]]}},
 {"type":"Feature","properties":{"GID":2,"BLOCK_NAME":"RAJAPUR","RATNAGIRI_FINAL_TOTAL_LENGTH":"12","RATNAGIRI_FINAL_CURRENT_STATUS":"in progress"},
  "geometry":{"type":"LineString","coordinates":[[73.55,16.65],[73.56,16.66]]}},
 {"type":"Feature","properties":{"GID":3,"BLOCK_NAME":"LANJA","RATNAGIRI_FINAL_TOTAL_LENGTH":"2","RATNAGIRI_FINAL_CURRENT_STATUS":"in progress"},
  "geometry":{"type":"LineString","coordinates":[[73.51,16.87],[73.53,16.88]]}}]}`

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCategories(t *testing.T) {
	out, _, err := run(t, "categories")
	require.NoError(t, err)
	assert.Contains(t, out, "Road Length")
	assert.Contains(t, out, "Expenditure exceeds Approved Amount")
}

func TestLabelsOffline(t *testing.T) {
	out, _, err := run(t, "--offline", "labels", "Block Name")
	require.NoError(t, err)
	assert.Equal(t, "LANJA\nRAJAPUR\nRATNAGIRI\nSANGAMESHWAR\n", out)
}

func TestCompileOffline(t *testing.T) {
	out, _, err := run(t, "--offline", "compile", "Road Length", "--op", "Greater than", "--value", "5", "--region", "LANJA")
	require.NoError(t, err)
	var got struct {
		SQL  string `json:"sql"`
		Args []any  `json:"args"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Contains(t, got.SQL, `"ratnagiri_final_total_length" > $1`)
	assert.Equal(t, []any{5.0, "LANJA"}, got.Args)
}

func TestCompileOfflineRejectsOthersLabel(t *testing.T) {
	_, _, err := run(t, "--offline", "compile", "Current Status", "--label", "Delayed")
	assert.Error(t, err)
}

func TestFilterLayerOffline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roads.geojson")
	require.NoError(t, os.WriteFile(path, []byte(roadLayer), 0o644))

	out, errOut, err := run(t, "--offline", "filter", "Current Status", "--label", "In Progress", "--region", "LANJA", "--layer", path)
	require.NoError(t, err)
	assert.Equal(t, "1 of 3 roads\n", errOut)
	var fc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &fc))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, 3.0, fc.Features[0].Properties["GID"])

	_, _, err = run(t, "--offline", "filter", "Road Length", "--op", "Greater than", "--value", "5")
	assert.Error(t, err, "--offline without --layer")
}
