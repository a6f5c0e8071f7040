package commands

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportJSONL(t *testing.T) {
	path := writeCapture(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, RunExport(path, "jsonl", out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 6)
	assert.Equal(t, testEndpoint, lines[0]["Endpoint"])
	assert.NotNil(t, lines[4]["Tag"])
}

func TestExportCSV(t *testing.T) {
	path := writeCapture(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, RunExport(path, "csv", out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 7)
	assert.Equal(t, csvHeader, rows[0])

	assert.Equal(t, "REQUEST", rows[2][7])
	assert.Equal(t, "7", rows[2][8])
	assert.Equal(t, "10.0.0.5:4841", rows[2][6])
	assert.Equal(t, "Tag CREATED", rows[5][7])
	assert.Equal(t, "Line1.Temperature", rows[5][9])
	assert.Equal(t, "ENGINE", rows[5][3])
}

func TestExportUnknownFormat(t *testing.T) {
	path := writeCapture(t, sampleEvents())
	err := RunExport(path, "xml", "")
	assert.ErrorContains(t, err, "unknown format")
}
