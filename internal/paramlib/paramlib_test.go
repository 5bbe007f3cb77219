package paramlib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"industrial-4.0-demo/internal/slmerr"
)

func writeDoc(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buildstyles.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_ValidDocument(t *testing.T) {
	path := writeDoc(t, `{
		"buildStyles": [
			{"id": 1, "name": "contour", "laserPower": 180.5, "laserSpeed": 900},
			{"id": 8, "name": "fallback", "laserPower": 100, "laserSpeed": 600}
		]
	}`)

	lib, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, lib.Count())

	style := lib.GetByID(1)
	require.NotNil(t, style)
	assert.Equal(t, "contour", style.Name)
	assert.Equal(t, 180.5, style.LaserPowerW)

	assert.NotNil(t, lib.GetForGeometryType(8))
	assert.Nil(t, lib.GetByID(99))
	assert.Nil(t, lib.GetForGeometryType(99))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
	var cfgErr *slmerr.ConfigInvalid
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := writeDoc(t, `{not valid json`)
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *slmerr.ConfigInvalid
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoad_RejectsInvalidBuildStyle(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"zero_id", `{"buildStyles": [{"id": 0, "name": "x", "laserPower": 100, "laserSpeed": 100}]}`},
		{"empty_name", `{"buildStyles": [{"id": 1, "name": "", "laserPower": 100, "laserSpeed": 100}]}`},
		{"zero_power", `{"buildStyles": [{"id": 1, "name": "x", "laserPower": 0, "laserSpeed": 100}]}`},
		{"zero_speed", `{"buildStyles": [{"id": 1, "name": "x", "laserPower": 100, "laserSpeed": 0}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeDoc(t, tc.doc)
			_, err := Load(path)
			require.Error(t, err)
			var cfgErr *slmerr.ConfigInvalid
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestLoad_EmptyDocumentIsValid(t *testing.T) {
	path := writeDoc(t, `{"buildStyles": []}`)
	lib, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, lib.Count())
}

func TestGetByID_ReturnsCopyNotAlias(t *testing.T) {
	path := writeDoc(t, `{"buildStyles": [{"id": 1, "name": "x", "laserPower": 100, "laserSpeed": 100}]}`)
	lib, err := Load(path)
	require.NoError(t, err)

	a := lib.GetByID(1)
	b := lib.GetByID(1)
	require.NotNil(t, a)
	require.NotNil(t, b)
	a.Name = "mutated"
	assert.Equal(t, "x", b.Name, "GetByID must return independent copies, not pointers into shared state")
}
