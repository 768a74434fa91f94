package atomicio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")

	in := map[string]int{"a": 1, "b": 2}
	require.NoError(t, WriteJSON(path, in))

	var out map[string]int
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, in, out)
}

func TestWriteFileLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	require.NoError(t, WriteFile(path, []byte(`[]`)))
	require.NoError(t, WriteFile(path, []byte(`[1]`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data.json", entries[0].Name())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1]`), data)
}

func TestReadJSONMissingFile(t *testing.T) {
	var out []int
	err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &out)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
