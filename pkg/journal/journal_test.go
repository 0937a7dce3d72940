package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterWritesJSONUnderDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	w := NewWriter(dir)

	type record struct {
		Name string `json:"name"`
	}

	path, err := w.Write("r1.json", record{Name: "first"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "r1.json"), path)
	require.Equal(t, 1, w.Count())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got record
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "first", got.Name)
}

func TestWriterDefaultsDir(t *testing.T) {
	w := NewWriter("")
	require.Equal(t, "journal", w.Dir())
}

func TestWriterCountsAcrossWrites(t *testing.T) {
	w := NewWriter(t.TempDir())
	_, err := w.Write("a.json", map[string]int{"x": 1})
	require.NoError(t, err)
	_, err = w.Write("b.json", map[string]int{"x": 2})
	require.NoError(t, err)
	require.Equal(t, 2, w.Count())
}
