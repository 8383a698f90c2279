package semantic

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gigsearch/internal/embedder"
)

func TestVectorFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "v.vec")
	in := map[int64][]float32{
		7:  {0.6, 0.8, 0},
		-1: {0, 0, 1},
		3:  {1, 0, 0},
	}
	require.NoError(t, writeVectorFile(path, 3, in))

	dim, out, err := readVectorFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
	assert.Equal(t, in, out)

	// header plus three rows of id and three floats
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(24+3*(8+12)), info.Size())
}

func TestVectorFileRejectsWrongDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.vec")
	err := writeVectorFile(path, 3, map[int64][]float32{1: {1, 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, statErr := os.Stat(path)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestVectorFileCorruption(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.vec")
	require.NoError(t, writeVectorFile(good, 2, map[int64][]float32{1: {1, 0}, 2: {0, 1}}))
	data, err := os.ReadFile(good)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), data[4:]...)},
		{"truncated", data[:len(data)-3]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".vec")
			require.NoError(t, os.WriteFile(path, tt.data, 0o644))
			_, _, err := readVectorFile(path)
			assert.ErrorIs(t, err, ErrCorruptFile)
		})
	}
}

func TestIdentityFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")

	_, err := ReadIdentity(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	want := embedder.Identity{Provider: "jina", Model: "jina-embeddings-v3", Dimension: 1024}
	require.NoError(t, WriteIdentity(path, want))
	got, err := ReadIdentity(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, os.WriteFile(path, []byte(`{"dimension": 3}`), 0o644))
	_, err = ReadIdentity(path)
	assert.ErrorIs(t, err, ErrCorruptFile)
}
