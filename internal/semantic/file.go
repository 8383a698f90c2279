package semantic

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/dshills/gigsearch/internal/embedder"
)

var fileMagic = [4]byte{'G', 'S', 'V', 'I'}

const fileVersion uint32 = 1

// ErrCorruptFile is returned for vector files that cannot be decoded
var ErrCorruptFile = errors.New("corrupt vector file")

type fileHeader struct {
	Magic   [4]byte
	Version uint32
	Dim     uint32
	Count   uint64
}

func writeVectorFile(path string, dim int, vectors map[int64][]float32) error {
	ids := make([]int64, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var buf bytes.Buffer
	buf.Grow(24 + len(ids)*(8+4*dim))
	hdr := fileHeader{Magic: fileMagic, Version: fileVersion, Dim: uint32(dim), Count: uint64(len(ids))}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return err
	}
	row := make([]byte, 8+4*dim)
	for _, id := range ids {
		v := vectors[id]
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimensionMismatch, id, len(v), dim)
		}
		binary.LittleEndian.PutUint64(row, uint64(id))
		for i, f := range v {
			binary.LittleEndian.PutUint32(row[8+i*4:], math.Float32bits(f))
		}
		buf.Write(row)
	}
	return atomicWrite(path, buf.Bytes())
}

func readVectorFile(path string) (int, map[int64][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return 0, nil, fmt.Errorf("%w: header: %v", ErrCorruptFile, err)
	}
	if hdr.Magic != fileMagic {
		return 0, nil, fmt.Errorf("%w: bad magic %q", ErrCorruptFile, hdr.Magic[:])
	}
	if hdr.Version != fileVersion {
		return 0, nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptFile, hdr.Version)
	}

	dim := int(hdr.Dim)
	info, err := f.Stat()
	if err != nil {
		return 0, nil, err
	}
	// reject counts the file cannot hold before allocating
	rowSize := int64(8 + 4*dim)
	if int64(hdr.Count) > (info.Size()-24)/rowSize {
		return 0, nil, fmt.Errorf("%w: count %d exceeds file size", ErrCorruptFile, hdr.Count)
	}

	vectors := make(map[int64][]float32, hdr.Count)
	row := make([]byte, rowSize)
	for n := uint64(0); n < hdr.Count; n++ {
		if _, err := io.ReadFull(r, row); err != nil {
			return 0, nil, fmt.Errorf("%w: row %d: %v", ErrCorruptFile, n, err)
		}
		id := int64(binary.LittleEndian.Uint64(row))
		v := make([]float32, dim)
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(row[8+i*4:]))
		}
		vectors[id] = v
	}
	return dim, vectors, nil
}

// ReadIdentity reads the model file. A missing file returns an error wrapping os.ErrNotExist.
func ReadIdentity(path string) (embedder.Identity, error) {
	var id embedder.Identity
	data, err := os.ReadFile(path)
	if err != nil {
		return id, err
	}
	if err := json.Unmarshal(data, &id); err != nil {
		return id, fmt.Errorf("%w: model file: %v", ErrCorruptFile, err)
	}
	if id.Provider == "" || id.Model == "" {
		return id, fmt.Errorf("%w: model file lacks provider or model", ErrCorruptFile)
	}
	return id, nil
}

// WriteIdentity atomically writes the model file
func WriteIdentity(path string, id embedder.Identity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return atomicWrite(path, data)
}

// atomicWrite writes data to a temp file in the target directory and renames
// it into place, so readers see either the old or the new file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
