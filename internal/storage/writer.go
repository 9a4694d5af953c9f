package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/coffersTech/nanodoc/internal/engine"
	"github.com/klauspost/compress/zstd"
)

// NanoDoc snapshot header
var MagicHeader = []byte("NANODOC1")

// footerSize is the trailing document count (uint32).
const footerSize = 4

type SnapshotWriter struct {
	encoder *zstd.Encoder
}

func NewSnapshotWriter() (*SnapshotWriter, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotWriter{encoder: enc}, nil
}

// WriteSnapshot writes docs to path as a .ndoc file:
//
//	[NANODOC1][Size uint32][zstd(JSON array)][Count uint32]
//
// The file is written next to path and renamed into place, so readers see
// either the old snapshot or the new one.
func (sw *SnapshotWriter) WriteSnapshot(path string, docs []engine.Document) error {
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	compressed := sw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if err := writeFrame(tmp, compressed, uint32(len(docs))); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func writeFrame(f *os.File, compressed []byte, count uint32) error {
	if _, err := f.Write(MagicHeader); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return err
	}
	if _, err := f.Write(compressed); err != nil {
		return err
	}
	return binary.Write(f, binary.LittleEndian, count)
}

// Close releases the encoder's resources.
func (sw *SnapshotWriter) Close() error {
	return sw.encoder.Close()
}
