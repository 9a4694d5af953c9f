package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/coffersTech/nanodoc/internal/engine"
	"github.com/klauspost/compress/zstd"
)

var (
	ErrInvalidHeader = errors.New("invalid .ndoc file header")
	ErrCorrupt       = errors.New("corrupt .ndoc file")
)

type SnapshotReader struct {
	decoder *zstd.Decoder
}

func NewSnapshotReader() (*SnapshotReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotReader{decoder: dec}, nil
}

// ReadSnapshot loads every document of a .ndoc file. Numbers are decoded as
// json.Number so integer precision survives a round trip.
func (sr *SnapshotReader) ReadSnapshot(path string) ([]engine.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Header(8) + Size(4) + Footer(4)
	if len(data) < len(MagicHeader)+4+footerSize {
		return nil, fmt.Errorf("%w: %s is too small", ErrCorrupt, path)
	}
	if !bytes.Equal(data[:len(MagicHeader)], MagicHeader) {
		return nil, ErrInvalidHeader
	}

	body := data[len(MagicHeader):]
	size := binary.LittleEndian.Uint32(body[:4])
	body = body[4:]
	if int(size)+footerSize != len(body) {
		return nil, fmt.Errorf("%w: %s block size mismatch", ErrCorrupt, path)
	}
	count := binary.LittleEndian.Uint32(body[size:])

	raw, err := sr.decoder.DecodeAll(body[:size], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var docs []engine.Document
	if err := dec.Decode(&docs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if uint32(len(docs)) != count {
		return nil, fmt.Errorf("%w: %s holds %d documents, footer says %d", ErrCorrupt, path, len(docs), count)
	}
	return docs, nil
}

// Close releases the decoder's resources.
func (sr *SnapshotReader) Close() {
	sr.decoder.Close()
}
