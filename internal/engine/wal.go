package engine

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// WAL operations.
const (
	OpCreate  = "create"
	OpInsert  = "insert"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// Record is one logged mutation.
type Record struct {
	Op         string   `json:"op"`
	Collection string   `json:"collection"`
	ID         string   `json:"id,omitempty"`
	Doc        Document `json:"doc,omitempty"`
}

// WAL handles write-ahead logging to prevent data loss during crashes.
type WAL struct {
	file *os.File
	path string
	size int64
	mu   sync.Mutex
}

// OpenWAL opens or creates a WAL file at the specified path.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &WAL{
		file: f,
		path: path,
		size: info.Size(),
	}, nil
}

// Write appends records to the WAL as one batch.
func (w *WAL) Write(records ...Record) error {
	var buf bytes.Buffer
	lenBuf := make([]byte, 4)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		// Format: [Len uint32][JSON Bytes]
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
		buf.Write(lenBuf)
		buf.Write(data)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(buf.Bytes())
	w.size += int64(n)
	return err
}

// Sync flushes the WAL file buffers to disk.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Size returns the number of bytes currently in the WAL.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Reset truncates the WAL file.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	w.size = 0
	_, err := w.file.Seek(0, 0)
	return err
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	return w.file.Close()
}

// Replay reads the WAL and returns all records. A torn or undecodable record
// at the tail, left by a crash in the middle of a write, ends the replay and
// is cut from the file so later appends follow the last good record. dropped
// reports how many bytes were cut.
func (w *WAL) Replay() (records []Record, dropped int64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}

	var good int64
	lenBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(w.file, lenBuf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return records, 0, fmt.Errorf("WAL replay error (len): %v", err)
		}

		length := binary.LittleEndian.Uint32(lenBuf)
		if int64(length) > w.size-good-4 {
			break
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(w.file, data); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return records, 0, fmt.Errorf("WAL replay error (data): %v", err)
		}

		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			break
		}
		records = append(records, rec)
		good += 4 + int64(length)
	}

	if good < w.size {
		dropped = w.size - good
		if err := w.file.Truncate(good); err != nil {
			return records, 0, fmt.Errorf("WAL truncate torn tail: %w", err)
		}
		w.size = good
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return records, dropped, err
	}
	return records, dropped, nil
}
