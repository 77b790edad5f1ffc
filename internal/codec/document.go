// Package codec reads and writes the on-disk forms used by the stores: one
// JSON document per file, and line-delimited JSON logs.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ReadState tags the outcome of a read so callers can tell a missing record
// from a damaged one.
type ReadState int

const (
	Absent ReadState = iota
	Found
	Corrupt
)

func (s ReadState) String() string {
	switch s {
	case Found:
		return "found"
	case Corrupt:
		return "corrupt"
	default:
		return "absent"
	}
}

// EncodeDocument renders v as an indented JSON document without HTML escaping.
func EncodeDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadDocument decodes the JSON document at path into v. A missing file is
// Absent with a nil error; unreadable or undecodable content is Corrupt and
// the cause is returned for logging.
func ReadDocument(path string, v any) (ReadState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Absent, nil
	}
	if err != nil {
		return Corrupt, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Corrupt, fmt.Errorf("decode %s: empty document", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return Corrupt, fmt.Errorf("decode %s: %w", path, err)
	}
	return Found, nil
}

// WriteDocument encodes v and atomically replaces path with it.
func WriteDocument(path string, v any) error {
	data, err := EncodeDocument(v)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temp file in the same directory, syncs it
// and renames it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
