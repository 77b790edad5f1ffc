package codec

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// maxLineBytes bounds a single log record.
const maxLineBytes = 4 * 1024 * 1024

// Line is one non-blank physical line of a JSONL log, numbered from 1.
type Line struct {
	No   int
	Data []byte
}

// Decode unmarshals the line into v.
func (l Line) Decode(v any) error {
	if err := json.Unmarshal(l.Data, v); err != nil {
		return fmt.Errorf("line %d: %w", l.No, err)
	}
	return nil
}

// EncodeLine renders v as a single JSON line terminated by '\n'.
func EncodeLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode line: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadLines returns every non-blank line in path. A missing file yields no
// lines and no error.
func ReadLines(path string) ([]Line, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	lines, err := ScanLines(f)
	if err != nil {
		return lines, fmt.Errorf("scan %s: %w", path, err)
	}
	return lines, nil
}

// ScanLines splits r into non-blank lines. On a scan error the lines read so
// far are returned with the error.
func ScanLines(r io.Reader) ([]Line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var lines []Line
	no := 0
	for scanner.Scan() {
		no++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		data := make([]byte, len(raw))
		copy(data, raw)
		lines = append(lines, Line{No: no, Data: data})
	}
	return lines, scanner.Err()
}

// AppendLine appends one encoded line to path and syncs it. If the file ends
// in a partial line, a newline is written first so the new record starts on
// its own line.
func AppendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	needsBreak, err := endsMidLine(f)
	if err != nil {
		return err
	}
	if needsBreak {
		line = append([]byte{'\n'}, line...)
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}

// RewriteLines atomically replaces path with the given lines.
func RewriteLines(path string, lines []Line) error {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.Write(l.Data)
		buf.WriteByte('\n')
	}
	return WriteFileAtomic(path, buf.Bytes())
}

func endsMidLine(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("read tail %s: %w", f.Name(), err)
	}
	return last[0] != '\n', nil
}
