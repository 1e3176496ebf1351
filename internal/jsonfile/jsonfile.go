// Package jsonfile holds the file primitives shared by the mailbox, registry
// and cursor stores: whole-document JSON reads and atomic writes, and
// newline-delimited JSON appends and scans.
package jsonfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// maxLine bounds a single JSONL line, newline included. AppendLine refuses
// larger lines; ReadLines reports any it finds as nil entries.
var maxLine = 16 << 20

// ErrLineTooLong is returned by AppendLine for a line over the size limit.
var ErrLineTooLong = errors.New("jsonl line too long")

// Read decodes the JSON document at path into v.
func Read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// IsMissing reports whether err means the file does not exist.
func IsMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// WriteAtomic replaces the document at path with the indented JSON encoding
// of v. The data is written to a temporary sibling and renamed into place so
// concurrent readers see either the old or the new document, never a mix.
func WriteAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Touch creates path as an empty file if it does not exist. Existing content
// is never truncated.
func Touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

// AppendLine encodes v as one JSON line and appends it with a single write.
func AppendLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if len(data) > maxLine {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrLineTooLong, len(data), maxLine)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}

// ReadLines returns the non-blank, newline-terminated lines of a JSONL file
// in file order. A missing file yields no lines and no error.
//
// A final segment without a newline is a writer mid-append: it is neither
// returned nor counted, so a cursor taken from len(lines) never passes it.
// A line over the size limit is counted as a nil entry so later lines keep
// their positions.
func ReadLines(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if IsMissing(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines [][]byte
	r := bufio.NewReaderSize(f, 64*1024)
	var buf []byte
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			if !oversized {
				buf = append(buf, chunk...)
				if len(buf) > maxLine {
					oversized, buf = true, nil
				}
			}
			continue
		case errors.Is(err, io.EOF):
			return lines, nil
		default:
			return lines, err
		}

		if oversized || len(buf)+len(chunk) > maxLine {
			lines = append(lines, nil)
		} else if line := bytes.TrimSpace(append(buf, chunk...)); len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
		buf, oversized = buf[:0], false
	}
}
