// Package atomicfile rewrites JSON documents so readers never observe a
// partially written file.
package atomicfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// IOError reports a failed read or rewrite of a persisted document.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return "atomicfile: " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }

// WriteJSON marshals v and replaces path with it. The document is written
// to a sibling .tmp file, read back and decoded to confirm it is valid JSON,
// then renamed over path. The temp file is removed on any failure.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return &IOError{Path: path, Op: "marshal", Err: err}
	}
	return Write(path, buf.Bytes(), func(b []byte) error {
		var probe any
		return json.Unmarshal(b, &probe)
	})
}

// Write replaces path with data using the temp-validate-rename sequence.
// validate may be nil.
func Write(path string, data []byte, validate func([]byte) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IOError{Path: path, Op: "mkdir", Err: err}
	}

	tmp := path + ".tmp"
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &IOError{Path: tmp, Op: "write", Err: err}
	}

	if validate != nil {
		back, err := os.ReadFile(tmp)
		if err != nil {
			return &IOError{Path: tmp, Op: "read back", Err: err}
		}
		if err := validate(back); err != nil {
			return &IOError{Path: tmp, Op: "validate", Err: err}
		}
	}

	if err := os.Rename(tmp, path); err != nil {
		return &IOError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

// ReadJSON decodes path into v. It returns false with no error when the
// file does not exist.
func ReadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &IOError{Path: path, Op: "read", Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &IOError{Path: path, Op: "decode", Err: eris.Wrap(err, "invalid json")}
	}
	return true, nil
}
