package store

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrInvalid   = errors.New("invalid")
	ErrEmptyLog  = errors.New("no more undo items")
	ErrIO        = errors.New("storage i/o failure")
	ErrNoStorage = errors.New("storage not initialized")
)

// FileError reports a failure reading, decoding, encoding or writing one of
// the backing documents. It unwraps to the underlying error and still
// satisfies errors.Is(err, ErrIO).
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

func (e *FileError) Is(target error) bool {
	return target == ErrIO
}

// readDocument decodes the YAML document at path into out.
func readDocument(fsys afero.Fs, path string, out any) error {
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %v", ErrNoStorage, err)
		}
		return &FileError{Op: "read", Path: path, Err: err}
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return &FileError{Op: "decode", Path: path, Err: err}
	}
	return nil
}

// writeDocument replaces the file at path with the YAML encoding of doc.
// The write is not atomic; an interrupted write can leave a partial file.
func writeDocument(fsys afero.Fs, path string, doc any) error {
	b, err := yaml.Marshal(doc)
	if err != nil {
		return &FileError{Op: "encode", Path: path, Err: err}
	}
	if err := afero.WriteFile(fsys, path, b, 0o644); err != nil {
		return &FileError{Op: "write", Path: path, Err: err}
	}
	return nil
}
