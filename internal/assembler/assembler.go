// Package assembler concatenates generated fragments into one artifact and
// writes it to disk atomically.
package assembler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrIOFailure is wrapped by every write failure.
var ErrIOFailure = errors.New("io failure")

// IOFailureError names the destination and the step that failed.
type IOFailureError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOFailureError) Error() string {
	return fmt.Sprintf("write %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *IOFailureError) Unwrap() []error {
	return []error{ErrIOFailure, e.Err}
}

// Assemble joins header, kernel bodies, wrappers and tail in that order.
func Assemble(header string, bodies, wrappers []string, tail string) string {
	size := len(header) + len(tail)
	for _, b := range bodies {
		size += len(b)
	}
	for _, w := range wrappers {
		size += len(w)
	}

	var sb strings.Builder
	sb.Grow(size)
	sb.WriteString(header)
	for _, b := range bodies {
		sb.WriteString(b)
	}
	for _, w := range wrappers {
		sb.WriteString(w)
	}
	sb.WriteString(tail)
	return sb.String()
}

// WriteArtifact replaces path with data. The bytes go to a temporary file in
// the same directory which is renamed over path only after a successful
// sync, so path never holds a partial artifact.
func WriteArtifact(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOFailureError{Path: path, Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &IOFailureError{Path: path, Op: "create", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return &IOFailureError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &IOFailureError{Path: path, Op: "sync", Err: err}
	}
	if err := tmp.Chmod(0o644); err != nil {
		return &IOFailureError{Path: path, Op: "chmod", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOFailureError{Path: path, Op: "close", Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &IOFailureError{Path: path, Op: "rename", Err: err}
	}
	return nil
}
